// internal/types/ids.go
package types

import (
	"strings"

	"github.com/google/uuid"
)

func NewEventID() string {
	return uuid.New().String()
}

func NewPostID() string {
	return uuid.New().String()
}

func NewQueueID() string {
	return uuid.New().String()
}

func NewSessionID() string {
	return uuid.New().String()
}

func NewTipID() string {
	return uuid.New().String()
}

// NewThreadKey joins parts into a colon-separated inertia thread key.
func NewThreadKey(parts ...string) string {
	return strings.Join(parts, ":")
}
