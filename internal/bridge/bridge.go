// Package bridge connects the network to NATS: external stimuli come in on
// <prefix>.stimulus, posts and telemetry go out on per-seed and per-type
// subjects.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/user/wonderland/internal/network"
	"github.com/user/wonderland/internal/types"
)

// DefaultPrefix is used when Options.Prefix is empty.
const DefaultPrefix = "wonderland"

// Dispatcher routes an externally built stimulus.
type Dispatcher interface {
	DispatchExternalEvent(ctx context.Context, ev *types.StimulusEvent) (*types.StimulusEvent, error)
}

type Options struct {
	Prefix string
	// Name identifies the connection on the server.
	Name string
}

// Reply is sent to requests on the stimulus subject.
type Reply struct {
	EventID string `json:"eventId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Bridge encapsulates a NATS connection bound to a dispatcher.
type Bridge struct {
	nc     *nats.Conn
	prefix string
	router Dispatcher
	owned  bool

	mu  sync.Mutex
	sub *nats.Subscription
	ctx context.Context
}

// Connect dials url and returns a bridge that owns the connection.
func Connect(url string, d Dispatcher, opts Options) (*Bridge, error) {
	name := opts.Name
	if name == "" {
		name = "wonderland"
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.Timeout(10*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	b := New(nc, d, opts)
	b.owned = true
	slog.Info("connected to nats", "url", url)
	return b, nil
}

// New wraps an existing connection. Close leaves the connection open.
func New(nc *nats.Conn, d Dispatcher, opts Options) *Bridge {
	prefix := strings.Trim(opts.Prefix, ".")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Bridge{nc: nc, prefix: prefix, router: d, ctx: context.Background()}
}

func (b *Bridge) StimulusSubject() string { return b.prefix + ".stimulus" }

func (b *Bridge) PostSubject(seedID string) string {
	return b.prefix + ".posts." + seedID
}

func (b *Bridge) TelemetrySubject(t network.TelemetryType) string {
	return b.prefix + ".telemetry." + string(t)
}

// Start subscribes to the stimulus subject. Messages are dispatched with
// ctx until Close.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub != nil {
		return nil
	}
	b.ctx = ctx
	sub, err := b.nc.Subscribe(b.StimulusSubject(), b.handleStimulus)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.StimulusSubject(), err)
	}
	b.sub = sub
	return b.nc.Flush()
}

func (b *Bridge) handleStimulus(msg *nats.Msg) {
	b.mu.Lock()
	ctx := b.ctx
	b.mu.Unlock()

	var reply Reply
	ev, err := decodeStimulus(msg.Data)
	if err == nil {
		ev, err = b.router.DispatchExternalEvent(ctx, ev)
	}
	if err != nil {
		slog.Warn("rejected nats stimulus", "subject", msg.Subject, "error", err)
		reply.Error = err.Error()
	} else {
		reply.EventID = ev.EventID
		slog.Debug("nats stimulus dispatched", "event_id", ev.EventID, "type", ev.Type)
	}

	if msg.Reply == "" {
		return
	}
	data, _ := json.Marshal(reply)
	if err := msg.Respond(data); err != nil {
		slog.Warn("nats reply failed", "error", err)
	}
}

// decodeStimulus parses an inbound event. Provenance claims from the wire
// are not trusted.
func decodeStimulus(data []byte) (*types.StimulusEvent, error) {
	var ev types.StimulusEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode stimulus: %w", err)
	}
	ev.Source.Verified = false
	if ev.Source.ProviderID == "" {
		ev.Source.ProviderID = "nats"
	}
	return &ev, nil
}

// PublishPost sends post on its author's posts subject. It satisfies
// delivery.Sink.
func (b *Bridge) PublishPost(_ context.Context, post *types.WonderlandPost) error {
	data, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("marshal post: %w", err)
	}
	return b.nc.Publish(b.PostSubject(post.SeedID), data)
}

// PublishTelemetry sends ev on its type's subject. It can be registered
// directly with Network.OnTelemetryUpdate.
func (b *Bridge) PublishTelemetry(ev network.TelemetryEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("marshal telemetry failed", "seed_id", ev.SeedID, "error", err)
		return
	}
	if err := b.nc.Publish(b.TelemetrySubject(ev.Type), data); err != nil {
		slog.Warn("publish telemetry failed", "seed_id", ev.SeedID, "type", ev.Type, "error", err)
	}
}

// Close unsubscribes and, for owned connections, drains and closes.
func (b *Bridge) Close() error {
	b.mu.Lock()
	sub := b.sub
	b.sub = nil
	b.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil && b.nc.IsConnected() {
			return fmt.Errorf("unsubscribe: %w", err)
		}
	}
	if b.owned {
		return b.nc.Drain()
	}
	return nil
}
