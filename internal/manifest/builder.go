// internal/manifest/builder.go
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/user/wonderland/internal/types"
)

// Builder accumulates the provenance of one post. It is used by a single
// pipeline run and is not safe for concurrent use.
type Builder struct {
	seedID   string
	signer   Signer
	now      func() time.Time
	manifest types.InputManifest
	models   map[string]bool
}

// NewBuilder starts a manifest for seedID. A nil signer leaves the manifest
// unsigned.
func NewBuilder(seedID string, signer Signer, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{
		seedID: seedID,
		signer: signer,
		now:    now,
		manifest: types.InputManifest{
			SeedID:          seedID,
			ProcessingSteps: []types.ManifestStep{},
			GuardrailChecks: []types.GuardrailCheck{},
			ModelsUsed:      []string{},
		},
		models: make(map[string]bool),
	}
}

func (b *Builder) RecordStimulus(ev *types.StimulusEvent) {
	b.manifest.Stimulus = types.ManifestStimulus{
		EventID:          ev.EventID,
		Type:             ev.Type,
		Timestamp:        ev.Timestamp,
		SourceProviderID: ev.Source.ProviderID,
		Verified:         ev.Source.Verified,
	}
}

// RecordStep appends a processing step. model may be empty.
func (b *Builder) RecordStep(step, description, model string) {
	b.manifest.ProcessingSteps = append(b.manifest.ProcessingSteps, types.ManifestStep{
		Step:        step,
		Description: description,
		ModelUsed:   model,
		Timestamp:   b.now(),
	})
	if model != "" && !b.models[model] {
		b.models[model] = true
		b.manifest.ModelsUsed = append(b.manifest.ModelsUsed, model)
	}
}

func (b *Builder) RecordGuardrailCheck(passed bool, name string) {
	b.manifest.GuardrailChecks = append(b.manifest.GuardrailChecks, types.GuardrailCheck{
		Name:      name,
		Passed:    passed,
		Timestamp: b.now(),
	})
}

// Steps returns a copy of the steps recorded so far.
func (b *Builder) Steps() []types.ManifestStep {
	return append([]types.ManifestStep(nil), b.manifest.ProcessingSteps...)
}

// Build finalizes the manifest: it computes the intent chain hash and signs
// the canonical encoding of everything except the signature fields.
func (b *Builder) Build() (*types.InputManifest, error) {
	m := b.manifest
	m.ProcessingSteps = append([]types.ManifestStep(nil), b.manifest.ProcessingSteps...)
	m.GuardrailChecks = append([]types.GuardrailCheck(nil), b.manifest.GuardrailChecks...)
	m.ModelsUsed = append([]string(nil), b.manifest.ModelsUsed...)
	m.HumanIntervention = false
	m.CreatedAt = b.now()
	m.IntentChainHash = IntentChainHash(m.ProcessingSteps)

	if b.signer == nil {
		return &m, nil
	}
	m.KeyID = b.signer.KeyID()
	m.Algorithm = b.signer.Algorithm()
	payload, err := signingPayload(&m)
	if err != nil {
		return nil, err
	}
	sig, err := b.signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("sign manifest: %w", err)
	}
	m.Signature = sig
	return &m, nil
}

// IntentChainHash chains sha256 over each step so that reordering, removing
// or editing any step changes the result.
func IntentChainHash(steps []types.ManifestStep) string {
	prev := ""
	for _, s := range steps {
		sum := sha256.Sum256([]byte(prev + "|" + s.Step + "|" + s.Description + "|" + s.ModelUsed + "|" + s.Timestamp.UTC().Format(time.RFC3339Nano)))
		prev = hex.EncodeToString(sum[:])
	}
	if prev == "" {
		sum := sha256.Sum256(nil)
		prev = hex.EncodeToString(sum[:])
	}
	return prev
}

var (
	ErrChainMismatch    = errors.New("intent chain hash mismatch")
	ErrBadSignature     = errors.New("manifest signature invalid")
	ErrKeyMismatch      = errors.New("manifest signed with a different key")
	ErrUnsignedManifest = errors.New("manifest is unsigned")
)

// Verify checks the chain hash and signature of m against signer.
func Verify(m *types.InputManifest, signer Signer) error {
	if m.IntentChainHash != IntentChainHash(m.ProcessingSteps) {
		return ErrChainMismatch
	}
	if m.Signature == "" {
		return ErrUnsignedManifest
	}
	if m.KeyID != signer.KeyID() || m.Algorithm != signer.Algorithm() {
		return ErrKeyMismatch
	}
	payload, err := signingPayload(m)
	if err != nil {
		return err
	}
	if !signer.Verify(payload, m.Signature) {
		return ErrBadSignature
	}
	return nil
}

func signingPayload(m *types.InputManifest) ([]byte, error) {
	unsigned := *m
	unsigned.Signature = ""
	data, err := json.Marshal(unsigned)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}
