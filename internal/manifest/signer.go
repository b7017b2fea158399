// internal/manifest/signer.go
package manifest

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Signer signs and verifies manifest payloads.
type Signer interface {
	KeyID() string
	Algorithm() string
	Sign(payload []byte) (string, error)
	Verify(payload []byte, signature string) bool
}

// HMACSigner signs with HMAC-SHA256 over a shared secret.
type HMACSigner struct {
	secret []byte
	keyID  string
}

func NewHMACSigner(secret string) (*HMACSigner, error) {
	if secret == "" {
		return nil, errors.New("signing secret is empty")
	}
	sum := sha256.Sum256([]byte(secret))
	return &HMACSigner{secret: []byte(secret), keyID: "hmac-" + hex.EncodeToString(sum[:8])}, nil
}

func (s *HMACSigner) KeyID() string     { return s.keyID }
func (s *HMACSigner) Algorithm() string { return "HMAC-SHA256" }

func (s *HMACSigner) Sign(payload []byte) (string, error) {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *HMACSigner) Verify(payload []byte, signature string) bool {
	want, err := s.Sign(payload)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(signature))
}

// Ed25519Signer signs with an Ed25519 key. A signer built from a public key
// alone can only verify.
type Ed25519Signer struct {
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	keyID string
}

// NewEd25519Signer decodes a hex-encoded 64-byte private key.
func NewEd25519Signer(privateKeyHex string) (*Ed25519Signer, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, errors.New("invalid private key format")
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	priv := ed25519.PrivateKey(raw)
	pub := priv.Public().(ed25519.PublicKey)
	return &Ed25519Signer{priv: priv, pub: pub, keyID: keyIDFor(pub)}, nil
}

// NewEd25519Verifier decodes a hex-encoded public key.
func NewEd25519Verifier(publicKeyHex string) (*Ed25519Signer, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, errors.New("invalid public key format")
	}
	pub := ed25519.PublicKey(raw)
	return &Ed25519Signer{pub: pub, keyID: keyIDFor(pub)}, nil
}

// PublicKeyHex returns the hex-encoded public key.
func (s *Ed25519Signer) PublicKeyHex() string { return hex.EncodeToString(s.pub) }

func (s *Ed25519Signer) KeyID() string     { return s.keyID }
func (s *Ed25519Signer) Algorithm() string { return "Ed25519" }

func (s *Ed25519Signer) Sign(payload []byte) (string, error) {
	if s.priv == nil {
		return "", errors.New("verifier has no private key")
	}
	return hex.EncodeToString(ed25519.Sign(s.priv, payload)), nil
}

func (s *Ed25519Signer) Verify(payload []byte, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return ed25519.Verify(s.pub, payload, sig)
}

func keyIDFor(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return "ed25519-" + hex.EncodeToString(sum[:8])
}
