package signature

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"tradelane/pkg/canonhash"
)

// Signer is a party's opaque signing capability: it produces envelopes over
// canonical payload hashes and never exposes the private key.
type Signer struct {
	keyID string
	priv  ed25519.PrivateKey
}

func NewSigner(keyID string, priv ed25519.PrivateKey) (*Signer, error) {
	if keyID == "" {
		return nil, errors.New("key id is required")
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid ed25519 private key")
	}
	return &Signer{keyID: keyID, priv: priv}, nil
}

// NewSeedSigner derives a deterministic key from a seed string. Used by dev
// and test setups; production deployments load real key material instead.
func NewSeedSigner(keyID, seed string) *Signer {
	sum := sha256.Sum256([]byte(seed))
	return &Signer{keyID: keyID, priv: ed25519.NewKeyFromSeed(sum[:])}
}

func (s *Signer) KeyID() string { return s.keyID }

func (s *Signer) Public() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

// Sign hashes payload canonically and signs the hash bytes.
func (s *Signer) Sign(payload any) (Envelope, error) {
	hashHex, _, err := canonhash.SumObject(payload)
	if err != nil {
		return Envelope{}, err
	}
	hashBytes, err := hex.DecodeString(hashHex)
	if err != nil {
		return Envelope{}, err
	}
	sig := ed25519.Sign(s.priv, hashBytes)
	return Envelope{
		Version:     envelopeVersion,
		Algorithm:   envelopeAlgorithm,
		PublicKey:   base64.StdEncoding.EncodeToString(s.Public()),
		Signature:   base64.StdEncoding.EncodeToString(sig),
		PayloadHash: hashHex,
		IssuedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		KeyID:       s.keyID,
		Context:     envelopeContext,
	}, nil
}
