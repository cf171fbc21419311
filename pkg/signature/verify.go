package signature

import (
	"crypto/ed25519"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradelane/pkg/canonhash"
)

var (
	ErrUnsupportedAlgorithm = errors.New("unsupported algorithm")
	ErrInvalidIssuedAt      = errors.New("invalid issued_at")
	ErrPayloadHashMismatch  = errors.New("payload hash mismatch")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrInvalidEncoding      = errors.New("invalid encoding")
	ErrUnknownSigner        = errors.New("unknown signer")
)

type VerifyResult struct {
	IssuedAt time.Time
}

// VerifyEnvelope checks env against payload: the embedded payload hash must
// equal the canonical hash of payload, and the signature must verify over
// that hash with the embedded public key. The caller binds the key to an
// identity separately (see KeyRing.VerifyParty).
func VerifyEnvelope(payload any, env Envelope) (VerifyResult, error) {
	if strings.TrimSpace(env.Version) != envelopeVersion {
		return VerifyResult{}, ErrUnsupportedAlgorithm
	}
	if strings.ToLower(strings.TrimSpace(env.Algorithm)) != envelopeAlgorithm {
		return VerifyResult{}, ErrUnsupportedAlgorithm
	}
	issuedAt, err := parseIssuedAt(env.IssuedAt)
	if err != nil {
		return VerifyResult{}, err
	}

	expectedHex, _, err := canonhash.SumObject(payload)
	if err != nil {
		return VerifyResult{}, err
	}
	expected, err := hex.DecodeString(expectedHex)
	if err != nil {
		return VerifyResult{}, ErrInvalidEncoding
	}
	got, err := decodeLowerHex32(strings.TrimSpace(env.PayloadHash))
	if err != nil {
		return VerifyResult{}, err
	}
	if subtle.ConstantTimeCompare(expected, got) != 1 {
		return VerifyResult{}, ErrPayloadHashMismatch
	}

	if err := verifyEd25519(got, env.PublicKey, env.Signature); err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{IssuedAt: issuedAt}, nil
}

// KeyRing maps party key ids to their registered public keys.
type KeyRing map[string]ed25519.PublicKey

// VerifyParty verifies env over payload and additionally requires the
// envelope's public key to be the one registered for keyID. This is what
// stops a counterparty substituting its own key under another party's name.
func (k KeyRing) VerifyParty(payload any, env Envelope, keyID string) (VerifyResult, error) {
	registered, ok := k[keyID]
	if !ok {
		return VerifyResult{}, fmt.Errorf("%w: %s", ErrUnknownSigner, keyID)
	}
	embedded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(env.PublicKey))
	if err != nil || len(embedded) != ed25519.PublicKeySize {
		return VerifyResult{}, ErrInvalidEncoding
	}
	if subtle.ConstantTimeCompare(registered, embedded) != 1 {
		return VerifyResult{}, fmt.Errorf("%w: key mismatch for %s", ErrUnknownSigner, keyID)
	}
	if env.KeyID != keyID {
		return VerifyResult{}, fmt.Errorf("%w: envelope key_id %q", ErrUnknownSigner, env.KeyID)
	}
	return VerifyEnvelope(payload, env)
}

func parseIssuedAt(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, ErrInvalidIssuedAt
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, ErrInvalidIssuedAt
	}
	if !strings.HasSuffix(s, "Z") {
		return time.Time{}, ErrInvalidIssuedAt
	}
	return t.UTC(), nil
}

func verifyEd25519(messageHash []byte, publicKeyB64, sigB64 string) error {
	publicKey, err := base64.StdEncoding.DecodeString(strings.TrimSpace(publicKeyB64))
	if err != nil {
		return ErrInvalidEncoding
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sigB64))
	if err != nil {
		return ErrInvalidEncoding
	}
	if len(publicKey) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return ErrInvalidEncoding
	}
	if !ed25519.Verify(ed25519.PublicKey(publicKey), messageHash, sig) {
		return ErrInvalidSignature
	}
	return nil
}

func decodeLowerHex32(s string) ([]byte, error) {
	if s == "" || s != strings.ToLower(s) {
		return nil, ErrInvalidEncoding
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidEncoding
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("%w: payload_hash length", ErrInvalidEncoding)
	}
	return b, nil
}
