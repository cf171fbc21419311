package signature

// Envelope is one party's detached signature over a transition body. The
// signature covers the canonical SHA-256 hash of the body, not the body
// itself; KeyID names the signing party.
type Envelope struct {
	Version     string `json:"version"`
	Algorithm   string `json:"algorithm"`
	PublicKey   string `json:"public_key"`
	Signature   string `json:"signature"`
	PayloadHash string `json:"payload_hash"`
	IssuedAt    string `json:"issued_at"`
	KeyID       string `json:"key_id,omitempty"`
	Context     string `json:"context,omitempty"`
}

const (
	envelopeVersion   = "sig-v1"
	envelopeAlgorithm = "ed25519"
	envelopeContext   = "trade-transition"
)
