package canonhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// SumObject hashes the canonical JSON encoding of v: json.Marshal bytes,
// SHA-256, lower hex. Every party hashes transition bodies this way, so equal
// hashes mean byte-identical bodies.
func SumObject(v any) (hexHash string, canonical []byte, err error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), b, nil
}

// SumString hashes a raw string with SHA-256 lower hex.
func SumString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
