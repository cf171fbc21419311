package signature

import "strings"

// ParseSeedRing builds a key ring from a "party=seed,party=seed" spec, the
// format dev and test deployments pass through the environment. Malformed
// pairs are skipped.
func ParseSeedRing(spec string) KeyRing {
	keys := KeyRing{}
	for _, pair := range strings.Split(spec, ",") {
		name, seed, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" || seed == "" {
			continue
		}
		keys[name] = NewSeedSigner(name, seed).Public()
	}
	return keys
}
