package negotiation

import (
	"fmt"

	"tradelane/pkg/canonhash"
	"tradelane/pkg/domain"
	"tradelane/pkg/signature"
)

// SignedTransition pairs a candidate transition with the signature envelopes
// collected so far. The transition identity is the canonical hash of the
// body alone, so signing never changes it.
type SignedTransition struct {
	Transition domain.CandidateTransition `json:"transition"`
	Signatures []signature.Envelope       `json:"signatures"`
}

// ID returns the transition identity: "tx_" + canonical body hash.
func (s SignedTransition) ID() (string, error) {
	h, _, err := canonhash.SumObject(s.Transition)
	if err != nil {
		return "", err
	}
	return "tx_" + h, nil
}

// SignedBy reports whether an envelope claiming party p is present. It does
// not verify; use VerifySignatures for that.
func (s SignedTransition) SignedBy(p domain.Party) bool {
	for _, env := range s.Signatures {
		if env.KeyID == string(p) {
			return true
		}
	}
	return false
}

// VerifySignatures checks that the signature set is exactly the required
// signer set: one verifying envelope per required signer, bound to that
// signer's registered key, and no envelopes beyond the required set. Both
// the initiator (on the counterparty's response) and the notary run this.
func VerifySignatures(st SignedTransition, keys signature.KeyRing) error {
	required := st.Transition.RequiredSigners
	if len(st.Signatures) != len(required) {
		return fmt.Errorf("%w: have %d signatures, require %d",
			ErrIncompleteSignatures, len(st.Signatures), len(required))
	}
	seen := make(map[domain.Party]bool, len(required))
	for _, env := range st.Signatures {
		p := domain.Party(env.KeyID)
		if !st.Transition.Requires(p) {
			return fmt.Errorf("%w: signature from non-required party %q", ErrIncompleteSignatures, p)
		}
		if seen[p] {
			return fmt.Errorf("%w: duplicate signature from %q", ErrIncompleteSignatures, p)
		}
		if _, err := keys.VerifyParty(st.Transition, env, string(p)); err != nil {
			return fmt.Errorf("signature from %q: %w", p, err)
		}
		seen[p] = true
	}
	for _, p := range required {
		if !seen[p] {
			return fmt.Errorf("%w: missing signature from %q", ErrIncompleteSignatures, p)
		}
	}
	return nil
}
