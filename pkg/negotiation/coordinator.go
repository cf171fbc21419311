package negotiation

import (
	"context"
	"fmt"

	"tradelane/pkg/domain"
	"tradelane/pkg/signature"
)

// Coordinator drives the initiator's half of the signature exchange: it ships
// a partially-signed transition to the counterparty and validates what comes
// back. The candidate must already be verified and locally signed; the
// coordinator never alters it.
type Coordinator struct {
	dialer Dialer
	keys   signature.KeyRing
}

func NewCoordinator(dialer Dialer, keys signature.KeyRing) *Coordinator {
	return &Coordinator{dialer: dialer, keys: keys}
}

// Collect opens a session to the output record's counterparty, proposes the
// transition with the initiator's envelope attached, and validates the
// response: the signature set must be exactly the required signer set, and
// every envelope must verify against the locally held body. Envelopes are
// verified against the local candidate, not anything echoed back, so a
// tampered counter-signature over a modified body cannot pass.
func (c *Coordinator) Collect(ctx context.Context, candidate domain.CandidateTransition, initiatorSig signature.Envelope) (SignedTransition, error) {
	counterparty := candidate.Outputs[0].CounterParty
	sess, err := c.dialer.Dial(ctx, counterparty)
	if err != nil {
		return SignedTransition{}, err
	}

	resp, err := sess.Propose(ctx, ProposedTransition{
		Transition:        candidate,
		PartialSignatures: []signature.Envelope{initiatorSig},
	})
	if err != nil {
		return SignedTransition{}, err
	}

	full := SignedTransition{Transition: candidate, Signatures: resp.FullSignatures}
	if err := VerifySignatures(full, c.keys); err != nil {
		return SignedTransition{}, fmt.Errorf("counterparty response: %w", err)
	}
	return full, nil
}
