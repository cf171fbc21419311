package negotiation

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"tradelane/pkg/domain"
	"tradelane/pkg/signature"
)

// ResponderState enumerates the counterparty's mirrored machine.
type ResponderState string

const (
	ResponderAwaitingProposal ResponderState = "AWAITING_PROPOSAL"
	ResponderVerifying        ResponderState = "VERIFYING"
	ResponderSigning          ResponderState = "SIGNING"
	ResponderAccepted         ResponderState = "ACCEPTED"
	ResponderRejected         ResponderState = "REJECTED"
)

// Responder is the counterparty side of the protocol. It re-runs verification
// on every proposal independently, trusting nothing the initiator checked,
// and releases its signature only on a fully verified transition.
type Responder struct {
	identity domain.Party
	signer   *signature.Signer
	keys     signature.KeyRing
	logger   *logrus.Logger
}

func NewResponder(identity domain.Party, signer *signature.Signer, keys signature.KeyRing, logger *logrus.Logger) *Responder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Responder{identity: identity, signer: signer, keys: keys, logger: logger}
}

// Handle runs AWAITING_PROPOSAL -> VERIFYING -> {SIGNING -> ACCEPTED |
// REJECTED} for one proposal. A returned *domain.RejectionNotice means
// REJECTED; any other error means the session should fail without a notice.
func (r *Responder) Handle(ctx context.Context, prop ProposedTransition) (SignedResponse, error) {
	log := r.logger.WithFields(logrus.Fields{
		"party":  r.identity,
		"action": prop.Transition.Action,
	})
	log.WithField("state", ResponderVerifying).Debug("verifying proposal")

	if err := ctx.Err(); err != nil {
		return SignedResponse{}, err
	}

	if err := Verify(prop.Transition); err != nil {
		var violation *domain.ContractViolation
		if errors.As(err, &violation) {
			log.WithField("rule", violation.Rule).Info("rejecting proposal")
			return SignedResponse{}, &domain.RejectionNotice{
				RuleViolated: violation.Rule,
				Reason:       violation.Detail,
			}
		}
		return SignedResponse{}, err
	}

	if !prop.Transition.Requires(r.identity) {
		log.Info("rejecting proposal: we are not a required signer")
		return SignedResponse{}, &domain.RejectionNotice{
			RuleViolated: RuleRequiredSignerSet,
			Reason:       fmt.Sprintf("%s is not in the required signer set", r.identity),
		}
	}

	// The initiator must have signed before asking anyone else to.
	initiator := prop.Transition.Outputs[0].InitiatingParty
	if err := r.verifyPartials(prop, initiator); err != nil {
		log.WithError(err).Info("rejecting proposal: bad partial signature")
		return SignedResponse{}, &domain.RejectionNotice{
			RuleViolated: RuleInvalidSignature,
			Reason:       err.Error(),
		}
	}

	log.WithField("state", ResponderSigning).Debug("counter-signing")
	own, err := r.signer.Sign(prop.Transition)
	if err != nil {
		return SignedResponse{}, fmt.Errorf("sign transition: %w", err)
	}

	log.WithField("state", ResponderAccepted).Info("proposal accepted")
	return SignedResponse{FullSignatures: append(prop.PartialSignatures, own)}, nil
}

func (r *Responder) verifyPartials(prop ProposedTransition, initiator domain.Party) error {
	var haveInitiator bool
	for _, env := range prop.PartialSignatures {
		p := domain.Party(env.KeyID)
		if !prop.Transition.Requires(p) {
			return fmt.Errorf("signature from non-required party %q", p)
		}
		if p == r.identity {
			return errors.New("proposal already carries our signature")
		}
		if _, err := r.keys.VerifyParty(prop.Transition, env, string(p)); err != nil {
			return fmt.Errorf("signature from %q: %w", p, err)
		}
		if p == initiator {
			haveInitiator = true
		}
	}
	if !haveInitiator {
		return fmt.Errorf("missing signature from initiating party %q", initiator)
	}
	return nil
}
