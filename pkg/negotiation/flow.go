package negotiation

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tradelane/pkg/domain"
	"tradelane/pkg/signature"
)

// State enumerates the initiator's negotiation machine.
type State string

const (
	StateBuilding     State = "BUILDING"
	StateVerifying    State = "VERIFYING"
	StateLocalSigning State = "LOCAL_SIGNING"
	StateCollecting   State = "COLLECTING_SIGNATURES"
	StateFinalizing   State = "FINALIZING"
	StateCommitted    State = "COMMITTED"
	StateRejected     State = "REJECTED"
	StateAborted      State = "ABORTED"
)

// Terminal reports whether s ends a negotiation instance.
func (s State) Terminal() bool {
	return s == StateCommitted || s == StateRejected || s == StateAborted
}

// PartyContext carries one party's identity, signing capability and service
// handles. Components receive it explicitly; there is no ambient state.
type PartyContext struct {
	Identity domain.Party
	Signer   *signature.Signer
	Keys     signature.KeyRing
	Ledger   Ledger
	Notary   Notary
	Dialer   Dialer
	Logger   *logrus.Logger
}

// Outcome is the terminal result of a negotiation instance.
type Outcome struct {
	State        State
	Record       domain.TradeRecord // committed output, set only on COMMITTED
	TransitionID string
}

// Flow is one negotiation instance on the initiating side. Instances are
// independent: many may run concurrently, including over the same linear id;
// the notary serializes consumption.
type Flow struct {
	party    PartyContext
	linearID uuid.UUID
	proposal Proposal

	state     State
	candidate domain.CandidateTransition
	selfSig   signature.Envelope
	signed    SignedTransition
	result    CommitResult
	cause     error
}

func NewFlow(party PartyContext, linearID uuid.UUID, proposal Proposal) *Flow {
	if party.Logger == nil {
		party.Logger = logrus.New()
	}
	return &Flow{party: party, linearID: linearID, proposal: proposal, state: StateBuilding}
}

func (f *Flow) State() State { return f.state }

// Run steps the machine to a terminal state. Building, verifying and signing
// are synchronous; the flow suspends only at session I/O and the notary
// call. On COMMITTED the returned error is nil; on REJECTED or ABORTED it
// carries the cause.
func (f *Flow) Run(ctx context.Context) (Outcome, error) {
	log := f.party.Logger.WithFields(logrus.Fields{
		"party":     f.party.Identity,
		"linear_id": f.linearID,
		"action":    f.proposal.Action,
	})
	for !f.state.Terminal() {
		log.WithField("state", f.state).Debug("negotiation step")
		switch f.state {
		case StateBuilding:
			f.stepBuild(ctx)
		case StateVerifying:
			f.stepVerify()
		case StateLocalSigning:
			f.stepSign()
		case StateCollecting:
			f.stepCollect(ctx)
		case StateFinalizing:
			f.stepFinalize(ctx)
		}
	}
	log.WithField("state", f.state).Info("negotiation finished")
	return Outcome{State: f.state, Record: f.result.Record, TransitionID: f.result.TransitionID}, f.cause
}

func (f *Flow) stepBuild(ctx context.Context) {
	candidate, err := Build(ctx, f.party.Ledger, f.linearID, f.proposal, f.party.Identity)
	if err != nil {
		f.abort(err)
		return
	}
	f.candidate = candidate
	f.state = StateVerifying
}

// stepVerify is the fail-fast gate: a transition that does not verify locally
// never reaches the network.
func (f *Flow) stepVerify() {
	if err := Verify(f.candidate); err != nil {
		f.abort(err)
		return
	}
	f.state = StateLocalSigning
}

func (f *Flow) stepSign() {
	env, err := f.party.Signer.Sign(f.candidate)
	if err != nil {
		f.abort(err)
		return
	}
	f.selfSig = env
	f.state = StateCollecting
}

func (f *Flow) stepCollect(ctx context.Context) {
	coordinator := NewCoordinator(f.party.Dialer, f.party.Keys)
	signed, err := coordinator.Collect(ctx, f.candidate, f.selfSig)
	if err != nil {
		var notice *domain.RejectionNotice
		if errors.As(err, &notice) {
			f.state = StateRejected
			f.cause = err
			return
		}
		f.abort(err)
		return
	}
	f.signed = signed
	f.state = StateFinalizing
}

func (f *Flow) stepFinalize(ctx context.Context) {
	// The counterparty's signature is already committed logically: once
	// submitted, the outcome must be awaited even if the caller cancels.
	result, err := f.party.Notary.Commit(context.WithoutCancel(ctx), f.signed)
	if err != nil {
		f.abort(err)
		return
	}
	f.result = result
	f.state = StateCommitted
}

func (f *Flow) abort(cause error) {
	f.state = StateAborted
	f.cause = cause
}
