package negotiation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tradelane/pkg/domain"
	"tradelane/pkg/signature"
)

// memNotary is an in-memory ledger plus notary: exactly-once consumption
// arbitrated by one mutex, the way the production store does it with one
// transaction.
type memNotary struct {
	mu         sync.Mutex
	unconsumed map[uuid.UUID]domain.TradeRecord // by linear id
	commits    map[string]CommitResult          // by transition id
	keys       signature.KeyRing
}

func newMemNotary(keys signature.KeyRing) *memNotary {
	return &memNotary{
		unconsumed: map[uuid.UUID]domain.TradeRecord{},
		commits:    map[string]CommitResult{},
		keys:       keys,
	}
}

func (n *memNotary) register(rec domain.TradeRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unconsumed[rec.LinearID] = rec
}

func (n *memNotary) FindUnconsumed(_ context.Context, linearID uuid.UUID, status domain.TradeStatus) (domain.TradeRecord, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	rec, ok := n.unconsumed[linearID]
	if !ok || (status != "" && rec.Status != status) {
		return domain.TradeRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (n *memNotary) Commit(_ context.Context, st SignedTransition) (CommitResult, error) {
	if err := Verify(st.Transition); err != nil {
		return CommitResult{}, err
	}
	if err := VerifySignatures(st, n.keys); err != nil {
		return CommitResult{}, err
	}
	id, err := st.ID()
	if err != nil {
		return CommitResult{}, err
	}
	input, output := st.Transition.Inputs[0], st.Transition.Outputs[0]

	n.mu.Lock()
	defer n.mu.Unlock()
	if prior, ok := n.commits[id]; ok {
		prior.Replayed = true
		return prior, nil
	}
	current, ok := n.unconsumed[input.LinearID]
	if !ok || current.RecordID != input.RecordID {
		return CommitResult{}, fmt.Errorf("record %s: %w", input.RecordID, domain.ErrConflict)
	}
	n.unconsumed[output.LinearID] = output
	result := CommitResult{TransitionID: id, Record: output}
	n.commits[id] = result
	return result, nil
}

// responderDialer hands proposals straight to an in-process responder.
type responderDialer struct {
	responder *Responder
}

func (d *responderDialer) Dial(context.Context, domain.Party) (Session, error) {
	return responderSession{d.responder}, nil
}

type responderSession struct{ responder *Responder }

func (s responderSession) Propose(ctx context.Context, p ProposedTransition) (SignedResponse, error) {
	return s.responder.Handle(ctx, p)
}

// tamperDialer mutates the transition in flight before the responder sees it.
type tamperDialer struct {
	responder *Responder
	tamper    func(*ProposedTransition)
}

func (d *tamperDialer) Dial(context.Context, domain.Party) (Session, error) {
	return tamperSession{d.responder, d.tamper}, nil
}

type tamperSession struct {
	responder *Responder
	tamper    func(*ProposedTransition)
}

func (s tamperSession) Propose(ctx context.Context, p ProposedTransition) (SignedResponse, error) {
	s.tamper(&p)
	return s.responder.Handle(ctx, p)
}

// harness wires two parties, a regulator-observed pending trade and an
// in-memory notary.
type harness struct {
	initiator domain.Party
	responder *Responder
	notary    *memNotary
	keys      signature.KeyRing
	signerA   *signature.Signer
	signerB   *signature.Signer
	pending   domain.TradeRecord
}

func newHarness() *harness {
	signerA := signature.NewSeedSigner("PartyA", "seed-a")
	signerB := signature.NewSeedSigner("PartyB", "seed-b")
	keys := signature.KeyRing{
		"PartyA": signerA.Public(),
		"PartyB": signerB.Public(),
	}
	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)

	h := &harness{
		initiator: "PartyA",
		responder: NewResponder("PartyB", signerB, keys, quiet),
		notary:    newMemNotary(keys),
		keys:      keys,
		signerA:   signerA,
		signerB:   signerB,
		pending:   pendingTrade(),
	}
	h.notary.register(h.pending)
	return h
}

func pendingTrade() domain.TradeRecord {
	return domain.TradeRecord{
		Kind:            domain.KindTrade,
		RecordID:        uuid.New(),
		LinearID:        uuid.New(),
		SellValue:       100,
		SellCurrency:    "USD",
		BuyValue:        90,
		BuyCurrency:     "EUR",
		InitiatingParty: "PartyA",
		CounterParty:    "PartyB",
		Regulator:       "Regulator",
		Status:          domain.StatusPending,
		UserID:          "user-1",
		AssetCode:       "TSLA",
		OrderType:       "LIMIT",
	}
}

func (h *harness) partyContext(dialer Dialer) PartyContext {
	quiet := logrus.New()
	quiet.SetLevel(logrus.PanicLevel)
	return PartyContext{
		Identity: h.initiator,
		Signer:   h.signerA,
		Keys:     h.keys,
		Ledger:   h.notary,
		Notary:   h.notary,
		Dialer:   dialer,
		Logger:   quiet,
	}
}

func int64p(v int64) *int64    { return &v }
func stringp(s string) *string { return &s }
