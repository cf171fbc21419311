package notary

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tradelane/pkg/domain"
	"tradelane/pkg/negotiation"
	"tradelane/pkg/signature"
)

// LedgerStore is the persistence the notary needs: point lookup plus the
// atomic consume-and-record step.
type LedgerStore interface {
	FindUnconsumed(ctx context.Context, linearID uuid.UUID, status domain.TradeStatus) (domain.TradeRecord, error)
	InsertGenesis(ctx context.Context, rec domain.TradeRecord) error
	ConsumeAndRecord(ctx context.Context, transitionID string, action domain.ActionTag, input, output domain.TradeRecord) (already bool, err error)
}

// Publisher emits commit events for the read-model projection. Publishing is
// best-effort: a failed publish never rolls back a commit.
type Publisher interface {
	PublishCommitted(ctx context.Context, ev domain.TradeCommitted) error
}

// Service is the trusted third party arbitrating record consumption. It
// re-verifies structure and every signature itself; parties are not trusted
// to have done so.
type Service struct {
	store     LedgerStore
	keys      signature.KeyRing
	publisher Publisher
	logger    *logrus.Logger
}

func NewService(store LedgerStore, keys signature.KeyRing, publisher Publisher, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	return &Service{store: store, keys: keys, publisher: publisher, logger: logger}
}

// Notarize atomically consumes the transition's input and registers its
// output. Idempotent per transition identity: a replayed submission returns
// the original result. A lost race returns domain.ErrConflict.
func (n *Service) Notarize(ctx context.Context, st negotiation.SignedTransition) (negotiation.CommitResult, error) {
	if err := negotiation.Verify(st.Transition); err != nil {
		return negotiation.CommitResult{}, err
	}
	if err := negotiation.VerifySignatures(st, n.keys); err != nil {
		return negotiation.CommitResult{}, err
	}

	id, err := st.ID()
	if err != nil {
		return negotiation.CommitResult{}, err
	}
	input, output := st.Transition.Inputs[0], st.Transition.Outputs[0]

	already, err := n.store.ConsumeAndRecord(ctx, id, st.Transition.Action, input, output)
	if err != nil {
		return negotiation.CommitResult{}, err
	}
	if already {
		n.logger.WithField("transition_id", id).Info("replayed transition, returning prior commit")
		return negotiation.CommitResult{TransitionID: id, Record: output, Replayed: true}, nil
	}

	n.logger.WithFields(logrus.Fields{
		"transition_id": id,
		"linear_id":     output.LinearID,
		"action":        st.Transition.Action,
		"status":        output.Status,
	}).Info("transition notarized")

	if n.publisher != nil {
		ev := domain.TradeCommitted{TransitionID: id, Record: output, CommittedAt: time.Now().UTC()}
		if err := n.publisher.PublishCommitted(ctx, ev); err != nil {
			n.logger.WithError(err).Warn("commit event publish failed")
		}
	}
	return negotiation.CommitResult{TransitionID: id, Record: output}, nil
}

// RegisterGenesis validates and records an issuance: the PENDING record a
// negotiation later builds on. It consumes nothing.
func (n *Service) RegisterGenesis(ctx context.Context, rec domain.TradeRecord) (domain.TradeRecord, error) {
	if rec.Kind == "" {
		rec.Kind = domain.KindTrade
	}
	if rec.RecordID == uuid.Nil {
		rec.RecordID = uuid.New()
	}
	if rec.LinearID == uuid.Nil {
		rec.LinearID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = domain.StatusPending
	}
	if err := rec.Validate(); err != nil {
		return domain.TradeRecord{}, fmt.Errorf("genesis record: %w", err)
	}
	if err := n.store.InsertGenesis(ctx, rec); err != nil {
		return domain.TradeRecord{}, err
	}
	n.logger.WithFields(logrus.Fields{
		"linear_id": rec.LinearID,
		"record_id": rec.RecordID,
	}).Info("trade issued")
	return rec, nil
}
