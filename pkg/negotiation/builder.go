package negotiation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"tradelane/pkg/domain"
)

// Proposal carries the fields an operator proposes for the next version of a
// trade. Nil fields keep the prior value; setting a field the action's policy
// declares immutable fails the build.
type Proposal struct {
	Action domain.ActionTag `json:"action"`

	SellValue    *int64  `json:"sell_value,omitempty"`
	SellCurrency *string `json:"sell_currency,omitempty"`
	BuyValue     *int64  `json:"buy_value,omitempty"`
	BuyCurrency  *string `json:"buy_currency,omitempty"`

	TransactionAmount *int64 `json:"transaction_amount,omitempty"`
	TransactionFees   *int64 `json:"transaction_fees,omitempty"`
	TransactionUnits  *int64 `json:"transaction_units,omitempty"`
}

// Build constructs a candidate transition consuming the current unconsumed
// record of linearID and producing its successor. Pure with respect to the
// ledger: nothing is written here, and the returned candidate has no effect
// until signed and notarized.
func Build(ctx context.Context, ledger Ledger, linearID uuid.UUID, p Proposal, proposer domain.Party) (domain.CandidateTransition, error) {
	policy, ok := domain.PolicyFor(p.Action)
	if !ok {
		return domain.CandidateTransition{}, fmt.Errorf("action %q: %w", p.Action, domain.ErrInvalidTransition)
	}

	input, err := ledger.FindUnconsumed(ctx, linearID, "")
	if err != nil {
		return domain.CandidateTransition{}, err
	}
	if input.Status != policy.Precondition {
		return domain.CandidateTransition{}, fmt.Errorf("record %s has status %s, %s consumes %s: %w",
			input.RecordID, input.Status, p.Action, policy.Precondition, domain.ErrInvalidTransition)
	}
	if proposer != input.InitiatingParty && proposer != input.CounterParty {
		return domain.CandidateTransition{}, fmt.Errorf("proposer %q is not a negotiating party: %w",
			proposer, domain.ErrInvalidTransition)
	}

	output := input
	output.RecordID = uuid.New()
	output.Status = policy.Outcome
	if err := applyProposal(&output, p, policy); err != nil {
		return domain.CandidateTransition{}, err
	}
	if err := output.Validate(); err != nil {
		return domain.CandidateTransition{}, fmt.Errorf("proposed record: %w", err)
	}

	return domain.CandidateTransition{
		Action:          p.Action,
		Inputs:          []domain.TradeRecord{input},
		Outputs:         []domain.TradeRecord{output},
		RequiredSigners: []domain.Party{output.InitiatingParty, output.CounterParty},
	}, nil
}

func applyProposal(out *domain.TradeRecord, p Proposal, policy domain.ActionPolicy) error {
	set := func(f domain.Field, apply func()) error {
		if !policy.Mutable[f] {
			return fmt.Errorf("field %s is immutable for %s: %w", f, p.Action, domain.ErrInvalidTransition)
		}
		apply()
		return nil
	}
	type edit struct {
		field domain.Field
		has   bool
		apply func()
	}
	edits := []edit{
		{domain.FieldSellValue, p.SellValue != nil, func() { out.SellValue = *p.SellValue }},
		{domain.FieldSellCurrency, p.SellCurrency != nil, func() { out.SellCurrency = *p.SellCurrency }},
		{domain.FieldBuyValue, p.BuyValue != nil, func() { out.BuyValue = *p.BuyValue }},
		{domain.FieldBuyCurrency, p.BuyCurrency != nil, func() { out.BuyCurrency = *p.BuyCurrency }},
		{domain.FieldTransactionAmount, p.TransactionAmount != nil, func() { out.TransactionAmount = *p.TransactionAmount }},
		{domain.FieldTransactionFees, p.TransactionFees != nil, func() { out.TransactionFees = *p.TransactionFees }},
		{domain.FieldTransactionUnits, p.TransactionUnits != nil, func() { out.TransactionUnits = *p.TransactionUnits }},
	}
	for _, e := range edits {
		if !e.has {
			continue
		}
		if err := set(e.field, e.apply); err != nil {
			return err
		}
	}
	return nil
}
