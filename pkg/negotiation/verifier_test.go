package negotiation

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"tradelane/pkg/domain"
)

func counterCandidate() domain.CandidateTransition {
	input := pendingTrade()
	output := input
	output.RecordID = uuid.New()
	output.Status = domain.StatusCountered
	output.SellValue = 95
	return domain.CandidateTransition{
		Action:          domain.ActionCounterTrade,
		Inputs:          []domain.TradeRecord{input},
		Outputs:         []domain.TradeRecord{output},
		RequiredSigners: []domain.Party{"PartyA", "PartyB"},
	}
}

func violatedRule(t *testing.T, err error) string {
	t.Helper()
	var v *domain.ContractViolation
	if !errors.As(err, &v) {
		t.Fatalf("expected contract violation, got %v", err)
	}
	return v.Rule
}

func TestVerifyAcceptsValidCounter(t *testing.T) {
	if err := Verify(counterCandidate()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRuleOrder(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.CandidateTransition)
		rule   string
	}{
		{"no inputs", func(c *domain.CandidateTransition) { c.Inputs = nil }, RuleSingleInputOutput},
		{"two outputs", func(c *domain.CandidateTransition) {
			c.Outputs = append(c.Outputs, c.Outputs[0])
		}, RuleSingleInputOutput},
		{"linear id changed", func(c *domain.CandidateTransition) {
			c.Outputs[0].LinearID = uuid.New()
		}, RuleLinearIDPreserved},
		{"unknown action", func(c *domain.CandidateTransition) { c.Action = "Reprice" }, RuleUnexpectedOutputType},
		{"wrong output kind", func(c *domain.CandidateTransition) { c.Outputs[0].Kind = "BOND" }, RuleUnexpectedOutputType},
		{"wrong output status", func(c *domain.CandidateTransition) {
			c.Outputs[0].Status = domain.StatusSettled
		}, RuleUnexpectedOutputType},
		{"negative amount", func(c *domain.CandidateTransition) { c.Outputs[0].SellValue = -1 }, RuleUnexpectedOutputType},
		{"empty signer set", func(c *domain.CandidateTransition) { c.RequiredSigners = nil }, RuleRequiredSignerSet},
		{"outsider signer", func(c *domain.CandidateTransition) {
			c.RequiredSigners = []domain.Party{"PartyA", "Mallory"}
		}, RuleRequiredSignerSet},
		{"missing counterparty signer", func(c *domain.CandidateTransition) {
			c.RequiredSigners = []domain.Party{"PartyA"}
		}, RuleRequiredSignerSet},
		{"regulator reassigned", func(c *domain.CandidateTransition) {
			c.Outputs[0].Regulator = "OtherRegulator"
		}, RuleImmutableField},
		{"user id changed", func(c *domain.CandidateTransition) { c.Outputs[0].UserID = "user-2" }, RuleImmutableField},
		{"settlement fields changed on counter", func(c *domain.CandidateTransition) {
			c.Outputs[0].TransactionAmount = 7
		}, RuleImmutableField},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := counterCandidate()
			tc.mutate(&c)
			if got := violatedRule(t, Verify(c)); got != tc.rule {
				t.Fatalf("expected rule %s, got %s", tc.rule, got)
			}
		})
	}
}

func TestVerifyCounterMayChangeNotionals(t *testing.T) {
	c := counterCandidate()
	c.Outputs[0].BuyValue = 80
	c.Outputs[0].BuyCurrency = "GBP"
	if err := Verify(c); err != nil {
		t.Fatalf("counter-trade permits new notionals: %v", err)
	}
}

func TestVerifySettleImmutability(t *testing.T) {
	input := pendingTrade()
	input.Status = domain.StatusCountered
	output := input
	output.RecordID = uuid.New()
	output.Status = domain.StatusSettled
	output.TransactionAmount = 9500
	output.TransactionFees = 5
	output.TransactionUnits = 100
	c := domain.CandidateTransition{
		Action:          domain.ActionSettleTrade,
		Inputs:          []domain.TradeRecord{input},
		Outputs:         []domain.TradeRecord{output},
		RequiredSigners: []domain.Party{"PartyA", "PartyB"},
	}
	if err := Verify(c); err != nil {
		t.Fatalf("Verify settle: %v", err)
	}

	c.Outputs[0].SellValue = 42
	if got := violatedRule(t, Verify(c)); got != RuleImmutableField {
		t.Fatalf("settle must not change notionals, got rule %s", got)
	}
}

// Determinism: the same candidate yields the same verdict, and the same
// violated rule, no matter how often or where it runs.
func TestVerifyDeterministic(t *testing.T) {
	good := counterCandidate()
	for i := 0; i < 3; i++ {
		if err := Verify(good); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	bad := counterCandidate()
	bad.Outputs[0].LinearID = uuid.New()
	first := violatedRule(t, Verify(bad))
	for i := 0; i < 3; i++ {
		if got := violatedRule(t, Verify(bad)); got != first {
			t.Fatalf("run %d: rule changed from %s to %s", i, first, got)
		}
	}
}
