package negotiation

import (
	"fmt"

	"tradelane/pkg/domain"
)

// Rule names surfaced in contract violations and rejection notices.
const (
	RuleSingleInputOutput    = "SingleInputOutput"
	RuleLinearIDPreserved    = "LinearIdPreserved"
	RuleUnexpectedOutputType = "UnexpectedOutputType"
	RuleRequiredSignerSet    = "RequiredSignerSet"
	RuleImmutableField       = "ImmutableFieldChanged"
	RuleInvalidSignature     = "InvalidPartialSignature"
)

// Verify checks a candidate transition against the structural rules of the
// protocol, in order, failing on the first violation. It is deterministic and
// side-effect-free: every party asked to sign runs it independently, and it
// is the sole gate before a signature is released.
func Verify(c domain.CandidateTransition) error {
	// Rule 1: exactly one input and one output.
	if len(c.Inputs) != 1 || len(c.Outputs) != 1 {
		return &domain.ContractViolation{
			Rule:   RuleSingleInputOutput,
			Detail: fmt.Sprintf("%d inputs, %d outputs", len(c.Inputs), len(c.Outputs)),
		}
	}
	in, out := c.Inputs[0], c.Outputs[0]

	// Rule 2: the output continues the same linear chain.
	if out.LinearID != in.LinearID {
		return &domain.ContractViolation{Rule: RuleLinearIDPreserved}
	}

	// Rule 3: the output is a well-formed record of the kind and status this
	// action produces.
	policy, ok := domain.PolicyFor(c.Action)
	if !ok {
		return &domain.ContractViolation{
			Rule:   RuleUnexpectedOutputType,
			Detail: fmt.Sprintf("unknown action %q", c.Action),
		}
	}
	if out.Kind != domain.KindTrade {
		return &domain.ContractViolation{
			Rule:   RuleUnexpectedOutputType,
			Detail: fmt.Sprintf("output kind %q", out.Kind),
		}
	}
	if err := out.Validate(); err != nil {
		return &domain.ContractViolation{Rule: RuleUnexpectedOutputType, Detail: err.Error()}
	}
	if out.Status != policy.Outcome {
		return &domain.ContractViolation{
			Rule:   RuleUnexpectedOutputType,
			Detail: fmt.Sprintf("output status %q, action produces %q", out.Status, policy.Outcome),
		}
	}

	// Rule 4: both negotiating parties of the output sign, nobody else.
	if err := verifySignerSet(c, out); err != nil {
		return err
	}

	// Rule 5: fields the action declares immutable are unchanged.
	for _, f := range domain.AllFields {
		if policy.Mutable[f] {
			continue
		}
		if domain.FieldValue(in, f) != domain.FieldValue(out, f) {
			return &domain.ContractViolation{Rule: RuleImmutableField, Detail: string(f)}
		}
	}
	return nil
}

func verifySignerSet(c domain.CandidateTransition, out domain.TradeRecord) error {
	if len(c.RequiredSigners) == 0 {
		return &domain.ContractViolation{Rule: RuleRequiredSignerSet, Detail: "empty signer set"}
	}
	seen := make(map[domain.Party]bool, len(c.RequiredSigners))
	for _, p := range c.RequiredSigners {
		if p != out.InitiatingParty && p != out.CounterParty {
			return &domain.ContractViolation{
				Rule:   RuleRequiredSignerSet,
				Detail: fmt.Sprintf("%q is not a negotiating party", p),
			}
		}
		if seen[p] {
			return &domain.ContractViolation{
				Rule:   RuleRequiredSignerSet,
				Detail: fmt.Sprintf("duplicate signer %q", p),
			}
		}
		seen[p] = true
	}
	// Every action in this protocol requires both parties.
	if !seen[out.InitiatingParty] || !seen[out.CounterParty] {
		return &domain.ContractViolation{
			Rule:   RuleRequiredSignerSet,
			Detail: "both negotiating parties must sign",
		}
	}
	return nil
}
