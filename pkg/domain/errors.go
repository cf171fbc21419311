package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound: no unconsumed record exists for the queried linear id.
	ErrNotFound = errors.New("no unconsumed record found")
	// ErrInvalidTransition: the prior record is not in a status this action
	// may consume.
	ErrInvalidTransition = errors.New("record status not eligible for transition")
	// ErrConflict: notarization lost the race, the input record was already
	// consumed by another transition.
	ErrConflict = errors.New("input record already consumed")
)

// ContractViolation reports which structural verification rule a candidate
// transition failed. Verification is all-or-nothing; the first violated rule
// is reported.
type ContractViolation struct {
	Rule   string
	Detail string
}

func (e *ContractViolation) Error() string {
	if e.Detail == "" {
		return "contract violation: " + e.Rule
	}
	return fmt.Sprintf("contract violation: %s (%s)", e.Rule, e.Detail)
}

// RejectionNotice is the counterparty's explicit refusal of a proposed
// transition, carrying the rule it found violated.
type RejectionNotice struct {
	RuleViolated string `json:"rule_violated"`
	Reason       string `json:"reason,omitempty"`
}

func (e *RejectionNotice) Error() string {
	if e.Reason == "" {
		return "proposal rejected: " + e.RuleViolated
	}
	return fmt.Sprintf("proposal rejected: %s (%s)", e.RuleViolated, e.Reason)
}
