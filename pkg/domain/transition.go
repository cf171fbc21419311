package domain

// ActionTag names the negotiation step a transition performs. The set is
// closed; verification matches on it exhaustively.
type ActionTag string

const (
	ActionIssueTrade   ActionTag = "IssueTrade"
	ActionCounterTrade ActionTag = "CounterTrade"
	ActionSettleTrade  ActionTag = "SettleTrade"
)

// CandidateTransition is a proposed consume-and-create step: it references the
// records it consumes and the records it creates, tagged with the action and
// the parties whose signatures the step requires. It carries no signatures and
// has no effect until notarized.
type CandidateTransition struct {
	Action          ActionTag     `json:"action"`
	Inputs          []TradeRecord `json:"inputs"`
	Outputs         []TradeRecord `json:"outputs"`
	RequiredSigners []Party       `json:"required_signers"`
}

// Requires reports whether p is in the required signer set.
func (c CandidateTransition) Requires(p Party) bool {
	for _, s := range c.RequiredSigners {
		if s == p {
			return true
		}
	}
	return false
}
