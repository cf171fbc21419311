package domain

import "time"

// TradeCommitted is published by the notary after a transition commits. The
// read-model projection consumes it; it is informational and never replayed
// into ledger state.
type TradeCommitted struct {
	TransitionID string      `json:"transition_id"`
	Record       TradeRecord `json:"record"`
	CommittedAt  time.Time   `json:"committed_at"`
}
