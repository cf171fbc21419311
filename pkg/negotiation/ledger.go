package negotiation

import (
	"context"

	"github.com/google/uuid"

	"tradelane/pkg/domain"
)

// Ledger is the query side of the ledger store. An empty status filter
// matches any status. Implementations return domain.ErrNotFound when no
// unconsumed record matches.
type Ledger interface {
	FindUnconsumed(ctx context.Context, linearID uuid.UUID, status domain.TradeStatus) (domain.TradeRecord, error)
}
