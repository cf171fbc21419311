package negotiation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"tradelane/pkg/domain"
)

// CommitResult confirms a notarized transition.
type CommitResult struct {
	TransitionID string             `json:"transition_id"`
	Record       domain.TradeRecord `json:"record"`
	Replayed     bool               `json:"replayed,omitempty"`
}

// Notary is the single serialization point of the protocol: Commit atomically
// consumes the transition's input record and registers its output, returning
// domain.ErrConflict if another transition consumed the input first.
// Idempotent per transition identity.
type Notary interface {
	Commit(ctx context.Context, st SignedTransition) (CommitResult, error)
}

// Client talks to a remote notary service. It doubles as the initiator's
// Ledger, since the notary exposes the unconsumed-record lookup.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) Commit(ctx context.Context, st SignedTransition) (CommitResult, error) {
	body, err := json.Marshal(st)
	if err != nil {
		return CommitResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/notary/commit", bytes.NewReader(body))
	if err != nil {
		return CommitResult{}, err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return CommitResult{}, fmt.Errorf("notary unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out CommitResult
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return CommitResult{}, fmt.Errorf("malformed notary response: %w", err)
		}
		return out, nil
	case http.StatusConflict:
		return CommitResult{}, domain.ErrConflict
	default:
		return CommitResult{}, fmt.Errorf("notary returned status %d", resp.StatusCode)
	}
}

var _ Notary = (*Client)(nil)
var _ Ledger = (*Client)(nil)

// FindUnconsumed queries the notary's ledger for the current unconsumed
// record of linearID, optionally filtered by status.
func (c *Client) FindUnconsumed(ctx context.Context, linearID uuid.UUID, status domain.TradeStatus) (domain.TradeRecord, error) {
	u := c.BaseURL + "/notary/records/" + linearID.String()
	if status != "" {
		u += "?status=" + url.QueryEscape(string(status))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.TradeRecord{}, err
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return domain.TradeRecord{}, fmt.Errorf("notary unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var rec domain.TradeRecord
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return domain.TradeRecord{}, fmt.Errorf("malformed notary response: %w", err)
		}
		return rec, nil
	case http.StatusNotFound:
		return domain.TradeRecord{}, domain.ErrNotFound
	default:
		return domain.TradeRecord{}, fmt.Errorf("notary returned status %d", resp.StatusCode)
	}
}
