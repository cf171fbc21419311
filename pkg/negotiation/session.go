package negotiation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"tradelane/pkg/domain"
	"tradelane/pkg/signature"
)

var (
	// ErrSessionFailure: the counterparty was unreachable or the session
	// closed without a response. Terminal for the instance; the caller may
	// start a fresh negotiation.
	ErrSessionFailure = errors.New("negotiation session failed")
	// ErrIncompleteSignatures: the returned signature set is not exactly the
	// required signer set.
	ErrIncompleteSignatures = errors.New("signature set does not match required signers")
)

// ProposedTransition is the initiator's opening message: the transition body
// plus the signatures collected so far (the initiator's own).
type ProposedTransition struct {
	Transition        domain.CandidateTransition `json:"transition"`
	PartialSignatures []signature.Envelope       `json:"partial_signatures"`
}

// SignedResponse is the counterparty's acceptance: the full signature set
// over the unchanged transition body.
type SignedResponse struct {
	FullSignatures []signature.Envelope `json:"full_signatures"`
}

// Session is one in-order message exchange with a counterparty. A Propose
// error is either a *domain.RejectionNotice (explicit refusal) or wraps
// ErrSessionFailure.
type Session interface {
	Propose(ctx context.Context, p ProposedTransition) (SignedResponse, error)
}

// Dialer opens sessions to counterparties by identity.
type Dialer interface {
	Dial(ctx context.Context, counterparty domain.Party) (Session, error)
}

// HTTPDialer resolves counterparties to their proposal endpoints.
type HTTPDialer struct {
	Endpoints map[domain.Party]string
	Client    *http.Client
}

func (d *HTTPDialer) Dial(_ context.Context, counterparty domain.Party) (Session, error) {
	base, ok := d.Endpoints[counterparty]
	if !ok {
		return nil, fmt.Errorf("%w: no endpoint for party %q", ErrSessionFailure, counterparty)
	}
	client := d.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &httpSession{url: base + "/trades/propose", client: client}, nil
}

type httpSession struct {
	url    string
	client *http.Client
}

func (s *httpSession) Propose(ctx context.Context, p ProposedTransition) (SignedResponse, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return SignedResponse{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return SignedResponse{}, err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return SignedResponse{}, fmt.Errorf("%w: %v", ErrSessionFailure, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var out SignedResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return SignedResponse{}, fmt.Errorf("%w: malformed response: %v", ErrSessionFailure, err)
		}
		return out, nil
	case http.StatusConflict:
		var notice domain.RejectionNotice
		if err := json.NewDecoder(resp.Body).Decode(&notice); err != nil || notice.RuleViolated == "" {
			return SignedResponse{}, fmt.Errorf("%w: malformed rejection", ErrSessionFailure)
		}
		return SignedResponse{}, &notice
	default:
		return SignedResponse{}, fmt.Errorf("%w: counterparty returned status %d", ErrSessionFailure, resp.StatusCode)
	}
}
