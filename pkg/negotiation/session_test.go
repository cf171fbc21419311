package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradelane/pkg/domain"
	"tradelane/pkg/httpx"
	"tradelane/pkg/signature"
)

// proposalServer serves the counterparty wire protocol over a real HTTP
// round trip, backed by the in-process responder.
func proposalServer(t *testing.T, responder *Responder) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /trades/propose", func(w http.ResponseWriter, r *http.Request) {
		var prop ProposedTransition
		if err := json.NewDecoder(r.Body).Decode(&prop); err != nil {
			httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
			return
		}
		resp, err := responder.Handle(r.Context(), prop)
		if err != nil {
			var notice *domain.RejectionNotice
			if errors.As(err, &notice) {
				httpx.WriteJSON(w, 409, notice)
				return
			}
			httpx.WriteError(w, 500, "RESPONDER_ERROR", err.Error(), nil)
			return
		}
		httpx.WriteJSON(w, 200, resp)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPSessionRoundTrip(t *testing.T) {
	h := newHarness()
	srv := proposalServer(t, h.responder)
	candidate, env := signedCounter(t, h)

	dialer := &HTTPDialer{Endpoints: map[domain.Party]string{"PartyB": srv.URL}}
	sess, err := dialer.Dial(context.Background(), "PartyB")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	resp, err := sess.Propose(context.Background(), ProposedTransition{
		Transition:        candidate,
		PartialSignatures: []signature.Envelope{env},
	})
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	full := SignedTransition{Transition: candidate, Signatures: resp.FullSignatures}
	if err := VerifySignatures(full, h.keys); err != nil {
		t.Fatalf("VerifySignatures after wire round trip: %v", err)
	}
}

func TestHTTPSessionCarriesRejection(t *testing.T) {
	h := newHarness()
	srv := proposalServer(t, h.responder)
	candidate, env := signedCounter(t, h)
	candidate.Outputs[0].Kind = "BOND"
	env, _ = h.signerA.Sign(candidate)

	dialer := &HTTPDialer{Endpoints: map[domain.Party]string{"PartyB": srv.URL}}
	sess, _ := dialer.Dial(context.Background(), "PartyB")
	_, err := sess.Propose(context.Background(), ProposedTransition{
		Transition:        candidate,
		PartialSignatures: []signature.Envelope{env},
	})
	var notice *domain.RejectionNotice
	if !errors.As(err, &notice) {
		t.Fatalf("expected RejectionNotice over the wire, got %v", err)
	}
	if notice.RuleViolated != RuleUnexpectedOutputType {
		t.Fatalf("expected UnexpectedOutputType, got %s", notice.RuleViolated)
	}
}

func TestHTTPSessionFailures(t *testing.T) {
	h := newHarness()
	candidate, env := signedCounter(t, h)
	prop := ProposedTransition{Transition: candidate, PartialSignatures: []signature.Envelope{env}}

	t.Run("unknown party", func(t *testing.T) {
		dialer := &HTTPDialer{Endpoints: map[domain.Party]string{}}
		if _, err := dialer.Dial(context.Background(), "PartyB"); !errors.Is(err, ErrSessionFailure) {
			t.Fatalf("expected ErrSessionFailure, got %v", err)
		}
	})

	t.Run("server gone", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()
		dialer := &HTTPDialer{Endpoints: map[domain.Party]string{"PartyB": srv.URL}}
		sess, err := dialer.Dial(context.Background(), "PartyB")
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		if _, err := sess.Propose(context.Background(), prop); !errors.Is(err, ErrSessionFailure) {
			t.Fatalf("expected ErrSessionFailure, got %v", err)
		}
	})

	t.Run("unexpected status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))
		t.Cleanup(srv.Close)
		dialer := &HTTPDialer{Endpoints: map[domain.Party]string{"PartyB": srv.URL}}
		sess, _ := dialer.Dial(context.Background(), "PartyB")
		if _, err := sess.Propose(context.Background(), prop); !errors.Is(err, ErrSessionFailure) {
			t.Fatalf("expected ErrSessionFailure, got %v", err)
		}
	})
}

func TestNotaryClientMapsConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/notary/commit" {
			w.WriteHeader(404)
			return
		}
		httpx.WriteError(w, 409, "CONFLICT", "input record already consumed", nil)
	}))
	t.Cleanup(srv.Close)

	client := &Client{BaseURL: srv.URL}
	_, err := client.Commit(context.Background(), SignedTransition{})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestNotaryClientFindUnconsumed(t *testing.T) {
	h := newHarness()
	rec := h.pending
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("status") == string(domain.StatusSettled) {
			httpx.WriteError(w, 404, "NOT_FOUND", "no unconsumed record found", nil)
			return
		}
		httpx.WriteJSON(w, 200, rec)
	}))
	t.Cleanup(srv.Close)

	client := &Client{BaseURL: srv.URL}
	got, err := client.FindUnconsumed(context.Background(), rec.LinearID, "")
	if err != nil {
		t.Fatalf("FindUnconsumed: %v", err)
	}
	if got.RecordID != rec.RecordID {
		t.Fatalf("record mismatch")
	}
	_, err = client.FindUnconsumed(context.Background(), rec.LinearID, domain.StatusSettled)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
