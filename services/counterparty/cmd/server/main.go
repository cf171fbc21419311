package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"tradelane/pkg/domain"
	"tradelane/pkg/httpx"
	"tradelane/pkg/negotiation"
	"tradelane/pkg/signature"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	party := domain.Party(os.Getenv("PARTY_NAME"))
	seed := os.Getenv("PARTY_SEED")
	if party == "" || seed == "" {
		logger.Fatal("PARTY_NAME and PARTY_SEED are required")
	}
	signer := signature.NewSeedSigner(string(party), seed)
	keys := signature.ParseSeedRing(os.Getenv("PARTY_SEEDS"))
	keys[string(party)] = signer.Public()

	responder := negotiation.NewResponder(party, signer, keys, logger)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Post("/trades/propose", func(w http.ResponseWriter, r *http.Request) {
		var prop negotiation.ProposedTransition
		if err := httpx.ReadJSON(r, &prop); err != nil {
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

	port := os.Getenv("SERVICE_PORT")
	if port == "" {
		port = "8091"
	}
	server := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		logger.Infof("counterparty %s listening on :%s", party, port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down counterparty")
	_ = server.Shutdown(context.Background())
}
