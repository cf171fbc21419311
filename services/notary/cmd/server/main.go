package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"tradelane/pkg/db"
	"tradelane/pkg/domain"
	"tradelane/pkg/httpx"
	"tradelane/pkg/negotiation"
	"tradelane/pkg/signature"
	"tradelane/services/notary/internal/events"
	"tradelane/services/notary/internal/notary"
	"tradelane/services/notary/internal/store"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL is required")
	}
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		logger.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	st := store.New(pool)
	if err := st.Init(ctx); err != nil {
		logger.Fatalf("failed to init schema: %v", err)
	}

	var publisher notary.Publisher
	if url := os.Getenv("AMQP_URL"); url != "" {
		exchange := os.Getenv("COMMIT_EXCHANGE")
		if exchange == "" {
			exchange = "trade.commits"
		}
		pub, err := events.NewPublisher(url, exchange, logger)
		if err != nil {
			logger.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer pub.Close()
		publisher = pub
	}

	keys := signature.ParseSeedRing(os.Getenv("PARTY_SEEDS"))
	svc := notary.NewService(st, keys, publisher, logger)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })

	r.Post("/notary/commit", func(w http.ResponseWriter, r *http.Request) {
		var signed negotiation.SignedTransition
		if err := httpx.ReadJSON(r, &signed); err != nil {
			httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
			return
		}
		result, err := svc.Notarize(r.Context(), signed)
		if err != nil {
			writeNotarizeError(w, err)
			return
		}
		httpx.WriteJSON(w, 200, result)
	})

	r.Get("/notary/records/{linear_id}", func(w http.ResponseWriter, r *http.Request) {
		linearID, err := uuid.Parse(chi.URLParam(r, "linear_id"))
		if err != nil {
			httpx.WriteError(w, 400, "BAD_LINEAR_ID", err.Error(), nil)
			return
		}
		status := domain.TradeStatus(r.URL.Query().Get("status"))
		rec, err := st.FindUnconsumed(r.Context(), linearID, status)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				httpx.WriteError(w, 404, "NOT_FOUND", err.Error(), nil)
				return
			}
			httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
			return
		}
		httpx.WriteJSON(w, 200, rec)
	})

	r.Post("/notary/records", func(w http.ResponseWriter, r *http.Request) {
		var rec domain.TradeRecord
		if err := httpx.ReadJSON(r, &rec); err != nil {
			httpx.WriteError(w, 400, "BAD_JSON", err.Error(), nil)
			return
		}
		issued, err := svc.RegisterGenesis(r.Context(), rec)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				httpx.WriteError(w, 409, "CONFLICT", "an unconsumed record already exists for this linear id", nil)
				return
			}
			httpx.WriteError(w, 400, "INVALID_RECORD", err.Error(), nil)
			return
		}
		httpx.WriteJSON(w, 201, issued)
	})

	port := os.Getenv("SERVICE_PORT")
	if port == "" {
		port = "8090"
	}
	server := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		logger.Infof("notary listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down notary")
	_ = server.Shutdown(context.Background())
}

func writeNotarizeError(w http.ResponseWriter, err error) {
	var violation *domain.ContractViolation
	switch {
	case errors.Is(err, domain.ErrConflict):
		httpx.WriteError(w, 409, "CONFLICT", err.Error(), nil)
	case errors.As(err, &violation):
		httpx.WriteError(w, 422, "CONTRACT_VIOLATION", err.Error(), map[string]any{"rule": violation.Rule})
	case errors.Is(err, negotiation.ErrIncompleteSignatures),
		errors.Is(err, signature.ErrInvalidSignature),
		errors.Is(err, signature.ErrUnknownSigner):
		httpx.WriteError(w, 422, "BAD_SIGNATURES", err.Error(), nil)
	default:
		httpx.WriteError(w, 500, "NOTARY_ERROR", err.Error(), nil)
	}
}
