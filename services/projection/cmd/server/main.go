package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"tradelane/pkg/httpx"
	"tradelane/services/projection/internal/consumer"
	"tradelane/services/projection/internal/readmodel"
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
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logger.Fatalf("failed to open read model db: %v", err)
	}

	projector := readmodel.NewProjector(gdb, logger)
	if err := projector.Migrate(); err != nil {
		logger.Fatalf("failed to migrate read model: %v", err)
	}

	var cache *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cache = redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
		if err := cache.Ping(ctx).Err(); err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer cache.Close()
	}
	ttl := 30 * time.Second
	if raw := os.Getenv("CACHE_TTL_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil {
			logger.Fatalf("parse CACHE_TTL_SECONDS: %v", err)
		}
		ttl = time.Duration(secs) * time.Second
	}
	query := readmodel.NewQuery(gdb, cache, ttl)

	amqpURL := os.Getenv("AMQP_URL")
	if amqpURL == "" {
		logger.Fatal("AMQP_URL is required")
	}
	exchange := os.Getenv("COMMIT_EXCHANGE")
	if exchange == "" {
		exchange = "trade.commits"
	}
	cons := consumer.New(amqpURL, exchange, projector, query, logger)
	if err := cons.Start(ctx); err != nil {
		logger.Fatalf("failed to start commit consumer: %v", err)
	}
	defer cons.Close()

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	r.Get("/trades/{linear_id}", func(w http.ResponseWriter, r *http.Request) {
		row, err := query.Latest(r.Context(), chi.URLParam(r, "linear_id"))
		if err != nil {
			if errors.Is(err, readmodel.ErrNotProjected) {
				httpx.WriteError(w, 404, "NOT_FOUND", err.Error(), nil)
				return
			}
			httpx.WriteError(w, 500, "DB_ERROR", err.Error(), nil)
			return
		}
		httpx.WriteJSON(w, 200, row)
	})

	port := os.Getenv("SERVICE_PORT")
	if port == "" {
		port = "8092"
	}
	server := &http.Server{Addr: ":" + port, Handler: r}

	go func() {
		logger.Infof("projection listening on :%s", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down projection")
	_ = server.Shutdown(context.Background())
}
