package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/trustnet/trust-engine/config"
	"github.com/trustnet/trust-engine/internal/metrics"
	"github.com/trustnet/trust-engine/internal/portfolio"
	"github.com/trustnet/trust-engine/internal/pricefeed"
	"github.com/trustnet/trust-engine/internal/store"
	"github.com/trustnet/trust-engine/internal/token"
	"github.com/trustnet/trust-engine/internal/trust"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	// --- Initialize store ---
	var st store.Store
	var cleanup []func()

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		pool, err := pgxpool.New(context.Background(), dbURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap with Redis read-through cache if configured.
		if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = store.NewCachedStore(st, rdb, cfg.Store.CacheTTL.Duration)
			slog.Info("Redis cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Token performance aggregation ---
	feed := pricefeed.NewDexScreenerFeed(cfg.PriceFeed.Endpoint, cfg.PriceFeed.FetchTimeout.Duration)
	aggregator, err := token.NewAggregator(feed, token.Options{
		CacheTTL:     cfg.PriceFeed.CacheTTL.Duration,
		FetchWorkers: cfg.PriceFeed.FetchWorkers,
		FetchTimeout: cfg.PriceFeed.FetchTimeout.Duration,
	})
	if err != nil {
		slog.Error("aggregator init failed", "err", err)
		os.Exit(1)
	}
	defer aggregator.Close()

	// --- Trust scorer ---
	scorer := trust.NewScorer(st, trust.Weights{
		Consistency:         cfg.Trust.ConsistencyWeight,
		Performance:         cfg.Trust.PerformanceWeight,
		Recency:             cfg.Trust.RecencyWeight,
		PerformanceClampPct: cfg.Trust.PerformanceClampPct,
		DecayHorizon:        cfg.Trust.DecayHorizon.Duration,
	})

	// --- WebSocket hub ---
	hub := portfolio.NewEventHub()
	go hub.Run()

	// --- Portfolio service ---
	svc := portfolio.NewService(st, aggregator, scorer, hub)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout.Duration))
	r.Use(metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"trust-engine"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for position/trust event streams.
		r.Get("/ws", hub.HandleWS)

		// Portfolio reports.
		r.Get("/portfolio/{entityID}", svc.GetPortfolio)
		r.Get("/positions/{entityID}", svc.ListPositions)

		// Transaction ingestion.
		r.Post("/transactions", svc.PostTransaction)

		// Recommender trust.
		r.Get("/trust", svc.GetTrustRanking)
		r.Get("/trust/{entityID}", svc.GetTrust)
		r.Get("/trust/{entityID}/history", svc.GetTrustHistory)
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout.Duration,
		WriteTimeout: cfg.Server.WriteTimeout.Duration,
		IdleTimeout:  cfg.Server.IdleTimeout.Duration,
	}

	go func() {
		slog.Info("trust-engine listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()

	slog.Info("shutting down trust-engine...")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "err", err)
	}
	fmt.Println("trust-engine stopped")
}
