package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"

	"payouts/internal/directory"
	"payouts/internal/payout/executor"
	"payouts/internal/payout/handler"
	payoutmetrics "payouts/internal/payout/metrics"
	"payouts/internal/payout/ports"
	"payouts/internal/payout/service"
	"payouts/internal/payout/store"
	"payouts/internal/payout/store/statscache"
	"payouts/internal/platform/config"
	"payouts/internal/platform/httpserver"
	"payouts/internal/platform/logger"
	platformredis "payouts/internal/platform/redis"
	"payouts/internal/stripe"
	"payouts/pkg/platform/audit"
	auditpublisher "payouts/pkg/platform/audit/publisher"
	"payouts/pkg/platform/audit/relay"
	auditmemory "payouts/pkg/platform/audit/store/memory"
	auditpostgres "payouts/pkg/platform/audit/store/postgres"
	adminmw "payouts/pkg/platform/middleware/admin"
	"payouts/pkg/platform/middleware/requestid"
	"payouts/pkg/platform/middleware/requesttime"
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Payout store: Postgres when configured, in-memory otherwise.
	var (
		payoutStore ports.PayoutStore
		auditStore  audit.Store
		db          *sql.DB
	)
	if cfg.Database.URL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			fatal(log, "failed to open database", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			fatal(log, "failed to ping database", err)
		}
		if err := store.Migrate(db); err != nil {
			fatal(log, "failed to run migrations", err)
		}
		payoutStore = store.NewPostgres(db)
		auditStore = auditpostgres.New(db)
		log.Info("using postgres payout store")
	} else {
		payoutStore = store.NewInMemory()
		auditStore = auditmemory.NewInMemoryStore()
		log.Warn("no database configured, using in-memory stores")
	}

	publisher := auditpublisher.NewPublisher(auditStore, auditpublisher.WithAsyncBuffer(256))
	defer publisher.Close()

	// Transfer client against the processor.
	apiKey := cfg.Stripe.APIKey
	if apiKey == "" {
		apiKey = "sk_test_dev"
		log.Warn("no stripe api key configured, using development placeholder")
	}
	var stripeOpts []stripe.Option
	if cfg.Stripe.BaseURL != "" {
		stripeOpts = append(stripeOpts, stripe.WithBaseURL(cfg.Stripe.BaseURL))
	}
	stripeOpts = append(stripeOpts, stripe.WithLogger(log))
	transfers, err := stripe.NewClient(apiKey, stripeOpts...)
	if err != nil {
		fatal(log, "failed to build stripe client", err)
	}

	exec, err := executor.New(payoutStore, transfers,
		executor.WithLogger(log),
		executor.WithAuditPublisher(publisher),
	)
	if err != nil {
		fatal(log, "failed to build executor", err)
	}

	metrics := payoutmetrics.New()

	svcOpts := []service.Option{
		service.WithLogger(log),
		service.WithAuditPublisher(publisher),
		service.WithMetrics(metrics),
		service.WithFeeRate(cfg.Payouts.FeeRateBps),
		service.WithBatchConcurrency(cfg.Payouts.BatchConcurrency),
	}

	// Events-platform collaborator for organizer and revenue data.
	if cfg.Directory.URL != "" {
		dir, err := directory.NewClient(cfg.Directory.URL, directory.WithAPIKey(cfg.Directory.APIKey))
		if err != nil {
			fatal(log, "failed to build directory client", err)
		}
		svcOpts = append(svcOpts,
			service.WithOrganizerDirectory(dir),
			service.WithRevenueSource(dir),
		)
	} else {
		log.Warn("no directory configured, payout creation and migration are disabled")
	}

	// Optional Redis stats cache.
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		fatal(log, "failed to connect to redis", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
		svcOpts = append(svcOpts, service.WithStatsCache(
			statscache.New(redisClient.Client, statscache.WithTTL(cfg.Payouts.StatsCacheTTL))))
	}

	svc, err := service.New(payoutStore, exec, svcOpts...)
	if err != nil {
		fatal(log, "failed to build payout service", err)
	}

	// Outbox relay to Kafka, only meaningful with a Postgres outbox.
	if len(cfg.Kafka.Brokers) > 0 && cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			fatal(log, "failed to build pgx pool for audit relay", err)
		}
		defer pool.Close()

		kafkaClient, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.DefaultProduceTopic(cfg.Kafka.AuditTopic),
		)
		if err != nil {
			fatal(log, "failed to build kafka client", err)
		}
		defer kafkaClient.Close()

		auditRelay := relay.New(pool, kafkaClient, cfg.Kafka.AuditTopic, log,
			relay.WithPollInterval(cfg.Kafka.PollInterval))
		go func() {
			if err := auditRelay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("audit relay stopped", "error", err)
			}
		}()
		log.Info("audit relay started", "topic", cfg.Kafka.AuditTopic)
	}

	payoutHandler := handler.New(svc, log)

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(requestid.Middleware)
	router.Use(requesttime.Middleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())

	router.Group(func(r chi.Router) {
		r.Use(adminmw.RequireAdminToken(cfg.Server.AdminToken, log))
		payoutHandler.Register(r)
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	go func() {
		log.Info("starting payout service", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		fatal(log, "graceful shutdown failed", err)
	}
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, "error", err)
	os.Exit(1)
}
