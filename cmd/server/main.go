package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/twmb/franz-go/pkg/kgo"

	"trustos/internal/cache"
	"trustos/internal/duplicate"
	"trustos/internal/platform/config"
	"trustos/internal/platform/httpserver"
	"trustos/internal/platform/kafka"
	"trustos/internal/platform/logger"
	"trustos/internal/platform/metrics"
	redisplatform "trustos/internal/platform/redis"
	"trustos/internal/ratelimit"
	ratelimitmetrics "trustos/internal/ratelimit/metrics"
	ratelimitmw "trustos/internal/ratelimit/middleware"
	"trustos/internal/stats"
	"trustos/internal/verification/events"
	"trustos/internal/verification/handler"
	"trustos/internal/verification/history"
	"trustos/internal/verification/jobs"
	verificationmetrics "trustos/internal/verification/metrics"
	"trustos/internal/verification/orchestrator"
	"trustos/pkg/platform/middleware/metadata"
	"trustos/pkg/platform/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

// infra holds the optional backing services. Nil fields are disabled.
type infra struct {
	redis  *redisplatform.Client
	db     *sql.DB
	kafka  *kgo.Client
	memory *cache.MemoryStore
	store  cache.Backend

	// recovered is signalled when the cache primary comes back after an outage.
	recovered chan struct{}
}

func (i *infra) Close() {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
}

// main wires dependencies, exposes the HTTP router and owns the server
// lifecycle. Business logic lives in the internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()

	deps, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()
	deps.memory.StartJanitor(ctx, time.Minute)

	verifyMetrics := verificationmetrics.New(reg)
	orch, jobSvc, agg, err := buildVerification(ctx, cfg, log, reg, verifyMetrics, deps)
	if err != nil {
		return err
	}
	go mergeStatsOnRecovery(ctx, deps, agg, log)

	limiter, err := ratelimit.New(deps.store,
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(ratelimitmetrics.New(prometheus.WrapRegistererWithPrefix("client_", reg))),
	)
	if err != nil {
		return err
	}
	clientLimit := ratelimitmw.New(limiter, cfg.ClientRateLimit.Max, cfg.ClientRateLimit.Window,
		ratelimitmw.WithLogger(log),
		ratelimitmw.WithDisabled(cfg.ClientRateLimit.Disabled),
	)

	h := handler.New(orch, jobSvc, agg, log, healthChecks(deps)...)

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(chimw.Recoverer)
	r.Handle("/metrics", metrics.Handler(reg))
	r.Group(func(r chi.Router) {
		r.Use(clientLimit.RateLimit)
		h.Register(r)
	})

	srv := httpserver.New(cfg.Addr, r)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting trustos", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if err := jobSvc.Shutdown(shutdownCtx); err != nil {
		log.Warn("verification jobs still running at shutdown", "error", err)
	}
	return nil
}

// buildInfra connects the optional backends. Redis backs the shared cache with
// a local fallback; without it the process runs on memory alone.
func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	deps := &infra{memory: cache.NewMemoryStore(), recovered: make(chan struct{}, 1)}
	deps.store = deps.memory

	rc, err := redisplatform.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		deps.redis = rc
		fallback, err := cache.NewFallbackStore(cache.NewRedisStore(rc.Client), deps.memory,
			cache.WithFallbackLogger(log),
			cache.WithStateListener(func(open bool) {
				if open {
					return
				}
				select {
				case deps.recovered <- struct{}{}:
				default:
				}
			}),
		)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.store = fallback
		log.Info("redis cache enabled")
	}

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		deps.db = db
		log.Info("verification history enabled")
	}

	client, err := kafka.New(ctx, cfg.Kafka)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if client != nil {
		deps.kafka = client
		log.Info("verification events enabled", "topic", cfg.Kafka.Topic)
	}
	return deps, nil
}

func buildVerification(
	ctx context.Context,
	cfg config.Server,
	log *slog.Logger,
	reg prometheus.Registerer,
	m *verificationmetrics.Metrics,
	deps *infra,
) (*orchestrator.Orchestrator, *jobs.Service, *stats.Aggregator, error) {
	limiter, err := ratelimit.New(deps.store,
		ratelimit.WithLogger(log),
		ratelimit.WithMetrics(ratelimitmetrics.New(reg)),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	agg, err := stats.New(deps.store, stats.WithLogger(log))
	if err != nil {
		return nil, nil, nil, err
	}
	registry, err := buildRegistry(cfg, log)
	if err != nil {
		return nil, nil, nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithConfig(orchestrator.Config{
			CacheTTL:          cfg.Verification.CacheTTL,
			RateLimitMax:      cfg.Verification.RateLimitMax,
			RateLimitWindow:   cfg.Verification.RateLimitWindow,
			SecondaryGate:     cfg.Verification.SecondaryGate,
			VerifiedThreshold: cfg.Verification.VerifiedThreshold,
			SourceTimeout:     cfg.Verification.SourceTimeout,
		}),
		orchestrator.WithLogger(log),
		orchestrator.WithMetrics(m),
	}
	if deps.db != nil {
		store := history.NewPostgres(deps.db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, orchestrator.WithHistory(store))
	}
	if deps.kafka != nil {
		pub, err := events.NewKafkaPublisher(deps.kafka)
		if err != nil {
			return nil, nil, nil, err
		}
		opts = append(opts, orchestrator.WithPublisher(pub))
	}

	orch, err := orchestrator.New(deps.store, limiter, duplicate.New(duplicate.WithLogger(log)), agg, registry, opts...)
	if err != nil {
		return nil, nil, nil, err
	}

	jobSvc, err := jobs.New(jobs.NewInMemoryStore(), orch,
		jobs.WithLogger(log),
		jobs.WithMetrics(m),
		jobs.WithRetention(cfg.Jobs.Retention),
		jobs.WithMaxBatchSize(cfg.Jobs.MaxBatchSize),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	return orch, jobSvc, agg, nil
}

// mergeStatsOnRecovery carries statistics recorded on the local fallback back
// to the shared cache each time it recovers.
func mergeStatsOnRecovery(ctx context.Context, deps *infra, agg *stats.Aggregator, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-deps.recovered:
			if err := agg.Merge(ctx, deps.memory); err != nil {
				log.WarnContext(ctx, "failed to merge fallback statistics", "error", err)
			}
		}
	}
}

func healthChecks(deps *infra) []handler.Option {
	var checks []handler.Option
	if deps.redis != nil {
		checks = append(checks, handler.WithHealthCheck("redis", deps.redis.Health))
	}
	if deps.db != nil {
		checks = append(checks, handler.WithHealthCheck("postgres", deps.db.PingContext))
	}
	if deps.kafka != nil {
		checks = append(checks, handler.WithHealthCheck("kafka", deps.kafka.Ping))
	}
	return checks
}
