package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shelterops/internal/notifier"
	notifiermetrics "shelterops/internal/notifier/metrics"
	"shelterops/internal/platform/config"
	"shelterops/internal/platform/database"
	"shelterops/internal/platform/logger"
	"shelterops/internal/platform/metrics"
	"shelterops/internal/platform/redis"
	"shelterops/internal/scheduler"
	schedmetrics "shelterops/internal/scheduler/metrics"
	"shelterops/internal/shelter"
	shelterhandler "shelterops/internal/shelter/handler"
	shelmetrics "shelterops/internal/shelter/metrics"
	"shelterops/internal/store"
	"shelterops/pkg/platform/circuit"
	"shelterops/pkg/platform/httputil"
	"shelterops/pkg/platform/middleware/auth"
	"shelterops/pkg/platform/middleware/metadata"
	"shelterops/pkg/platform/middleware/request"
	"shelterops/pkg/platform/middleware/requesttime"
)

type app struct {
	cfg         config.Config
	logger      *slog.Logger
	httpMetrics *metrics.Metrics
	engine      *shelter.Engine
	worker      *scheduler.Worker
	db          *sql.DB
	redis       *redis.Client
}

func newLogger(cfg config.Config) *slog.Logger {
	log := logger.New(cfg.LogLevel, cfg.IsProduction())
	slog.SetDefault(log)
	return log
}

// build assembles the engine, the worker and their backing services from cfg.
func build(ctx context.Context, cfg config.Config) (*app, error) {
	log := newLogger(cfg)
	a := &app{cfg: cfg, logger: log, httpMetrics: metrics.New()}

	st, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	schedMetrics := schedmetrics.New()
	a.engine = shelter.New(st,
		shelter.WithLogger(log),
		shelter.WithMetrics(shelmetrics.New()),
		shelter.WithSchedulerMetrics(schedMetrics),
		shelter.WithMailer(newMailer(cfg.Notifier, log)),
		shelter.WithRetention(cfg.Retention.Period, cfg.Retention.TaskTimeout, cfg.Retention.OfficerEmail),
	)
	if err := a.engine.Bootstrap(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("seed shelter types: %w", err)
	}

	locker, err := a.openLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.worker = scheduler.NewWorker(st,
		scheduler.WithLocker(locker),
		scheduler.WithTickInterval(cfg.Scheduler.TickInterval),
		scheduler.WithLockTTL(cfg.Scheduler.LockTTL),
		scheduler.WithMaxAttempts(cfg.Scheduler.MaxAttempts),
		scheduler.WithBatchSize(cfg.Scheduler.BatchSize),
		scheduler.WithWorkerLogger(log),
		scheduler.WithWorkerMetrics(schedMetrics),
	)
	a.engine.RegisterTasks(a.worker)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (store.Store, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Warn("SHELTERD_DATABASE_URL not set, using in-memory store")
		return store.NewMemory(), nil
	}
	db, err := database.Open(ctx, database.Config{
		DSN:             a.cfg.Database.DSN,
		MaxOpenConns:    a.cfg.Database.MaxOpenConns,
		MaxIdleConns:    a.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: a.cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.db = db
	return store.NewPostgres(db), nil
}

func (a *app) openLocker(ctx context.Context) (scheduler.Locker, error) {
	client, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	if client == nil {
		return scheduler.NewMemoryLocker(), nil
	}
	a.redis = client
	return scheduler.NewRedisLocker(client.Client), nil
}

func newMailer(cfg config.NotifierConfig, log *slog.Logger) *notifier.Notifier {
	var transport notifier.Transport
	if cfg.RelayURL == "" {
		log.Warn("SHELTERD_MAIL_RELAY_URL not set, emails are logged only")
		transport = notifier.NewLogTransport(log)
	} else {
		transport = notifier.NewRelayTransport(cfg.RelayURL, cfg.APIKey, cfg.Timeout)
	}
	return notifier.New(transport,
		notifier.WithLogger(log),
		notifier.WithMetrics(notifiermetrics.New()),
		notifier.WithBreaker(circuit.New("mail-relay")),
		notifier.WithSender(cfg.Sender),
	)
}

// Router mounts the shelter API behind actor headers. Health and metrics stay public.
func (a *app) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(a.logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(a.logger, a.httpMetrics))
	r.Use(request.Timeout(a.cfg.Server.RequestTimeout))

	r.Get("/healthz", a.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	h := shelterhandler.New(a.engine, a.logger)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireActor(a.logger))
		h.Register(r)
	})
	return r
}

func (a *app) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := map[string]string{"status": "ok", "store": "memory", "lock": "memory"}
	code := http.StatusOK
	if a.db != nil {
		status["store"] = "postgres"
		if err := a.db.PingContext(ctx); err != nil {
			status["status"], status["store"] = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	if a.redis != nil {
		status["lock"] = "redis"
		if err := a.redis.Health(ctx); err != nil {
			status["status"], status["lock"] = "degraded", "unreachable"
			code = http.StatusServiceUnavailable
		}
	}
	httputil.WriteJSON(w, code, status)
}

func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("close database", "error", err)
		}
	}
}
