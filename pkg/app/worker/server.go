// Package worker implements app.Runner for the settlement worker process.
package worker

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/remittance-middleware/pkg/app/http"
	"github.com/chainsafe/remittance-middleware/pkg/app/httpserver"
	"github.com/chainsafe/remittance-middleware/pkg/config"
	"github.com/chainsafe/remittance-middleware/pkg/expiry"
	"github.com/chainsafe/remittance-middleware/pkg/idempotency"
	"github.com/chainsafe/remittance-middleware/pkg/notify"
	"github.com/chainsafe/remittance-middleware/pkg/pgutil"
	"github.com/chainsafe/remittance-middleware/pkg/reconciliation"
	"github.com/chainsafe/remittance-middleware/pkg/retention"
	"github.com/chainsafe/remittance-middleware/pkg/sla"
)

// Server holds configuration for the worker process.
type Server struct {
	cfg *config.WorkerConfig
}

// NewServer initializes a new worker Server.
func NewServer(cfg *config.WorkerConfig) *Server {
	return &Server{cfg: cfg}
}

// Run starts the reconciliation scheduler, the expiry, SLA and retention jobs and the operational HTTP server.
// It blocks until an OS shutdown signal is received or a fatal server error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging, "settlement-worker")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting settlement worker")

	db, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect settlement db: %w", err)
	}
	defer func() { _ = db.Close() }()
	logger.Info("Database connection established")

	dispatcher, closeDispatcher, err := notify.New(cfg.Notify.RedisURL, cfg.Notify.Stream, cfg.Notify.MaxLen, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeDispatcher() }()

	engine := reconciliation.NewEngine(reconciliation.NewStore(db), reconciliation.Config{
		LookbackDays: cfg.Reconciliation.LookbackDays,
		PageSize:     cfg.Reconciliation.PageSize,
	}, logger)
	scheduler := reconciliation.NewScheduler(engine, reconciliation.SchedulerConfig{
		InitialTimeout: cfg.Reconciliation.InitialTimeout,
		RunTimeout:     cfg.Reconciliation.RunTimeout,
		OutputDir:      cfg.Reconciliation.OutputDir,
	}, logger)

	guard := idempotency.NewGuard(idempotency.NewStore(db), idempotency.Config{TTL: cfg.Idempotency.TTL}, logger)
	sweeper := expiry.NewSweeper(db, expiry.Config{
		ExpiryMinutes: cfg.Expiry.ExpiryMinutes,
		BatchSize:     cfg.Expiry.BatchSize,
	}, dispatcher, logger)
	job := expiry.NewJob(sweeper, guard, cfg.Expiry.Interval, logger)
	periodic := s.periodicJobs(db, logger)

	var ready atomic.Bool
	router := s.newRouter(&ready, logger)

	scheduler.Start(cfg.Reconciliation.Interval)
	job.Start(cfg.Expiry.Interval)
	for _, pj := range periodic {
		pj.start()
	}
	ready.Store(true)

	err = httpserver.ServeAndWait(ctx, logger, httpserver.New(cfg.Server, router), cfg.Shutdown.Timeout)

	// Stop background work before deferred DB/client closes kick in.
	ready.Store(false)
	for _, pj := range periodic {
		pj.stop()
	}
	job.Stop()
	scheduler.Stop()

	return err
}

func (s *Server) periodicJobs(db *bun.DB, logger *zap.Logger) []*periodicJob {
	var jobs []*periodicJob
	if c := s.cfg.SLA; c.Enabled {
		monitor := sla.NewMonitor(db, sla.Config{
			PayoutMinutes:           c.PayoutMinutes,
			FundingConfirmedMinutes: c.FundingConfirmedMinutes,
			BatchSize:               c.BatchSize,
		}, logger)
		jobs = append(jobs, newPeriodicJob("sla", c.Interval, c.Interval, func(ctx context.Context) error {
			_, err := monitor.RunOnce(ctx)
			return err
		}, logger))
	}
	if c := s.cfg.Retention; c.Enabled {
		pruner := retention.NewPruner(db, retention.Config{
			AuditDays:          c.AuditDays,
			ReconciliationDays: c.ReconciliationDays,
			BatchSize:          c.BatchSize,
		}, logger)
		jobs = append(jobs, newPeriodicJob("retention", c.Interval, 10*time.Minute, func(ctx context.Context) error {
			_, err := pruner.RunOnce(ctx)
			return err
		}, logger))
	}
	return jobs
}

func (s *Server) newRouter(ready *atomic.Bool, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
	r.Use(apphttp.RequestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if s.cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	return r
}
