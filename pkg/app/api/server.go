// Package api implements app.Runner for the settlement API process.
package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/remittance-middleware/pkg/app/http"
	"github.com/chainsafe/remittance-middleware/pkg/app/httpserver"
	"github.com/chainsafe/remittance-middleware/pkg/audit"
	"github.com/chainsafe/remittance-middleware/pkg/auth"
	"github.com/chainsafe/remittance-middleware/pkg/config"
	"github.com/chainsafe/remittance-middleware/pkg/deposit"
	"github.com/chainsafe/remittance-middleware/pkg/funding"
	"github.com/chainsafe/remittance-middleware/pkg/idempotency"
	"github.com/chainsafe/remittance-middleware/pkg/keys"
	"github.com/chainsafe/remittance-middleware/pkg/kyc"
	"github.com/chainsafe/remittance-middleware/pkg/ledger"
	"github.com/chainsafe/remittance-middleware/pkg/notify"
	"github.com/chainsafe/remittance-middleware/pkg/payout/adapter"
	payoutservice "github.com/chainsafe/remittance-middleware/pkg/payout/service"
	payoutstore "github.com/chainsafe/remittance-middleware/pkg/payout/store"
	"github.com/chainsafe/remittance-middleware/pkg/pgutil"
	"github.com/chainsafe/remittance-middleware/pkg/quote"
	"github.com/chainsafe/remittance-middleware/pkg/reconciliation"
	"github.com/chainsafe/remittance-middleware/pkg/retention"
	"github.com/chainsafe/remittance-middleware/pkg/retry"
	"github.com/chainsafe/remittance-middleware/pkg/sla"
	transferservice "github.com/chainsafe/remittance-middleware/pkg/transfer/service"
	transferstore "github.com/chainsafe/remittance-middleware/pkg/transfer/store"
)

// Server holds cfg to init the api server.
type Server struct {
	cfg *config.APIServerConfig
}

// NewServer initializes new api server.
func NewServer(cfg *config.APIServerConfig) *Server {
	return &Server{cfg: cfg}
}

// Run connects the database and the notification stream, then serves the API
// until an OS shutdown signal is received.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("api server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging, "settlement-api")
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting settlement API server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	dispatcher, closeDispatcher, err := notify.New(cfg.Notify.RedisURL, cfg.Notify.Stream, cfg.Notify.MaxLen, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeDispatcher() }()

	router, err := NewRouter(cfg, db, dispatcher, logger)
	if err != nil {
		return err
	}

	return httpserver.ServeAndWait(ctx, logger, httpserver.New(cfg.Server, router), cfg.Server.ShutdownTimeout)
}

// NewRouter wires every store, service and route of the API onto a chi router.
func NewRouter(cfg *config.APIServerConfig, db *bun.DB, dispatcher notify.Dispatcher, logger *zap.Logger) (chi.Router, error) {
	dataKey, err := base64.StdEncoding.DecodeString(cfg.KYC.DataKey)
	if err != nil {
		return nil, fmt.Errorf("decode kyc.data_key: %w", err)
	}
	cipher, err := keys.NewCipher(dataKey)
	if err != nil {
		return nil, fmt.Errorf("kyc cipher: %w", err)
	}
	deposits, err := deposit.NewHDStrategy([]byte(cfg.Transfer.DepositMasterSeed))
	if err != nil {
		return nil, err
	}

	validator := auth.NewValidator(auth.ValidatorConfig{
		Secrets:  []string{cfg.Auth.JWTSecret, cfg.Auth.PreviousJWTSecret},
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
		JWKSURL:  cfg.Auth.JWKSURL,
	})
	guard := idempotency.NewGuard(idempotency.NewStore(db), idempotency.Config{
		TTL:          cfg.Idempotency.TTL,
		InFlightWait: cfg.Idempotency.InFlightWait,
		PollInterval: cfg.Idempotency.PollInterval,
	}, logger)
	auditSink := audit.NewSink(db)
	minKeyLen := cfg.Idempotency.MinKeyLength

	quoteStore := quote.NewStore(db)
	kycStore := kyc.NewStore(db)

	quoteService := quote.NewService(quoteStore, cfg.Transfer.MaxTransfer(), logger)
	kycService := kyc.NewService(kycStore, cipher, auditSink, logger)
	transferService := transferservice.NewLog(transferservice.NewService(
		transferstore.NewStore(db),
		quoteStore,
		kycStore,
		deposits,
		cfg.Transfer.MaxTransfer(),
		logger,
	), logger)
	fundingService := funding.NewService(funding.NewStore(db), dispatcher, logger)
	payoutService := payoutservice.NewLog(payoutservice.NewService(
		payoutstore.NewStore(db),
		newPayoutRegistry(cfg.Payout),
		retry.Policy{
			MaxAttempts:  cfg.Payout.MaxAttempts,
			BaseDelay:    cfg.Payout.BaseDelay,
			MaxDelay:     cfg.Payout.MaxDelay,
			JitterFactor: cfg.Payout.Jitter,
		},
		cfg.Payout.DispatchLease,
		dispatcher,
		logger,
	), logger)
	ledgerService := ledger.NewService(ledger.NewStore(db))
	reconStore := reconciliation.NewStore(db)
	reconEngine := reconciliation.NewEngine(reconStore, reconciliation.Config{
		LookbackDays: cfg.Reconciliation.LookbackDays,
		PageSize:     cfg.Reconciliation.PageSize,
	}, logger)
	slaMonitor := sla.NewMonitor(db, sla.Config{
		PayoutMinutes:           cfg.SLA.PayoutMinutes,
		FundingConfirmedMinutes: cfg.SLA.FundingConfirmedMinutes,
		BatchSize:               cfg.SLA.BatchSize,
	}, logger)
	pruner := retention.NewPruner(db, retention.Config{
		AuditDays:          cfg.Retention.AuditDays,
		ReconciliationDays: cfg.Retention.ReconciliationDays,
		BatchSize:          cfg.Retention.BatchSize,
	}, logger)

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))
	r.Use(apphttp.RequestLogger(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if cfg.Monitoring.Enabled {
		r.Handle("/metrics", promhttp.Handler())
		logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	// Provider callbacks authenticate by webhook signature when enabled, so they sit outside the bearer group.
	payoutservice.RegisterCallbackRoutes(r, payoutService, validator, payoutservice.WebhookConfig{
		SignatureEnabled: cfg.Payout.Webhook.SignatureEnabled,
		Secret:           cfg.Payout.Webhook.Secret,
		MaxAge:           cfg.Payout.Webhook.MaxAge,
		SignatureHeader:  cfg.Payout.Webhook.SignatureHeader,
		TimestampHeader:  cfg.Payout.Webhook.TimestampHeader,
	}, logger)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(validator))

		quote.RegisterRoutes(r, quoteService, guard, minKeyLen, logger)
		kyc.RegisterRoutes(r, kycService, logger)
		transferservice.RegisterRoutes(r, transferService, guard, minKeyLen, logger)
		funding.RegisterRoutes(r, fundingService, guard, funding.CallbackConfig{
			Secret:            cfg.Funding.CallbackSecret,
			MaxAge:            cfg.Funding.CallbackMaxAge,
			SignatureRequired: cfg.Funding.SignatureRequired,
		}, logger)
		payoutservice.RegisterRoutes(r, payoutService, guard, minKeyLen, logger)
		ledger.RegisterRoutes(r, ledgerService, guard, minKeyLen)
		reconciliation.RegisterRoutes(r, reconEngine, reconStore, auditSink, guard, reconciliation.HTTPConfig{
			MinKeyLength: minKeyLen,
			OutputDir:    cfg.Reconciliation.OutputDir,
		}, logger)
		sla.RegisterRoutes(r, slaMonitor, slaMonitor.PayoutThreshold())
		retention.RegisterRoutes(r, pruner, auditSink, logger)
	})

	return r, nil
}

// newPayoutRegistry uses the partner APIs whose base urls are configured and
// otherwise accepts payouts locally.
func newPayoutRegistry(cfg config.PayoutConfig) *adapter.Registry {
	var bank adapter.Transport = adapter.StubTransport{}
	if cfg.BankBaseURL != "" {
		bank = adapter.NewHTTPTransport(cfg.BankBaseURL, cfg.BankTimeout)
	}
	var telebirr adapter.Transport
	if cfg.TelebirrBaseURL != "" {
		telebirr = adapter.NewHTTPTransport(cfg.TelebirrBaseURL, cfg.BankTimeout)
	}
	return adapter.NewRegistry(
		adapter.NewBankAdapter(bank),
		adapter.NewTelebirrAdapter(cfg.TelebirrEnabled, telebirr),
		cfg.TelebirrEnabled,
	)
}
