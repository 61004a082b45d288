package config

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host" default:"0.0.0.0"`
	Port            int           `mapstructure:"port" default:"8080"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" default:"60s"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"30s"`
	// RequestTimeout bounds every request handled by the router, including
	// idempotency polling and payout retry loops.
	RequestTimeout time.Duration `mapstructure:"request_timeout" default:"45s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host" default:"localhost"`
	Port     int    `mapstructure:"port" default:"5432"`
	User     string `mapstructure:"user" default:"postgres"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database" default:"settlement"`
	SSLMode  string `mapstructure:"ssl_mode" default:"disable"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" default:"info"`
	Format     string `mapstructure:"format" default:"json"`
	OutputPath string `mapstructure:"output_path" default:"stdout"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled" default:"true"`
}

// AuthConfig contains bearer token validation settings
type AuthConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	PreviousJWTSecret string `mapstructure:"previous_jwt_secret"`
	Issuer            string `mapstructure:"issuer" default:"remittance-auth"`
	Audience          string `mapstructure:"audience" default:"remittance-services"`
	JWKSURL           string `mapstructure:"jwks_url"`
}

// IdempotencyConfig contains idempotency guard settings
type IdempotencyConfig struct {
	TTL          time.Duration `mapstructure:"ttl" default:"24h"`
	InFlightWait time.Duration `mapstructure:"in_flight_wait" default:"5s"`
	PollInterval time.Duration `mapstructure:"poll_interval" default:"50ms"`
	MinKeyLength int           `mapstructure:"min_key_length" default:"8"`
}

// TransferConfig contains transfer creation settings
type TransferConfig struct {
	MaxTransferUSD    string `mapstructure:"max_transfer_usd" default:"2000"`
	DepositMasterSeed string `mapstructure:"deposit_master_seed"`
}

// MaxTransfer returns MaxTransferUSD as a decimal.
func (c TransferConfig) MaxTransfer() decimal.Decimal {
	d, err := decimal.NewFromString(c.MaxTransferUSD)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// KYCConfig contains receiver KYC settings
type KYCConfig struct {
	// DataKey is the base64 encoded 32 byte key used to encrypt national IDs at rest.
	DataKey string `mapstructure:"data_key"`
}

// FundingConfig contains funding callback settings
type FundingConfig struct {
	CallbackSecret    string        `mapstructure:"callback_secret"`
	CallbackMaxAge    time.Duration `mapstructure:"callback_max_age" default:"5m"`
	SignatureRequired bool          `mapstructure:"signature_required" default:"true"`
}

// PayoutConfig contains payout orchestration settings
type PayoutConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts" default:"5"`
	BaseDelay       time.Duration `mapstructure:"base_delay" default:"200ms"`
	MaxDelay        time.Duration `mapstructure:"max_delay" default:"30s"`
	Jitter          float64       `mapstructure:"jitter" default:"0.5"`
	DispatchLease   time.Duration `mapstructure:"dispatch_lease" default:"2m"`
	TelebirrEnabled bool          `mapstructure:"telebirr_enabled" default:"false"`
	TelebirrBaseURL string        `mapstructure:"telebirr_base_url"`
	BankBaseURL     string        `mapstructure:"bank_base_url"`
	BankTimeout     time.Duration `mapstructure:"bank_timeout" default:"10s"`
	Webhook         WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig contains payout status callback verification settings
type WebhookConfig struct {
	SignatureEnabled bool          `mapstructure:"signature_enabled" default:"false"`
	Secret           string        `mapstructure:"secret"`
	MaxAge           time.Duration `mapstructure:"max_age" default:"5m"`
	SignatureHeader  string        `mapstructure:"signature_header" default:"x-webhook-signature"`
	TimestampHeader  string        `mapstructure:"timestamp_header" default:"x-webhook-timestamp"`
}

// ReconciliationConfig contains reconciliation engine and scheduler settings
type ReconciliationConfig struct {
	LookbackDays   int           `mapstructure:"lookback_days" default:"14"`
	PageSize       int           `mapstructure:"page_size" default:"500"`
	OutputDir      string        `mapstructure:"output_dir"`
	InitialTimeout time.Duration `mapstructure:"initial_timeout" default:"2m"`
	Interval       time.Duration `mapstructure:"interval" default:"15m"`
	RunTimeout     time.Duration `mapstructure:"run_timeout" default:"2m"`
}

// ExpiryConfig contains transfer expiry sweep settings
type ExpiryConfig struct {
	Interval      time.Duration `mapstructure:"interval" default:"1m"`
	ExpiryMinutes int           `mapstructure:"expiry_minutes" default:"60"`
	BatchSize     int           `mapstructure:"batch_size" default:"100"`
}

// SLAConfig contains SLA breach detection settings
type SLAConfig struct {
	Enabled                 bool          `mapstructure:"enabled" default:"true"`
	Interval                time.Duration `mapstructure:"interval" default:"1m"`
	PayoutMinutes           int           `mapstructure:"payout_minutes" default:"10"`
	FundingConfirmedMinutes int           `mapstructure:"funding_confirmed_minutes" default:"30"`
	BatchSize               int           `mapstructure:"batch_size" default:"50"`
}

// RetentionConfig contains history pruning settings
type RetentionConfig struct {
	Enabled            bool          `mapstructure:"enabled" default:"true"`
	Interval           time.Duration `mapstructure:"interval" default:"1h"`
	AuditDays          int           `mapstructure:"audit_days" default:"365"`
	ReconciliationDays int           `mapstructure:"reconciliation_days" default:"90"`
	BatchSize          int           `mapstructure:"batch_size" default:"1000"`
}

// NotifyConfig contains notification dispatcher settings
type NotifyConfig struct {
	RedisURL string `mapstructure:"redis_url"`
	Stream   string `mapstructure:"stream" default:"transfer-notifications"`
	MaxLen   int64  `mapstructure:"max_len" default:"100000"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout" default:"30s"`
}

// =============================================================================
// API SERVER CONFIG
// =============================================================================

// APIServerConfig represents the settlement API server configuration
type APIServerConfig struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Idempotency    IdempotencyConfig    `mapstructure:"idempotency"`
	Transfer       TransferConfig       `mapstructure:"transfer"`
	KYC            KYCConfig            `mapstructure:"kyc"`
	Funding        FundingConfig        `mapstructure:"funding"`
	Payout         PayoutConfig         `mapstructure:"payout"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	SLA            SLAConfig            `mapstructure:"sla"`
	Retention      RetentionConfig      `mapstructure:"retention"`
	Notify         NotifyConfig         `mapstructure:"notify"`
}

// WorkerConfig represents the settlement worker configuration
type WorkerConfig struct {
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Monitoring     MonitoringConfig     `mapstructure:"monitoring"`
	Idempotency    IdempotencyConfig    `mapstructure:"idempotency"`
	Reconciliation ReconciliationConfig `mapstructure:"reconciliation"`
	Expiry         ExpiryConfig         `mapstructure:"expiry"`
	SLA            SLAConfig            `mapstructure:"sla"`
	Retention      RetentionConfig      `mapstructure:"retention"`
	Notify         NotifyConfig         `mapstructure:"notify"`
	Shutdown       ShutdownConfig       `mapstructure:"shutdown"`
}

// LoadAPIServer loads API server configuration from file
func LoadAPIServer(configPath string) (*APIServerConfig, error) {
	var cfg APIServerConfig
	if err := load(configPath, &cfg); err != nil {
		return nil, err
	}
	if err := validateAPIServer(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadWorker loads worker configuration from file
func LoadWorker(configPath string) (*WorkerConfig, error) {
	var cfg WorkerConfig
	if err := load(configPath, &cfg); err != nil {
		return nil, err
	}
	if err := validateWorker(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// load applies struct defaults, then overlays the YAML file and SETTLEMENT_* environment variables.
func load(configPath string, cfg any) error {
	if err := defaults.Set(cfg); err != nil {
		return fmt.Errorf("failed to apply config defaults: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SETTLEMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

func validateAPIServer(cfg *APIServerConfig) error {
	if err := validateDatabase(cfg.Database); err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" && cfg.Auth.JWKSURL == "" {
		return fmt.Errorf("auth.jwt_secret or auth.jwks_url is required")
	}
	if cfg.Transfer.DepositMasterSeed == "" {
		return fmt.Errorf("transfer.deposit_master_seed is required")
	}
	if !cfg.Transfer.MaxTransfer().IsPositive() {
		return fmt.Errorf("transfer.max_transfer_usd must be a positive decimal")
	}
	if key, err := base64.StdEncoding.DecodeString(cfg.KYC.DataKey); err != nil || len(key) != 32 {
		return fmt.Errorf("kyc.data_key must be a base64 encoded 32 byte key")
	}
	if cfg.Funding.SignatureRequired && cfg.Funding.CallbackSecret == "" {
		return fmt.Errorf("funding.callback_secret is required when funding.signature_required is set")
	}
	if cfg.Payout.Webhook.SignatureEnabled && cfg.Payout.Webhook.Secret == "" {
		return fmt.Errorf("payout.webhook.secret is required when payout.webhook.signature_enabled is set")
	}
	if cfg.Payout.MaxAttempts < 1 {
		return fmt.Errorf("payout.max_attempts must be at least 1")
	}
	if cfg.Payout.Jitter < 0 || cfg.Payout.Jitter > 1 {
		return fmt.Errorf("payout.jitter must be within [0, 1]")
	}
	if cfg.Idempotency.MinKeyLength < 1 {
		return fmt.Errorf("idempotency.min_key_length must be at least 1")
	}
	return nil
}

func validateWorker(cfg *WorkerConfig) error {
	if err := validateDatabase(cfg.Database); err != nil {
		return err
	}
	if cfg.Reconciliation.Interval <= 0 {
		return fmt.Errorf("reconciliation.interval must be positive")
	}
	if cfg.Expiry.Interval <= 0 {
		return fmt.Errorf("expiry.interval must be positive")
	}
	if cfg.Expiry.ExpiryMinutes < 1 {
		return fmt.Errorf("expiry.expiry_minutes must be at least 1")
	}
	if cfg.SLA.Enabled && cfg.SLA.Interval <= 0 {
		return fmt.Errorf("sla.interval must be positive")
	}
	if cfg.Retention.Enabled && cfg.Retention.Interval <= 0 {
		return fmt.Errorf("retention.interval must be positive")
	}
	return nil
}

func validateDatabase(db DatabaseConfig) error {
	if db.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if db.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	return nil
}
