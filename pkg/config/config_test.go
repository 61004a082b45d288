package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testDataKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY=" // 32 bytes

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAPIServer_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db.internal
auth:
  jwt_secret: s3cret
transfer:
  deposit_master_seed: seed
kyc:
  data_key: `+testDataKey+`
funding:
  callback_secret: cb
`)

	cfg, err := LoadAPIServer(path)
	if err != nil {
		t.Fatalf("LoadAPIServer() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Idempotency.TTL != 24*time.Hour {
		t.Fatalf("idempotency.ttl = %v, want 24h", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.PollInterval != 50*time.Millisecond {
		t.Fatalf("idempotency.poll_interval = %v, want 50ms", cfg.Idempotency.PollInterval)
	}
	if cfg.Payout.MaxAttempts != 5 || cfg.Payout.BaseDelay != 200*time.Millisecond || cfg.Payout.MaxDelay != 30*time.Second {
		t.Fatalf("unexpected payout defaults: %+v", cfg.Payout)
	}
	if cfg.Payout.Webhook.SignatureHeader != "x-webhook-signature" {
		t.Fatalf("webhook signature header = %q", cfg.Payout.Webhook.SignatureHeader)
	}
	if cfg.Reconciliation.LookbackDays != 14 || cfg.Reconciliation.PageSize != 500 {
		t.Fatalf("unexpected reconciliation defaults: %+v", cfg.Reconciliation)
	}
	if got := cfg.Transfer.MaxTransfer().String(); got != "2000" {
		t.Fatalf("max transfer = %s, want 2000", got)
	}
	if cfg.Database.Host != "db.internal" {
		t.Fatalf("database.host = %q, want db.internal", cfg.Database.Host)
	}
}

func TestLoadAPIServer_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  host: localhost
auth:
  jwt_secret: s3cret
transfer:
  deposit_master_seed: seed
  max_transfer_usd: "500.50"
kyc:
  data_key: `+testDataKey+`
funding:
  signature_required: false
payout:
  max_attempts: 3
  telebirr_enabled: true
`)

	cfg, err := LoadAPIServer(path)
	if err != nil {
		t.Fatalf("LoadAPIServer() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("server.port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Payout.MaxAttempts != 3 || !cfg.Payout.TelebirrEnabled {
		t.Fatalf("unexpected payout config: %+v", cfg.Payout)
	}
	if got := cfg.Transfer.MaxTransfer().StringFixed(2); got != "500.50" {
		t.Fatalf("max transfer = %s, want 500.50", got)
	}
}

func TestLoadAPIServer_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing auth",
			body:    "transfer:\n  deposit_master_seed: seed\n",
			wantErr: "auth.jwt_secret",
		},
		{
			name:    "missing seed",
			body:    "auth:\n  jwt_secret: x\n",
			wantErr: "deposit_master_seed",
		},
		{
			name:    "bad data key",
			body:    "auth:\n  jwt_secret: x\ntransfer:\n  deposit_master_seed: seed\nkyc:\n  data_key: short\n",
			wantErr: "kyc.data_key",
		},
		{
			name: "callback secret required",
			body: "auth:\n  jwt_secret: x\ntransfer:\n  deposit_master_seed: seed\nkyc:\n  data_key: " +
				testDataKey + "\n",
			wantErr: "funding.callback_secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadAPIServer(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWorker_Defaults(t *testing.T) {
	cfg, err := LoadWorker(writeConfig(t, "database:\n  host: localhost\n"))
	if err != nil {
		t.Fatalf("LoadWorker() error = %v", err)
	}
	if cfg.Expiry.ExpiryMinutes != 60 || cfg.Expiry.BatchSize != 100 {
		t.Fatalf("unexpected expiry defaults: %+v", cfg.Expiry)
	}
	if cfg.Reconciliation.Interval != 15*time.Minute {
		t.Fatalf("reconciliation.interval = %v, want 15m", cfg.Reconciliation.Interval)
	}
	if !cfg.SLA.Enabled || cfg.SLA.PayoutMinutes != 10 || cfg.SLA.FundingConfirmedMinutes != 30 {
		t.Fatalf("unexpected sla defaults: %+v", cfg.SLA)
	}
	if !cfg.Retention.Enabled || cfg.Retention.AuditDays != 365 || cfg.Retention.ReconciliationDays != 90 ||
		cfg.Retention.Interval != time.Hour {
		t.Fatalf("unexpected retention defaults: %+v", cfg.Retention)
	}
}

func TestLoadWorker_RejectsNonPositiveJobInterval(t *testing.T) {
	_, err := LoadWorker(writeConfig(t, "database:\n  host: localhost\nretention:\n  interval: 0s\n"))
	if err == nil || !strings.Contains(err.Error(), "retention.interval") {
		t.Fatalf("error = %v, want retention.interval", err)
	}
	if _, err := LoadWorker(writeConfig(t, "database:\n  host: localhost\nretention:\n  enabled: false\n  interval: 0s\n")); err != nil {
		t.Fatalf("disabled job should skip interval check: %v", err)
	}
}

func TestNewLogger_InvalidSettings(t *testing.T) {
	if _, err := NewLogger(LoggingConfig{Level: "loud", Format: "json"}, "settlement-api"); err == nil {
		t.Fatal("expected error for invalid log level")
	}
	if _, err := NewLogger(LoggingConfig{Level: "info", Format: "xml"}, "settlement-api"); err == nil {
		t.Fatal("expected error for invalid log format")
	}
}

func TestNewLogger_StampsServiceAndInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	logger, err := NewLogger(LoggingConfig{Level: "info", Format: "json", OutputPath: path}, "settlement-worker")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(raw)
	for _, want := range []string{`"service":"settlement-worker"`, `"instance":`, `"ts":"`, `"msg":"hello"`} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q does not contain %s", line, want)
		}
	}
}
