// Package reconciliation cross-checks transfers against their funding, payout
// and ledger records, persisting each run with the issues it found.
package reconciliation

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/remittance-middleware/pkg/ledger"
	"github.com/chainsafe/remittance-middleware/pkg/payout"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

// IssueCode names a reconciliation rule.
type IssueCode string

// Rules, in evaluation order.
const (
	MissingFundingEvent  IssueCode = "MISSING_FUNDING_EVENT"
	LedgerImbalance      IssueCode = "LEDGER_IMBALANCE"
	PayoutStatusMismatch IssueCode = "PAYOUT_STATUS_MISMATCH"
	MissingPayoutRecord  IssueCode = "MISSING_PAYOUT_RECORD"
)

// RunStatus is the lifecycle status of a run.
type RunStatus string

// Run statuses.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ErrRunNotFound is returned when no run exists for an id.
var ErrRunNotFound = errors.New("reconciliation run not found")

// Run is one execution of the engine.
type Run struct {
	RunID          string     `json:"runId"`
	Reason         string     `json:"reason"`
	Status         RunStatus  `json:"status"`
	StartedAt      time.Time  `json:"startedAt"`
	FinishedAt     *time.Time `json:"finishedAt,omitempty"`
	TotalTransfers int        `json:"totalTransfers"`
	TotalIssues    int        `json:"totalIssues"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
}

// Issue is one rule violation found for a transfer.
type Issue struct {
	ID         int64          `json:"id,omitempty"`
	RunID      string         `json:"runId"`
	TransferID string         `json:"transferId"`
	Code       IssueCode      `json:"issueCode"`
	Details    map[string]any `json:"details,omitempty"`
	DetectedAt time.Time      `json:"detectedAt"`
}

// Target is a transfer selected for checking.
type Target struct {
	TransferID string
	QuoteID    string
	Status     transfer.Status
	Chain      transfer.Chain
	Token      transfer.Token
}

// Snapshot is a target joined with its supplementary records.
type Snapshot struct {
	Target
	ExpectedETB  decimal.NullDecimal
	FundedUSD    decimal.NullDecimal
	PayoutStatus *payout.Status
	Ledger       ledger.Sums
}

// RunOptions parameterize a run.
type RunOptions struct {
	Reason string
	// OutputPath, when set, receives a copy of the CSV report.
	OutputPath string
}

// Report is the outcome of a completed run.
type Report struct {
	RunID      string `json:"runId"`
	IssueCount int    `json:"issueCount"`
	CSV        string `json:"csv"`
}

// Store reads reconciliation inputs and persists runs without locking live tables.
type Store interface {
	CreateRun(ctx context.Context, runID, reason string, startedAt time.Time) error
	CompleteRun(ctx context.Context, runID string, finishedAt time.Time, totalTransfers, totalIssues int) error
	FailRun(ctx context.Context, runID string, finishedAt time.Time, errMsg string) error
	GetRun(ctx context.Context, runID string) (*Run, error)

	ListTargets(ctx context.Context, open []transfer.Status, createdSince time.Time, limit, offset int) ([]Target, error)
	ExpectedETB(ctx context.Context, quoteIDs []string) (map[string]decimal.Decimal, error)
	FundedUSD(ctx context.Context, transferIDs []string) (map[string]decimal.Decimal, error)
	PayoutStatuses(ctx context.Context, transferIDs []string) (map[string]payout.Status, error)
	LedgerSums(ctx context.Context, transferIDs []string) (map[string]ledger.Sums, error)

	InsertIssues(ctx context.Context, issues []Issue) error
	ListRunIssues(ctx context.Context, runID string) ([]*Issue, error)
	ListIssues(ctx context.Context, since *time.Time, limit int) ([]*Issue, error)
}

// Evaluate applies every rule to s and returns the violations, stamped with runID and now.
func Evaluate(runID string, s *Snapshot, now time.Time) []Issue {
	var out []Issue
	add := func(code IssueCode, details map[string]any) {
		out = append(out, Issue{RunID: runID, TransferID: s.TransferID, Code: code, Details: details, DetectedAt: now})
	}

	if fundingExpected(s.Status) && !s.FundedUSD.Valid {
		add(MissingFundingEvent, map[string]any{"transferStatus": s.Status})
	}
	if !s.Ledger.Balanced() {
		add(LedgerImbalance, map[string]any{
			"debitTotal":  s.Ledger.Debit.StringFixed(2),
			"creditTotal": s.Ledger.Credit.StringFixed(2),
		})
	}
	if s.Status == transfer.StatusPayoutCompleted && (s.PayoutStatus == nil || *s.PayoutStatus != payout.StatusCompleted) {
		add(PayoutStatusMismatch, map[string]any{"transferStatus": s.Status, "payoutStatus": payoutStatusValue(s.PayoutStatus)})
	}
	if s.Status == transfer.StatusPayoutInitiated && s.PayoutStatus == nil {
		add(MissingPayoutRecord, map[string]any{"transferStatus": s.Status})
	}
	return out
}

// fundingExpected reports whether a transfer in status must have a funding event.
// EXPIRED transfers were never funded.
func fundingExpected(status transfer.Status) bool {
	return status != transfer.StatusAwaitingFunding && status != transfer.StatusExpired
}

func payoutStatusValue(s *payout.Status) any {
	if s == nil {
		return nil
	}
	return string(*s)
}
