package reconciliation

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainsafe/remittance-middleware/internal/metrics"
	"github.com/chainsafe/remittance-middleware/pkg/ledger"
	"github.com/chainsafe/remittance-middleware/pkg/payout"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

const (
	defaultLookbackDays = 14
	defaultPageSize     = 500
	maxPageSize         = 2000
)

// Config tunes target selection.
type Config struct {
	LookbackDays int
	PageSize     int
}

// Engine runs reconciliation passes.
type Engine struct {
	store  Store
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewEngine returns an Engine over store. Non-positive settings fall back to
// 14 days and 500 rows, and the page size is capped at 2000.
func NewEngine(store Store, cfg Config, logger *zap.Logger) *Engine {
	if cfg.LookbackDays < 1 {
		cfg.LookbackDays = defaultLookbackDays
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.PageSize > maxPageSize {
		cfg.PageSize = maxPageSize
	}
	return &Engine{store: store, cfg: cfg, now: time.Now, logger: logger}
}

// RunOnce executes one full pass. Every call starts a new run; a failed pass
// is recorded as failed and its error returned.
func (e *Engine) RunOnce(ctx context.Context, opts RunOptions) (*Report, error) {
	runID := "recon_" + uuid.NewString()
	started := e.now().UTC()
	if err := e.store.CreateRun(ctx, runID, opts.Reason, started); err != nil {
		return nil, fmt.Errorf("failed to create reconciliation run: %w", err)
	}
	logger := e.logger.With(zap.String("run_id", runID))
	logger.Info("Starting reconciliation run", zap.String("reason", opts.Reason))

	report, total, err := e.run(ctx, runID, opts)
	finished := e.now().UTC()
	if err != nil {
		// The run context may be what failed; record the outcome regardless.
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if ferr := e.store.FailRun(failCtx, runID, finished, err.Error()); ferr != nil {
			logger.Error("Failed to mark reconciliation run failed", zap.Error(ferr))
		}
		metrics.ReconciliationRunDuration.WithLabelValues(string(RunFailed)).Observe(finished.Sub(started).Seconds())
		logger.Error("Reconciliation run failed", zap.Error(err))
		return nil, err
	}

	if err := e.store.CompleteRun(ctx, runID, finished, total, report.IssueCount); err != nil {
		return nil, fmt.Errorf("failed to complete reconciliation run: %w", err)
	}
	metrics.ReconciliationRunDuration.WithLabelValues(string(RunCompleted)).Observe(finished.Sub(started).Seconds())
	logger.Info("Reconciliation run completed",
		zap.Int("transfers", total),
		zap.Int("issues", report.IssueCount),
		zap.Duration("duration", finished.Sub(started)))
	return report, nil
}

func (e *Engine) run(ctx context.Context, runID string, opts RunOptions) (*Report, int, error) {
	since := e.now().UTC().AddDate(0, 0, -e.cfg.LookbackDays)

	var (
		rows   []Row
		total  int
		issues int
	)
	for offset := 0; ; offset += e.cfg.PageSize {
		targets, err := e.store.ListTargets(ctx, transfer.OpenStatuses, since, e.cfg.PageSize, offset)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to list reconciliation targets: %w", err)
		}
		total += len(targets)

		snapshots, err := e.snapshots(ctx, targets)
		if err != nil {
			return nil, 0, err
		}

		now := e.now().UTC()
		var page []Issue
		for _, s := range snapshots {
			for _, issue := range Evaluate(runID, s, now) {
				page = append(page, issue)
				rows = append(rows, RowOf(s, issue))
				metrics.ReconciliationIssues.WithLabelValues(string(issue.Code)).Inc()
			}
		}
		if len(page) > 0 {
			if err := e.store.InsertIssues(ctx, page); err != nil {
				return nil, 0, fmt.Errorf("failed to insert reconciliation issues: %w", err)
			}
		}
		issues += len(page)

		if len(targets) < e.cfg.PageSize {
			break
		}
	}

	csv := BuildCSV(rows)
	if opts.OutputPath != "" {
		if err := os.WriteFile(opts.OutputPath, []byte(csv), 0o640); err != nil {
			return nil, 0, fmt.Errorf("failed to write reconciliation report: %w", err)
		}
	}
	return &Report{RunID: runID, IssueCount: issues, CSV: csv}, total, nil
}

// snapshots loads the supplementary records of targets in parallel.
func (e *Engine) snapshots(ctx context.Context, targets []Target) ([]*Snapshot, error) {
	if len(targets) == 0 {
		return nil, nil
	}
	transferIDs := make([]string, 0, len(targets))
	quoteIDs := make([]string, 0, len(targets))
	for _, t := range targets {
		transferIDs = append(transferIDs, t.TransferID)
		if t.QuoteID != "" {
			quoteIDs = append(quoteIDs, t.QuoteID)
		}
	}

	var (
		expected map[string]decimal.Decimal
		funded   map[string]decimal.Decimal
		payouts  map[string]payout.Status
		sums     map[string]ledger.Sums
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		expected, err = e.store.ExpectedETB(gctx, quoteIDs)
		return err
	})
	g.Go(func() (err error) {
		funded, err = e.store.FundedUSD(gctx, transferIDs)
		return err
	})
	g.Go(func() (err error) {
		payouts, err = e.store.PayoutStatuses(gctx, transferIDs)
		return err
	})
	g.Go(func() (err error) {
		sums, err = e.store.LedgerSums(gctx, transferIDs)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to load reconciliation supplements: %w", err)
	}

	out := make([]*Snapshot, 0, len(targets))
	for _, t := range targets {
		s := &Snapshot{Target: t, Ledger: ledger.Sums{Debit: decimal.Zero, Credit: decimal.Zero}}
		if v, ok := expected[t.QuoteID]; ok {
			s.ExpectedETB = decimal.NewNullDecimal(v)
		}
		if v, ok := funded[t.TransferID]; ok {
			s.FundedUSD = decimal.NewNullDecimal(v)
		}
		if v, ok := payouts[t.TransferID]; ok {
			st := v
			s.PayoutStatus = &st
		}
		if v, ok := sums[t.TransferID]; ok {
			s.Ledger = v
		}
		out = append(out, s)
	}
	return out, nil
}
