// Package retention prunes audit and reconciliation history past its retention window.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/chainsafe/remittance-middleware/internal/metrics"
	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	"github.com/chainsafe/remittance-middleware/pkg/reconciliation"
)

// Config sets the retention windows in days and the audit delete batch size.
type Config struct {
	AuditDays          int
	ReconciliationDays int
	BatchSize          int
}

// Result counts the rows removed by one run.
type Result struct {
	AuditDeleted  int       `json:"auditDeleted"`
	IssuesDeleted int       `json:"issuesDeleted"`
	RunsDeleted   int       `json:"runsDeleted"`
	AuditCutoff   time.Time `json:"auditCutoff"`
	ReconCutoff   time.Time `json:"reconciliationCutoff"`
}

// Pruner deletes expired history rows.
type Pruner struct {
	db     *bun.DB
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// NewPruner returns a Pruner. Non-positive settings fall back to 365 days of
// audit history, 90 days of reconciliation history and batches of 1000.
func NewPruner(db *bun.DB, cfg Config, logger *zap.Logger) *Pruner {
	if cfg.AuditDays < 1 {
		cfg.AuditDays = 365
	}
	if cfg.ReconciliationDays < 1 {
		cfg.ReconciliationDays = 90
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1000
	}
	return &Pruner{db: db, cfg: cfg, now: time.Now, logger: logger}
}

// RunOnce deletes audit entries older than the audit window, then reconciliation
// issues and finished runs older than the reconciliation window. Runs that still
// own issues are kept.
func (p *Pruner) RunOnce(ctx context.Context) (*Result, error) {
	now := p.now().UTC()
	res := &Result{
		AuditCutoff: now.AddDate(0, 0, -p.cfg.AuditDays),
		ReconCutoff: now.AddDate(0, 0, -p.cfg.ReconciliationDays),
	}

	n, err := p.pruneAudit(ctx, res.AuditCutoff)
	if err != nil {
		return nil, err
	}
	res.AuditDeleted = n

	err = p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		r, err := tx.NewDelete().
			Model((*dao.ReconciliationIssueDao)(nil)).
			Where("detected_at < ?", res.ReconCutoff).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete reconciliation issues: %w", err)
		}
		res.IssuesDeleted = affected(r)

		owned := tx.NewSelect().
			Model((*dao.ReconciliationIssueDao)(nil)).
			ColumnExpr("1").
			Where("ri.run_id = rr.run_id")
		r, err = tx.NewDelete().
			Model((*dao.ReconciliationRunDao)(nil)).
			Where("rr.started_at < ?", res.ReconCutoff).
			Where("rr.status <> ?", reconciliation.RunRunning).
			Where("NOT EXISTS (?)", owned).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete reconciliation runs: %w", err)
		}
		res.RunsDeleted = affected(r)
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RetentionDeleted.WithLabelValues("audit_log").Add(float64(res.AuditDeleted))
	metrics.RetentionDeleted.WithLabelValues("reconciliation_issue").Add(float64(res.IssuesDeleted))
	metrics.RetentionDeleted.WithLabelValues("reconciliation_run").Add(float64(res.RunsDeleted))
	if res.AuditDeleted+res.IssuesDeleted+res.RunsDeleted > 0 {
		p.logger.Info("Pruned expired history",
			zap.Int("audit_deleted", res.AuditDeleted),
			zap.Int("issues_deleted", res.IssuesDeleted),
			zap.Int("runs_deleted", res.RunsDeleted))
	}
	return res, nil
}

// pruneAudit deletes in batches so a large backlog never holds one long lock.
func (p *Pruner) pruneAudit(ctx context.Context, cutoff time.Time) (int, error) {
	total := 0
	for {
		batch := p.db.NewSelect().
			Model((*dao.AuditLogDao)(nil)).
			Column("al.id").
			Where("al.created_at < ?", cutoff).
			Order("al.id ASC").
			Limit(p.cfg.BatchSize)
		r, err := p.db.NewDelete().
			Model((*dao.AuditLogDao)(nil)).
			Where("id IN (?)", batch).
			Exec(ctx)
		if err != nil {
			return total, fmt.Errorf("failed to delete audit entries: %w", err)
		}
		n := affected(r)
		total += n
		if n < p.cfg.BatchSize {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}

func affected(r interface{ RowsAffected() (int64, error) }) int {
	n, _ := r.RowsAffected()
	return int(n)
}
