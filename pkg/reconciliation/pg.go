package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	"github.com/chainsafe/remittance-middleware/pkg/ledger"
	"github.com/chainsafe/remittance-middleware/pkg/payout"
	"github.com/chainsafe/remittance-middleware/pkg/pgutil"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

type pgStore struct {
	db *bun.DB
}

// NewStore returns a postgres reconciliation Store.
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) CreateRun(ctx context.Context, runID, reason string, startedAt time.Time) error {
	row := &dao.ReconciliationRunDao{RunID: runID, Reason: reason, Status: string(RunRunning), StartedAt: startedAt}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	return err
}

func (s *pgStore) CompleteRun(ctx context.Context, runID string, finishedAt time.Time, totalTransfers, totalIssues int) error {
	_, err := s.db.NewUpdate().
		Model((*dao.ReconciliationRunDao)(nil)).
		Set("status = ?", RunCompleted).
		Set("finished_at = ?", finishedAt).
		Set("total_transfers = ?", totalTransfers).
		Set("total_issues = ?", totalIssues).
		Where("run_id = ?", runID).
		Exec(ctx)
	return err
}

func (s *pgStore) FailRun(ctx context.Context, runID string, finishedAt time.Time, errMsg string) error {
	_, err := s.db.NewUpdate().
		Model((*dao.ReconciliationRunDao)(nil)).
		Set("status = ?", RunFailed).
		Set("finished_at = ?", finishedAt).
		Set("error_message = ?", errMsg).
		Where("run_id = ?", runID).
		Exec(ctx)
	return err
}

func (s *pgStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := new(dao.ReconciliationRunDao)
	if err := s.db.NewSelect().Model(row).Where("run_id = ?", runID).Scan(ctx); err != nil {
		if pgutil.IsNoRows(err) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get reconciliation run: %w", err)
	}
	run := &Run{
		RunID:          row.RunID,
		Reason:         row.Reason,
		Status:         RunStatus(row.Status),
		StartedAt:      row.StartedAt,
		FinishedAt:     row.FinishedAt,
		TotalTransfers: row.TotalTransfers,
		TotalIssues:    row.TotalIssues,
	}
	if row.ErrorMessage != nil {
		run.ErrorMessage = *row.ErrorMessage
	}
	return run, nil
}

func (s *pgStore) ListTargets(ctx context.Context, open []transfer.Status, createdSince time.Time, limit, offset int) ([]Target, error) {
	statuses := make([]string, 0, len(open))
	for _, st := range open {
		statuses = append(statuses, string(st))
	}
	var rows []dao.TransferDao
	err := s.db.NewSelect().
		Model(&rows).
		Column("transfer_id", "quote_id", "status", "chain", "token").
		WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("status IN (?)", bun.In(statuses)).WhereOr("created_at >= ?", createdSince)
		}).
		Order("created_at DESC", "transfer_id ASC").
		Limit(limit).
		Offset(offset).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	out := make([]Target, 0, len(rows))
	for _, r := range rows {
		out = append(out, Target{
			TransferID: r.TransferID,
			QuoteID:    r.QuoteID,
			Status:     transfer.Status(r.Status),
			Chain:      transfer.Chain(r.Chain),
			Token:      transfer.Token(r.Token),
		})
	}
	return out, nil
}

func (s *pgStore) ExpectedETB(ctx context.Context, quoteIDs []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(quoteIDs))
	if len(quoteIDs) == 0 {
		return out, nil
	}
	var rows []dao.QuoteDao
	err := s.db.NewSelect().Model(&rows).Column("quote_id", "recipient_amount_etb").
		Where("quote_id IN (?)", bun.In(quoteIDs)).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load quotes: %w", err)
	}
	for _, r := range rows {
		out[r.QuoteID] = r.RecipientAmountETB
	}
	return out, nil
}

func (s *pgStore) FundedUSD(ctx context.Context, transferIDs []string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(transferIDs))
	if len(transferIDs) == 0 {
		return out, nil
	}
	var rows []dao.FundingEventDao
	err := s.db.NewSelect().Model(&rows).Column("transfer_id", "amount_usd").
		Where("transfer_id IN (?)", bun.In(transferIDs)).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load funding events: %w", err)
	}
	for _, r := range rows {
		out[r.TransferID] = r.AmountUSD
	}
	return out, nil
}

func (s *pgStore) PayoutStatuses(ctx context.Context, transferIDs []string) (map[string]payout.Status, error) {
	out := make(map[string]payout.Status, len(transferIDs))
	if len(transferIDs) == 0 {
		return out, nil
	}
	var rows []dao.PayoutInstructionDao
	err := s.db.NewSelect().Model(&rows).Column("transfer_id", "status").
		Where("transfer_id IN (?)", bun.In(transferIDs)).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load payout instructions: %w", err)
	}
	for _, r := range rows {
		out[r.TransferID] = payout.Status(r.Status)
	}
	return out, nil
}

func (s *pgStore) LedgerSums(ctx context.Context, transferIDs []string) (map[string]ledger.Sums, error) {
	return ledger.SumsByTransfer(ctx, s.db, transferIDs)
}

func (s *pgStore) InsertIssues(ctx context.Context, issues []Issue) error {
	rows := make([]dao.ReconciliationIssueDao, 0, len(issues))
	for _, i := range issues {
		rows = append(rows, dao.ReconciliationIssueDao{
			RunID:      i.RunID,
			TransferID: i.TransferID,
			IssueCode:  string(i.Code),
			Details:    i.Details,
			DetectedAt: i.DetectedAt,
		})
	}
	_, err := s.db.NewInsert().Model(&rows).Exec(ctx)
	return err
}

func (s *pgStore) ListRunIssues(ctx context.Context, runID string) ([]*Issue, error) {
	var rows []dao.ReconciliationIssueDao
	if err := s.db.NewSelect().Model(&rows).Where("run_id = ?", runID).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list run issues: %w", err)
	}
	return issuesFromDao(rows), nil
}

func (s *pgStore) ListIssues(ctx context.Context, since *time.Time, limit int) ([]*Issue, error) {
	var rows []dao.ReconciliationIssueDao
	q := s.db.NewSelect().Model(&rows)
	if since != nil {
		q = q.Where("detected_at >= ?", *since)
	}
	if err := q.Order("detected_at DESC", "id DESC").Limit(limit).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	return issuesFromDao(rows), nil
}

func issuesFromDao(rows []dao.ReconciliationIssueDao) []*Issue {
	out := make([]*Issue, 0, len(rows))
	for _, r := range rows {
		out = append(out, &Issue{
			ID:         r.ID,
			RunID:      r.RunID,
			TransferID: r.TransferID,
			Code:       IssueCode(r.IssueCode),
			Details:    r.Details,
			DetectedAt: r.DetectedAt,
		})
	}
	return out
}
