package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	"github.com/chainsafe/remittance-middleware/pkg/pgutil"
)

type pgStore struct {
	db *bun.DB
}

// NewStore returns a postgres ledger Store.
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func newJournalID() string { return "lj_" + uuid.NewString() }

// InsertJournal writes the journal and its two entries in one transaction.
func (s *pgStore) InsertJournal(ctx context.Context, journalID string, p Posting, now time.Time) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		journal := &dao.LedgerJournalDao{
			JournalID:   journalID,
			TransferID:  p.TransferID,
			Description: p.Description,
			CreatedAt:   now,
		}
		if _, err := tx.NewInsert().Model(journal).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert ledger journal: %w", err)
		}

		entries := []dao.LedgerEntryDao{
			{JournalID: journalID, TransferID: p.TransferID, AccountCode: p.DebitAccount, EntryType: string(Debit),
				AmountUSD: p.AmountUSD, CreatedAt: now},
			{JournalID: journalID, TransferID: p.TransferID, AccountCode: p.CreditAccount, EntryType: string(Credit),
				AmountUSD: p.AmountUSD, CreatedAt: now},
		}
		if _, err := tx.NewInsert().Model(&entries).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert ledger entries: %w", err)
		}
		return nil
	})
}

type sumsRow struct {
	JournalID   string          `bun:"journal_id"`
	TransferID  string          `bun:"transfer_id"`
	TotalDebit  decimal.Decimal `bun:"total_debit"`
	TotalCredit decimal.Decimal `bun:"total_credit"`
}

const (
	debitSum  = "coalesce(sum(case when le.entry_type = 'debit' then le.amount_usd else 0 end), 0) AS total_debit"
	creditSum = "coalesce(sum(case when le.entry_type = 'credit' then le.amount_usd else 0 end), 0) AS total_credit"
)

func (s *pgStore) GetJournalBalance(ctx context.Context, journalID string) (*JournalResult, error) {
	var row sumsRow
	err := s.db.NewSelect().
		TableExpr("ledger_journal AS lj").
		ColumnExpr("lj.journal_id, lj.transfer_id").
		ColumnExpr(debitSum).
		ColumnExpr(creditSum).
		Join("LEFT JOIN ledger_entry AS le ON le.journal_id = lj.journal_id").
		Where("lj.journal_id = ?", journalID).
		GroupExpr("lj.journal_id, lj.transfer_id").
		Scan(ctx, &row)
	if err != nil {
		if pgutil.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get journal balance: %w", err)
	}
	return &JournalResult{
		JournalID:   row.JournalID,
		TransferID:  row.TransferID,
		TotalDebit:  row.TotalDebit,
		TotalCredit: row.TotalCredit,
		Balanced:    row.TotalDebit.Equal(row.TotalCredit),
	}, nil
}

// SumsByTransfer returns the debit and credit totals of every transfer in ids
// that has at least one entry.
func SumsByTransfer(ctx context.Context, db bun.IDB, ids []string) (map[string]Sums, error) {
	out := make(map[string]Sums, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []sumsRow
	err := db.NewSelect().
		TableExpr("ledger_entry AS le").
		ColumnExpr("le.transfer_id").
		ColumnExpr(debitSum).
		ColumnExpr(creditSum).
		Where("le.transfer_id IN (?)", bun.In(ids)).
		GroupExpr("le.transfer_id").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	for _, r := range rows {
		out[r.TransferID] = Sums{Debit: r.TotalDebit, Credit: r.TotalCredit}
	}
	return out, nil
}
