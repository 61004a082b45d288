package quote

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	"github.com/chainsafe/remittance-middleware/pkg/pgutil"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

type pgStore struct {
	db *bun.DB
}

// NewStore returns a postgres backed quote Store.
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) CreateQuote(ctx context.Context, q *Quote) error {
	if _, err := s.db.NewInsert().Model(toDao(q)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert quote: %w", err)
	}
	return nil
}

func (s *pgStore) GetQuote(ctx context.Context, quoteID string) (*Quote, error) {
	return Get(ctx, s.db, quoteID)
}

// Get loads a quote through db, which may be a transaction.
func Get(ctx context.Context, db bun.IDB, quoteID string) (*Quote, error) {
	row := new(dao.QuoteDao)
	err := db.NewSelect().Model(row).Where("quote_id = ?", quoteID).Scan(ctx)
	if err != nil {
		if pgutil.IsNoRows(err) {
			return nil, ErrQuoteNotFound
		}
		return nil, fmt.Errorf("failed to get quote: %w", err)
	}
	return fromDao(row), nil
}

func toDao(q *Quote) *dao.QuoteDao {
	return &dao.QuoteDao{
		QuoteID:            q.QuoteID,
		Chain:              string(q.Chain),
		Token:              string(q.Token),
		SendAmountUSD:      q.SendAmountUSD,
		FxRateUSDToETB:     q.FxRateUSDToETB,
		FeeUSD:             q.FeeUSD,
		RecipientAmountETB: q.RecipientAmountETB,
		ExpiresAt:          q.ExpiresAt,
		CreatedAt:          q.CreatedAt,
	}
}

func fromDao(row *dao.QuoteDao) *Quote {
	return &Quote{
		QuoteID:            row.QuoteID,
		Chain:              transfer.Chain(row.Chain),
		Token:              transfer.Token(row.Token),
		SendAmountUSD:      row.SendAmountUSD,
		FxRateUSDToETB:     row.FxRateUSDToETB,
		FeeUSD:             row.FeeUSD,
		RecipientAmountETB: row.RecipientAmountETB,
		ExpiresAt:          row.ExpiresAt,
		CreatedAt:          row.CreatedAt,
	}
}
