package funding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/audit"
	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
	transferstore "github.com/chainsafe/remittance-middleware/pkg/transfer/store"
)

const actorID = "funding-confirmation-handler"

type pgStore struct {
	*transferstore.PGStore
	db *bun.DB
}

// NewStore returns a postgres backed funding Store.
func NewStore(db *bun.DB) Store {
	return &pgStore{PGStore: transferstore.NewStore(db), db: db}
}

func (s *pgStore) ApplyConfirmation(ctx context.Context, transferID string, ev Event, now time.Time) (ResultStatus, error) {
	var result ResultStatus
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		t, err := transferstore.Get(ctx, tx, transferID, true)
		if err != nil {
			if errors.Is(err, transfer.ErrNotFound) {
				result = StatusRouteNotFound
				return nil
			}
			return err
		}

		switch transfer.Transition(t.Status, transfer.StatusFundingConfirmed) {
		case transfer.AlreadyApplied:
			result = StatusDuplicate
			return nil
		case transfer.Invalid:
			result = StatusInvalidState
			return nil
		}

		exists, err := tx.NewSelect().Model((*dao.FundingEventDao)(nil)).Where("transfer_id = ?", transferID).Exists(ctx)
		if err != nil {
			return fmt.Errorf("failed to check funding events: %w", err)
		}
		if exists {
			result = StatusDuplicate
			return nil
		}

		res, err := tx.NewInsert().Model(toDao(transferID, ev)).On("CONFLICT DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert funding event: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			result = StatusDuplicate
			return nil
		}

		outcome, _, err := transferstore.Advance(ctx, tx, transferID, transfer.StatusFundingConfirmed, now, map[string]any{
			"chain":    string(ev.Chain),
			"txHash":   ev.TxHash,
			"logIndex": ev.LogIndex,
			"eventId":  ev.EventID,
		})
		if err != nil {
			return err
		}
		if outcome != transfer.Applied {
			return fmt.Errorf("transfer %s moved while locked: %s", transferID, outcome)
		}

		result = StatusConfirmed
		return audit.Insert(ctx, tx, audit.Entry{
			ActorType:  audit.ActorSystem,
			ActorID:    actorID,
			Action:     "funding_confirmed",
			EntityType: "transfer",
			EntityID:   transferID,
			Reason:     "On-chain confirmation received",
			Metadata: map[string]any{
				"chain":     string(ev.Chain),
				"token":     string(ev.Token),
				"txHash":    ev.TxHash,
				"amountUsd": ev.AmountUSD.StringFixed(2),
			},
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to apply funding confirmation: %w", err)
	}
	return result, nil
}

func toDao(transferID string, ev Event) *dao.FundingEventDao {
	return &dao.FundingEventDao{
		EventID:        ev.EventID,
		Chain:          string(ev.Chain),
		Token:          string(ev.Token),
		TxHash:         ev.TxHash,
		LogIndex:       ev.LogIndex,
		TransferID:     transferID,
		DepositAddress: ev.DepositAddress,
		AmountUSD:      ev.AmountUSD.Round(2),
		ConfirmedAt:    ev.ConfirmedAt.UTC(),
	}
}
