// Package store persists transfers, their deposit routes and their transition timeline.
//
// The package level functions take a bun.IDB so other stores can compose them
// inside a single transaction.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	"github.com/chainsafe/remittance-middleware/pkg/pgutil"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
)

// PGStore is the postgres transfer store.
type PGStore struct {
	db *bun.DB
}

// NewStore returns a postgres transfer store.
func NewStore(db *bun.DB) *PGStore {
	return &PGStore{db: db}
}

// CreateTransfer inserts the transfer, its active deposit route and its initial transition atomically.
func (s *PGStore) CreateTransfer(ctx context.Context, c *transfer.Creation, initial *transfer.TransitionEvent) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(toTransferDao(c.Transfer)).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert transfer: %w", err)
		}
		if _, err := tx.NewInsert().Model(toRouteDao(c.DepositRoute)).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert deposit route: %w", err)
		}
		return InsertTransition(ctx, tx, initial)
	})
}

// GetTransfer returns the transfer with transferID.
func (s *PGStore) GetTransfer(ctx context.Context, transferID string) (*transfer.Transfer, error) {
	return Get(ctx, s.db, transferID, false)
}

// ListTransitions returns the timeline of transferID, oldest first.
func (s *PGStore) ListTransitions(ctx context.Context, transferID string) ([]*transfer.TransitionEvent, error) {
	var rows []dao.TransferTransitionDao
	err := s.db.NewSelect().
		Model(&rows).
		Where("transfer_id = ?", transferID).
		OrderExpr("occurred_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	out := make([]*transfer.TransitionEvent, 0, len(rows))
	for i := range rows {
		out = append(out, fromTransitionDao(&rows[i]))
	}
	return out, nil
}

// FindActiveRoute returns the active route for a deposit address, or nil.
func (s *PGStore) FindActiveRoute(ctx context.Context, chain transfer.Chain, token transfer.Token,
	address string) (*transfer.DepositRoute, error) {
	row := new(dao.DepositRouteDao)
	err := s.db.NewSelect().
		Model(row).
		Where("chain = ?", chain).
		Where("token = ?", token).
		Where("deposit_address = ?", address).
		Where("status = ?", transfer.RouteActive).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if pgutil.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find deposit route: %w", err)
	}
	return fromRouteDao(row), nil
}

// Get loads a transfer through db, optionally locking the row.
func Get(ctx context.Context, db bun.IDB, transferID string, forUpdate bool) (*transfer.Transfer, error) {
	row := new(dao.TransferDao)
	q := db.NewSelect().Model(row).Where("transfer_id = ?", transferID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if pgutil.IsNoRows(err) {
			return nil, transfer.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transfer: %w", err)
	}
	return fromTransferDao(row), nil
}

// Advance moves transferID to status to. The row is read with FOR UPDATE,
// the move is classified with transfer.Transition, and only an Applied move
// is written, through an update conditioned on the status that was read.
//
// A transition row carrying metadata is written only when the update applied.
// The returned status is the one the transfer had before the call.
func Advance(ctx context.Context, db bun.IDB, transferID string, to transfer.Status, now time.Time,
	metadata map[string]any) (transfer.Outcome, transfer.Status, error) {
	current, err := Get(ctx, db, transferID, true)
	if err != nil {
		return transfer.Invalid, "", err
	}
	outcome := transfer.Transition(current.Status, to)
	if outcome != transfer.Applied {
		return outcome, current.Status, nil
	}

	res, err := db.NewUpdate().
		Model((*dao.TransferDao)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("transfer_id = ?", transferID).
		Where("status = ?", current.Status).
		Exec(ctx)
	if err != nil {
		return transfer.Invalid, "", fmt.Errorf("failed to update transfer status: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		// Moved underneath us outside a transaction; re-read and classify.
		latest, err := Get(ctx, db, transferID, false)
		if err != nil {
			return transfer.Invalid, "", err
		}
		outcome = transfer.Transition(latest.Status, to)
		if outcome == transfer.Applied {
			outcome = transfer.Invalid
		}
		return outcome, latest.Status, nil
	}

	from := current.Status
	ev := &transfer.TransitionEvent{
		TransferID: transferID,
		From:       &from,
		To:         to,
		OccurredAt: now,
		Metadata:   metadata,
	}
	if err := InsertTransition(ctx, db, ev); err != nil {
		return transfer.Invalid, "", err
	}
	return transfer.Applied, from, nil
}

// InsertTransition appends a transition row through db.
func InsertTransition(ctx context.Context, db bun.IDB, ev *transfer.TransitionEvent) error {
	if _, err := db.NewInsert().Model(toTransitionDao(ev)).Exec(ctx); err != nil {
		return fmt.Errorf("failed to insert transfer transition: %w", err)
	}
	return nil
}

// RetireRoutes retires every active route of transferID.
func RetireRoutes(ctx context.Context, db bun.IDB, transferID string, now time.Time) error {
	_, err := db.NewUpdate().
		Model((*dao.DepositRouteDao)(nil)).
		Set("status = ?", transfer.RouteRetired).
		Set("updated_at = ?", now).
		Where("transfer_id = ?", transferID).
		Where("status = ?", transfer.RouteActive).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to retire deposit route: %w", err)
	}
	return nil
}
