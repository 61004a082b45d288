// Package store persists payout instructions and applies their status changes
// together with the owning transfer's transition.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/audit"
	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	"github.com/chainsafe/remittance-middleware/pkg/payout"
	"github.com/chainsafe/remittance-middleware/pkg/pgutil"
	"github.com/chainsafe/remittance-middleware/pkg/transfer"
	transferstore "github.com/chainsafe/remittance-middleware/pkg/transfer/store"
)

const actorID = "payout-orchestrator"

// PGStore is the postgres payout store.
type PGStore struct {
	db *bun.DB
}

// NewStore returns a postgres payout store.
func NewStore(db *bun.DB) *PGStore {
	return &PGStore{db: db}
}

// GetTransfer returns the transfer a payout belongs to.
func (s *PGStore) GetTransfer(ctx context.Context, transferID string) (*transfer.Transfer, error) {
	return transferstore.Get(ctx, s.db, transferID, false)
}

// GetOrCreateInstruction returns the instruction of in.TransferID, creating a
// PAYOUT_PENDING one when none exists.
func (s *PGStore) GetOrCreateInstruction(ctx context.Context, in payout.InitiateInput, now time.Time) (*payout.Instruction, error) {
	row := &dao.PayoutInstructionDao{
		PayoutID:            "pay_" + uuid.NewString(),
		TransferID:          in.TransferID,
		Method:              string(in.Method),
		RecipientAccountRef: in.RecipientAccountRef,
		AmountETB:           in.AmountETB.Round(2),
		Status:              string(payout.StatusPending),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	_, err := s.db.NewInsert().Model(row).On("CONFLICT (transfer_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to insert payout instruction: %w", err)
	}

	existing := new(dao.PayoutInstructionDao)
	if err := s.db.NewSelect().Model(existing).Where("transfer_id = ?", in.TransferID).Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load payout instruction: %w", err)
	}
	return fromDao(existing), nil
}

// ClaimDispatch takes the dispatch lease of a PAYOUT_PENDING instruction until
// now+lease. It reports false when the instruction is no longer pending or
// another caller holds a lease that has not run out.
func (s *PGStore) ClaimDispatch(ctx context.Context, payoutID string, now time.Time, lease time.Duration) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*dao.PayoutInstructionDao)(nil)).
		Set("dispatch_lease_until = ?", now.Add(lease)).
		Set("updated_at = ?", now).
		Where("payout_id = ?", payoutID).
		Where("status = ?", payout.StatusPending).
		Where("(dispatch_lease_until IS NULL OR dispatch_lease_until <= ?)", now).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to claim payout dispatch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to claim payout dispatch: %w", err)
	}
	return n == 1, nil
}

// ReleaseDispatch drops the lease of a still pending instruction.
func (s *PGStore) ReleaseDispatch(ctx context.Context, payoutID string) error {
	_, err := s.db.NewUpdate().
		Model((*dao.PayoutInstructionDao)(nil)).
		Set("dispatch_lease_until = NULL").
		Where("payout_id = ?", payoutID).
		Where("status = ?", payout.StatusPending).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to release payout dispatch: %w", err)
	}
	return nil
}

// GetInstruction returns the instruction with payoutID.
func (s *PGStore) GetInstruction(ctx context.Context, payoutID string) (*payout.Instruction, error) {
	return getInstruction(ctx, s.db, payoutID, false)
}

// ListEvents returns the status history of payoutID, oldest first.
func (s *PGStore) ListEvents(ctx context.Context, payoutID string) ([]*payout.StatusEvent, error) {
	var rows []dao.PayoutStatusEventDao
	err := s.db.NewSelect().Model(&rows).Where("payout_id = ?", payoutID).Order("id ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list payout events: %w", err)
	}
	out := make([]*payout.StatusEvent, 0, len(rows))
	for i := range rows {
		out = append(out, fromEventDao(&rows[i]))
	}
	return out, nil
}

// MarkInitiated records a partner acceptance. The transfer moves
// FUNDING_CONFIRMED -> PAYOUT_INITIATED; a transfer already there is left alone.
// It returns the instruction as stored after the call.
func (s *PGStore) MarkInitiated(ctx context.Context, ins *payout.Instruction, providerRef string, attempts int,
	now time.Time) (*payout.Instruction, error) {
	meta := map[string]any{"payoutId": ins.PayoutID, "providerReference": providerRef, "attempts": attempts}
	return s.move(ctx, moveParams{
		ins:      ins,
		from:     []payout.Status{payout.StatusPending},
		to:       payout.StatusInitiated,
		transfer: transfer.StatusPayoutInitiated,
		now:      now,
		set: func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Set("provider_reference = ?", providerRef).
				Set("attempt_count = ?", attempts).
				Set("last_error = NULL").
				Set("dispatch_lease_until = NULL")
		},
		meta:   meta,
		action: "payout_initiated",
		reason: "Payout partner accepted payout request",
	})
}

// MarkReviewRequired parks the instruction and its transfer for manual review.
func (s *PGStore) MarkReviewRequired(ctx context.Context, ins *payout.Instruction, attempts int, errMsg string,
	now time.Time) (*payout.Instruction, error) {
	meta := map[string]any{"payoutId": ins.PayoutID, "attempts": attempts, "errorMessage": errMsg}
	return s.move(ctx, moveParams{
		ins:      ins,
		from:     []payout.Status{payout.StatusPending, payout.StatusInitiated},
		to:       payout.StatusReviewRequired,
		transfer: transfer.StatusPayoutReviewRequired,
		now:      now,
		set: func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Set("attempt_count = ?", attempts).
				Set("last_error = ?", errMsg).
				Set("dispatch_lease_until = NULL")
		},
		meta:   meta,
		action: "payout_review_required",
		reason: "Payout partner call failed after retries",
	})
}

// ApplyCallback moves a PAYOUT_INITIATED instruction to to, which is
// PAYOUT_COMPLETED or PAYOUT_FAILED, and its transfer with it.
func (s *PGStore) ApplyCallback(ctx context.Context, ins *payout.Instruction, to payout.Status, cb payout.Callback,
	now time.Time) (*payout.Instruction, error) {
	ts := transfer.StatusPayoutCompleted
	action, reason := "payout_completed", "Payout partner confirmed completion"
	if to == payout.StatusFailed {
		ts = transfer.StatusPayoutFailed
		action, reason = "payout_failed", "Payout partner reported failure"
	}

	meta := map[string]any{"payoutId": ins.PayoutID, "providerReference": cb.ProviderReference}
	if cb.ErrorMessage != "" {
		meta["errorMessage"] = cb.ErrorMessage
	}
	if len(cb.Metadata) > 0 {
		meta["provider"] = cb.Metadata
	}

	return s.move(ctx, moveParams{
		ins:      ins,
		from:     []payout.Status{payout.StatusInitiated},
		to:       to,
		transfer: ts,
		now:      now,
		set: func(q *bun.UpdateQuery) *bun.UpdateQuery {
			q = q.Set("provider_reference = ?", cb.ProviderReference)
			if to == payout.StatusFailed {
				q = q.Set("last_error = ?", cb.ErrorMessage)
			}
			return q
		},
		meta:   meta,
		action: action,
		reason: reason,
	})
}

type moveParams struct {
	ins      *payout.Instruction
	from     []payout.Status
	to       payout.Status
	transfer transfer.Status
	now      time.Time
	set      func(*bun.UpdateQuery) *bun.UpdateQuery
	meta     map[string]any
	action   string
	reason   string
}

// move applies one instruction status change in a transaction. When the
// instruction is no longer in one of p.from nothing is written and the stored
// instruction is returned unchanged.
func (s *PGStore) move(ctx context.Context, p moveParams) (*payout.Instruction, error) {
	var out *payout.Instruction
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := getInstruction(ctx, tx, p.ins.PayoutID, true)
		if err != nil {
			return err
		}
		if !statusIn(current.Status, p.from) {
			out = current
			return nil
		}

		q := tx.NewUpdate().
			Model((*dao.PayoutInstructionDao)(nil)).
			Set("status = ?", p.to).
			Set("updated_at = ?", p.now).
			Where("payout_id = ?", current.PayoutID)
		if _, err := p.set(q).Exec(ctx); err != nil {
			return fmt.Errorf("failed to update payout instruction: %w", err)
		}

		outcome, _, err := transferstore.Advance(ctx, tx, current.TransferID, p.transfer, p.now, p.meta)
		if err != nil {
			return err
		}
		if outcome == transfer.Invalid {
			return fmt.Errorf("transfer %s cannot move to %s", current.TransferID, p.transfer)
		}

		from := string(current.Status)
		ev := &dao.PayoutStatusEventDao{
			PayoutID:   current.PayoutID,
			TransferID: current.TransferID,
			FromStatus: &from,
			ToStatus:   string(p.to),
			Metadata:   p.meta,
			CreatedAt:  p.now,
		}
		if _, err := tx.NewInsert().Model(ev).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert payout status event: %w", err)
		}

		if err := audit.Insert(ctx, tx, audit.Entry{
			ActorType:  audit.ActorSystem,
			ActorID:    actorID,
			Action:     p.action,
			EntityType: "transfer",
			EntityID:   current.TransferID,
			Reason:     p.reason,
			Metadata:   p.meta,
			CreatedAt:  p.now,
		}); err != nil {
			return fmt.Errorf("failed to append audit entry: %w", err)
		}

		out, err = getInstruction(ctx, tx, current.PayoutID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func getInstruction(ctx context.Context, db bun.IDB, payoutID string, forUpdate bool) (*payout.Instruction, error) {
	row := new(dao.PayoutInstructionDao)
	q := db.NewSelect().Model(row).Where("payout_id = ?", payoutID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if pgutil.IsNoRows(err) {
			return nil, payout.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payout instruction: %w", err)
	}
	return fromDao(row), nil
}

func statusIn(s payout.Status, set []payout.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func fromDao(row *dao.PayoutInstructionDao) *payout.Instruction {
	ins := &payout.Instruction{
		PayoutID:            row.PayoutID,
		TransferID:          row.TransferID,
		Method:              payout.Method(row.Method),
		RecipientAccountRef: row.RecipientAccountRef,
		AmountETB:           row.AmountETB,
		Status:              payout.Status(row.Status),
		AttemptCount:        row.AttemptCount,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
	if row.ProviderReference != nil {
		ins.ProviderReference = *row.ProviderReference
	}
	if row.LastError != nil {
		ins.LastError = *row.LastError
	}
	return ins
}

func fromEventDao(row *dao.PayoutStatusEventDao) *payout.StatusEvent {
	ev := &payout.StatusEvent{
		PayoutID:   row.PayoutID,
		TransferID: row.TransferID,
		To:         payout.Status(row.ToStatus),
		Metadata:   row.Metadata,
		CreatedAt:  row.CreatedAt,
	}
	if row.FromStatus != nil {
		from := payout.Status(*row.FromStatus)
		ev.From = &from
	}
	return ev
}
