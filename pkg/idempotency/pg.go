package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	"github.com/chainsafe/remittance-middleware/pkg/pgutil"
)

type pgStore struct {
	db *bun.DB
}

// NewStore returns a postgres backed Store.
func NewStore(db *bun.DB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Reserve(ctx context.Context, key, requestHash string, now, expiresAt time.Time) (bool, error) {
	var reserved bool
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// An expired record no longer binds the key.
		if _, err := tx.NewDelete().
			Model((*dao.IdempotencyRecordDao)(nil)).
			Where("key = ?", key).
			Where("expires_at < ?", now).
			Exec(ctx); err != nil {
			return fmt.Errorf("delete expired record: %w", err)
		}

		res, err := tx.NewInsert().
			Model(&dao.IdempotencyRecordDao{
				Key:            key,
				RequestHash:    requestHash,
				ResponseStatus: dao.InFlightStatus,
				CreatedAt:      now,
				ExpiresAt:      expiresAt,
			}).
			On("CONFLICT (key) DO NOTHING").
			Exec(ctx)
		if err != nil {
			if pgutil.IsUniqueViolation(err) {
				return nil
			}
			return fmt.Errorf("insert placeholder: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		reserved = n == 1
		return nil
	})
	return reserved, err
}

func (s *pgStore) Complete(ctx context.Context, key, requestHash string, status int, body json.RawMessage) error {
	_, err := s.db.NewUpdate().
		Model((*dao.IdempotencyRecordDao)(nil)).
		Set("response_status = ?", status).
		Set("response_body = ?", string(body)).
		Where("key = ?", key).
		Where("request_hash = ?", requestHash).
		Exec(ctx)
	return err
}

func (s *pgStore) Release(ctx context.Context, key, requestHash string) error {
	_, err := s.db.NewDelete().
		Model((*dao.IdempotencyRecordDao)(nil)).
		Where("key = ?", key).
		Where("request_hash = ?", requestHash).
		Where("response_status = ?", dao.InFlightStatus).
		Exec(ctx)
	return err
}

func (s *pgStore) Get(ctx context.Context, key string) (*Record, error) {
	rec := new(dao.IdempotencyRecordDao)
	err := s.db.NewSelect().Model(rec).Where("key = ?", key).Scan(ctx)
	if err != nil {
		if pgutil.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return &Record{
		Key:         rec.Key,
		RequestHash: rec.RequestHash,
		Status:      rec.ResponseStatus,
		Body:        rec.ResponseBody,
		CreatedAt:   rec.CreatedAt,
		ExpiresAt:   rec.ExpiresAt,
	}, nil
}

func (s *pgStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.NewDelete().
		Model((*dao.IdempotencyRecordDao)(nil)).
		Where("expires_at < ?", now).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
