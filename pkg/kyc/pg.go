package kyc

import (
	"context"
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

func (s *pgStore) GetByReceiverID(ctx context.Context, receiverID string) (*Profile, error) {
	row := new(dao.ReceiverKYCProfileDao)
	err := s.db.NewSelect().Model(row).Where("receiver_id = ?", receiverID).Scan(ctx)
	if err != nil {
		if pgutil.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return fromDao(row), nil
}

func (s *pgStore) Upsert(ctx context.Context, p *Profile) (*Profile, error) {
	row := toDao(p)
	row.UpdatedAt = time.Now().UTC()
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (receiver_id) DO UPDATE").
		Set("kyc_status = EXCLUDED.kyc_status").
		Set("national_id_verified = EXCLUDED.national_id_verified").
		Set("national_id_hash = COALESCE(EXCLUDED.national_id_hash, rk.national_id_hash)").
		Set("national_id_encrypted = COALESCE(EXCLUDED.national_id_encrypted, rk.national_id_encrypted)").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert receiver kyc profile: %w", err)
	}
	return fromDao(row), nil
}

func toDao(p *Profile) *dao.ReceiverKYCProfileDao {
	row := &dao.ReceiverKYCProfileDao{
		ReceiverID:         p.ReceiverID,
		KYCStatus:          string(p.KYCStatus),
		NationalIDVerified: p.NationalIDVerified,
	}
	if p.NationalIDHash != "" {
		row.NationalIDHash = &p.NationalIDHash
	}
	if p.NationalIDEncrypted != "" {
		row.NationalIDEncrypted = &p.NationalIDEncrypted
	}
	return row
}

func fromDao(row *dao.ReceiverKYCProfileDao) *Profile {
	p := &Profile{
		ReceiverID:         row.ReceiverID,
		KYCStatus:          Status(row.KYCStatus),
		NationalIDVerified: row.NationalIDVerified,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
	if row.NationalIDHash != nil {
		p.NationalIDHash = *row.NationalIDHash
	}
	if row.NationalIDEncrypted != nil {
		p.NationalIDEncrypted = *row.NationalIDEncrypted
	}
	return p
}
