package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// ReceiverKYCProfileDao maps to the 'receiver_kyc_profile' table.
type ReceiverKYCProfileDao struct {
	bun.BaseModel       `bun:"table:receiver_kyc_profile,alias:rk"`
	ReceiverID          string    `bun:"receiver_id,pk,type:varchar(128)"`
	KYCStatus           string    `bun:"kyc_status,notnull,type:varchar(32)"`
	NationalIDVerified  bool      `bun:"national_id_verified,notnull,default:false"`
	NationalIDHash      *string   `bun:"national_id_hash,type:char(64)"`
	NationalIDEncrypted *string   `bun:"national_id_encrypted,type:text"`
	CreatedAt           time.Time `bun:"created_at,notnull,nullzero,default:current_timestamp"`
	UpdatedAt           time.Time `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}
