package dao

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// PayoutInstructionDao maps to the 'payout_instruction' table. One row per transfer.
type PayoutInstructionDao struct {
	bun.BaseModel       `bun:"table:payout_instruction,alias:pi"`
	PayoutID            string          `bun:"payout_id,pk,type:varchar(64)"`
	TransferID          string          `bun:"transfer_id,notnull,unique,type:varchar(64)"`
	Method              string          `bun:"method,notnull,type:varchar(16)"`
	RecipientAccountRef string          `bun:"recipient_account_ref,notnull,type:varchar(128)"`
	AmountETB           decimal.Decimal `bun:"amount_etb,notnull,type:numeric(14,2)"`
	Status              string          `bun:"status,notnull,type:varchar(32)"`
	ProviderReference   *string         `bun:"provider_reference,type:varchar(128)"`
	AttemptCount        int             `bun:"attempt_count,notnull,use_zero,default:0"`
	LastError           *string         `bun:"last_error,type:text"`
	DispatchLeaseUntil  *time.Time      `bun:"dispatch_lease_until"`
	CreatedAt           time.Time       `bun:"created_at,notnull,nullzero,default:current_timestamp"`
	UpdatedAt           time.Time       `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

// PayoutStatusEventDao maps to the append-only 'payout_status_event' table.
type PayoutStatusEventDao struct {
	bun.BaseModel `bun:"table:payout_status_event,alias:pse"`
	ID            int64          `bun:"id,pk,autoincrement"`
	PayoutID      string         `bun:"payout_id,notnull,type:varchar(64)"`
	TransferID    string         `bun:"transfer_id,notnull,type:varchar(64)"`
	FromStatus    *string        `bun:"from_status,type:varchar(32)"`
	ToStatus      string         `bun:"to_status,notnull,type:varchar(32)"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,nullzero"`
	CreatedAt     time.Time      `bun:"created_at,notnull,nullzero,default:current_timestamp"`
}
