package dao

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// TransferDao maps to the 'transfers' table.
type TransferDao struct {
	bun.BaseModel              `bun:"table:transfers,alias:t"`
	TransferID                 string          `bun:"transfer_id,pk,type:varchar(64)"`
	QuoteID                    string          `bun:"quote_id,notnull,type:varchar(64)"`
	SenderID                   string          `bun:"sender_id,notnull,type:varchar(128)"`
	ReceiverID                 string          `bun:"receiver_id,notnull,type:varchar(128)"`
	SenderKYCStatus            string          `bun:"sender_kyc_status,notnull,type:varchar(32)"`
	ReceiverKYCStatus          string          `bun:"receiver_kyc_status,notnull,type:varchar(32)"`
	ReceiverNationalIDVerified bool            `bun:"receiver_national_id_verified,notnull,default:false"`
	Chain                      string          `bun:"chain,notnull,type:varchar(16)"`
	Token                      string          `bun:"token,notnull,type:varchar(16)"`
	SendAmountUSD              decimal.Decimal `bun:"send_amount_usd,notnull,type:numeric(12,2)"`
	Status                     string          `bun:"status,notnull,type:varchar(32)"`
	CreatedAt                  time.Time       `bun:"created_at,notnull,nullzero,default:current_timestamp"`
	UpdatedAt                  time.Time       `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}

// TransferTransitionDao maps to the append-only 'transfer_transition' table.
type TransferTransitionDao struct {
	bun.BaseModel `bun:"table:transfer_transition,alias:tt"`
	ID            int64          `bun:"id,pk,autoincrement"`
	TransferID    string         `bun:"transfer_id,notnull,type:varchar(64)"`
	FromState     *string        `bun:"from_state,type:varchar(32)"`
	ToState       string         `bun:"to_state,notnull,type:varchar(32)"`
	OccurredAt    time.Time      `bun:"occurred_at,notnull,nullzero,default:current_timestamp"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,nullzero"`
}

// DepositRouteDao maps to the 'deposit_routes' table.
type DepositRouteDao struct {
	bun.BaseModel  `bun:"table:deposit_routes,alias:dr"`
	RouteID        string    `bun:"route_id,pk,type:varchar(64)"`
	TransferID     string    `bun:"transfer_id,notnull,type:varchar(64)"`
	Chain          string    `bun:"chain,notnull,type:varchar(16)"`
	Token          string    `bun:"token,notnull,type:varchar(16)"`
	DepositAddress string    `bun:"deposit_address,notnull,type:varchar(128)"`
	DepositMemo    *string   `bun:"deposit_memo,type:varchar(64)"`
	Status         string    `bun:"status,notnull,type:varchar(16)"`
	CreatedAt      time.Time `bun:"created_at,notnull,nullzero,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,notnull,nullzero,default:current_timestamp"`
}
