package dao

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// FundingEventDao maps to the 'onchain_funding_event' table.
// Unique on (chain, tx_hash, log_index) and on transfer_id.
type FundingEventDao struct {
	bun.BaseModel  `bun:"table:onchain_funding_event,alias:fe"`
	EventID        string          `bun:"event_id,pk,type:varchar(128)"`
	Chain          string          `bun:"chain,notnull,type:varchar(16)"`
	Token          string          `bun:"token,notnull,type:varchar(16)"`
	TxHash         string          `bun:"tx_hash,notnull,type:varchar(128)"`
	LogIndex       int             `bun:"log_index,notnull,use_zero"`
	TransferID     string          `bun:"transfer_id,notnull,type:varchar(64)"`
	DepositAddress string          `bun:"deposit_address,notnull,type:varchar(128)"`
	AmountUSD      decimal.Decimal `bun:"amount_usd,notnull,type:numeric(12,2)"`
	ConfirmedAt    time.Time       `bun:"confirmed_at,notnull"`
	CreatedAt      time.Time       `bun:"created_at,notnull,nullzero,default:current_timestamp"`
}
