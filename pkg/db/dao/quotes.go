package dao

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// QuoteDao maps to the 'quotes' table. Rows are never updated.
type QuoteDao struct {
	bun.BaseModel      `bun:"table:quotes,alias:q"`
	QuoteID            string          `bun:"quote_id,pk,type:varchar(64)"`
	Chain              string          `bun:"chain,notnull,type:varchar(16)"`
	Token              string          `bun:"token,notnull,type:varchar(16)"`
	SendAmountUSD      decimal.Decimal `bun:"send_amount_usd,notnull,type:numeric(12,2)"`
	FxRateUSDToETB     decimal.Decimal `bun:"fx_rate_usd_to_etb,notnull,type:numeric(18,6)"`
	FeeUSD             decimal.Decimal `bun:"fee_usd,notnull,type:numeric(12,2)"`
	RecipientAmountETB decimal.Decimal `bun:"recipient_amount_etb,notnull,type:numeric(14,2)"`
	ExpiresAt          time.Time       `bun:"expires_at,notnull"`
	CreatedAt          time.Time       `bun:"created_at,notnull,nullzero,default:current_timestamp"`
}
