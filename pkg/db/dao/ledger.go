package dao

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// LedgerJournalDao maps to the 'ledger_journal' table.
type LedgerJournalDao struct {
	bun.BaseModel `bun:"table:ledger_journal,alias:lj"`
	JournalID     string    `bun:"journal_id,pk,type:varchar(64)"`
	TransferID    string    `bun:"transfer_id,notnull,type:varchar(64)"`
	Description   string    `bun:"description,notnull,type:text"`
	CreatedAt     time.Time `bun:"created_at,notnull,nullzero,default:current_timestamp"`
}

// LedgerEntryDao maps to the 'ledger_entry' table.
type LedgerEntryDao struct {
	bun.BaseModel `bun:"table:ledger_entry,alias:le"`
	ID            int64           `bun:"id,pk,autoincrement"`
	JournalID     string          `bun:"journal_id,notnull,type:varchar(64)"`
	TransferID    string          `bun:"transfer_id,notnull,type:varchar(64)"`
	AccountCode   string          `bun:"account_code,notnull,type:varchar(64)"`
	EntryType     string          `bun:"entry_type,notnull,type:varchar(8)"`
	AmountUSD     decimal.Decimal `bun:"amount_usd,notnull,type:numeric(12,2)"`
	CreatedAt     time.Time       `bun:"created_at,notnull,nullzero,default:current_timestamp"`
}
