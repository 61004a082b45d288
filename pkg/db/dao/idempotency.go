// Package dao holds the bun data access objects for the settlement database.
package dao

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// InFlightStatus marks an idempotency record whose owner has not finished yet.
const InFlightStatus = -1

// IdempotencyRecordDao maps to the 'idempotency_record' table.
type IdempotencyRecordDao struct {
	bun.BaseModel  `bun:"table:idempotency_record,alias:ir"`
	Key            string          `bun:"key,pk,type:varchar(320)"`
	RequestHash    string          `bun:"request_hash,notnull,type:char(64)"`
	ResponseStatus int             `bun:"response_status,notnull"`
	ResponseBody   json.RawMessage `bun:"response_body,type:jsonb,nullzero"`
	CreatedAt      time.Time       `bun:"created_at,notnull,nullzero,default:current_timestamp"`
	ExpiresAt      time.Time       `bun:"expires_at,notnull"`
}
