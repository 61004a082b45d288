package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// AuditLogDao maps to the append-only 'audit_log' table.
type AuditLogDao struct {
	bun.BaseModel `bun:"table:audit_log,alias:al"`
	ID            int64          `bun:"id,pk,autoincrement"`
	ActorType     string         `bun:"actor_type,notnull,type:varchar(32)"`
	ActorID       string         `bun:"actor_id,notnull,type:varchar(128)"`
	Action        string         `bun:"action,notnull,type:varchar(64)"`
	EntityType    string         `bun:"entity_type,notnull,type:varchar(64)"`
	EntityID      string         `bun:"entity_id,notnull,type:varchar(128)"`
	Reason        *string        `bun:"reason,type:text"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,nullzero"`
	CreatedAt     time.Time      `bun:"created_at,notnull,nullzero,default:current_timestamp"`
}
