// Package audit appends redacted audit entries, either standalone or inside a caller's transaction.
package audit

import (
	"context"
	"regexp"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
)

// Actor types.
const (
	ActorSystem   = "system"
	ActorService  = "service"
	ActorAdmin    = "admin"
	ActorCustomer = "customer"
)

const redacted = "[REDACTED]"

var sensitiveKey = regexp.MustCompile(`(?i)(secret|token|privatekey|private_key|password)`)

// Entry is one audit log row.
type Entry struct {
	ActorType  string         `json:"actorType"`
	ActorID    string         `json:"actorId"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	Reason     string         `json:"reason,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Sink appends and reads audit entries.
type Sink interface {
	Append(ctx context.Context, e Entry) error
	ListByEntity(ctx context.Context, entityType, entityID string) ([]*Entry, error)
}

type pgSink struct {
	db *bun.DB
}

// NewSink returns a postgres backed Sink.
func NewSink(db *bun.DB) Sink {
	return &pgSink{db: db}
}

func (s *pgSink) Append(ctx context.Context, e Entry) error {
	return Insert(ctx, s.db, e)
}

func (s *pgSink) ListByEntity(ctx context.Context, entityType, entityID string) ([]*Entry, error) {
	var rows []dao.AuditLogDao
	err := s.db.NewSelect().
		Model(&rows).
		Where("entity_type = ?", entityType).
		Where("entity_id = ?", entityID).
		Order("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*Entry, 0, len(rows))
	for i := range rows {
		out = append(out, fromDao(&rows[i]))
	}
	return out, nil
}

// Insert writes e through db, which may be a bun.Tx.
func Insert(ctx context.Context, db bun.IDB, e Entry) error {
	_, err := db.NewInsert().Model(toDao(e)).Exec(ctx)
	return err
}

// Redact returns a copy of meta with sensitive keys masked, recursing into nested maps.
func Redact(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		switch {
		case sensitiveKey.MatchString(k):
			out[k] = redacted
		default:
			if nested, ok := v.(map[string]any); ok {
				out[k] = Redact(nested)
				continue
			}
			out[k] = v
		}
	}
	return out
}

func toDao(e Entry) *dao.AuditLogDao {
	row := &dao.AuditLogDao{
		ActorType:  e.ActorType,
		ActorID:    e.ActorID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Metadata:   Redact(e.Metadata),
	}
	if e.Reason != "" {
		row.Reason = &e.Reason
	}
	if !e.CreatedAt.IsZero() {
		row.CreatedAt = e.CreatedAt
	}
	return row
}

func fromDao(row *dao.AuditLogDao) *Entry {
	e := &Entry{
		ActorType:  row.ActorType,
		ActorID:    row.ActorID,
		Action:     row.Action,
		EntityType: row.EntityType,
		EntityID:   row.EntityID,
		Metadata:   row.Metadata,
		CreatedAt:  row.CreatedAt,
	}
	if row.Reason != nil {
		e.Reason = *row.Reason
	}
	return e
}
