package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// ReconciliationRunDao maps to the 'reconciliation_run' table.
type ReconciliationRunDao struct {
	bun.BaseModel  `bun:"table:reconciliation_run,alias:rr"`
	RunID          string     `bun:"run_id,pk,type:varchar(64)"`
	Reason         string     `bun:"reason,notnull,type:text"`
	Status         string     `bun:"status,notnull,type:varchar(16)"`
	StartedAt      time.Time  `bun:"started_at,notnull,nullzero,default:current_timestamp"`
	FinishedAt     *time.Time `bun:"finished_at"`
	TotalTransfers int        `bun:"total_transfers,notnull,use_zero,default:0"`
	TotalIssues    int        `bun:"total_issues,notnull,use_zero,default:0"`
	ErrorMessage   *string    `bun:"error_message,type:text"`
}

// ReconciliationIssueDao maps to the 'reconciliation_issue' table.
type ReconciliationIssueDao struct {
	bun.BaseModel `bun:"table:reconciliation_issue,alias:ri"`
	ID            int64          `bun:"id,pk,autoincrement"`
	RunID         string         `bun:"run_id,notnull,type:varchar(64)"`
	TransferID    string         `bun:"transfer_id,notnull,type:varchar(64)"`
	IssueCode     string         `bun:"issue_code,notnull,type:varchar(64)"`
	Details       map[string]any `bun:"details,type:jsonb,nullzero"`
	DetectedAt    time.Time      `bun:"detected_at,notnull,nullzero,default:current_timestamp"`
}
