package settlementdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	mghelper "github.com/chainsafe/remittance-middleware/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating reconciliation_run and reconciliation_issue tables...")
		if err := mghelper.CreateSchema(ctx, db, &dao.ReconciliationRunDao{}, &dao.ReconciliationIssueDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.ReconciliationIssueDao{}, "run_id", "detected_at", "transfer_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping reconciliation_run and reconciliation_issue tables...")
		return mghelper.DropTables(ctx, db, &dao.ReconciliationIssueDao{}, &dao.ReconciliationRunDao{})
	})
}
