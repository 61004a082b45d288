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
		log.Println("creating idempotency_record table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.IdempotencyRecordDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.IdempotencyRecordDao{}, "expires_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping idempotency_record table...")
		return mghelper.DropTables(ctx, db, &dao.IdempotencyRecordDao{})
	})
}
