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
		log.Println("creating payout_instruction and payout_status_event tables...")
		if err := mghelper.CreateSchema(ctx, db, &dao.PayoutInstructionDao{}, &dao.PayoutStatusEventDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &dao.PayoutInstructionDao{}, "status"); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.PayoutStatusEventDao{}, "payout_id", "transfer_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping payout_instruction and payout_status_event tables...")
		return mghelper.DropTables(ctx, db, &dao.PayoutStatusEventDao{}, &dao.PayoutInstructionDao{})
	})
}
