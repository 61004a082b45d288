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
		log.Println("creating quotes and receiver_kyc_profile tables...")
		if err := mghelper.CreateSchema(ctx, db, &dao.QuoteDao{}, &dao.ReceiverKYCProfileDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.ReceiverKYCProfileDao{}, "national_id_hash")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping quotes and receiver_kyc_profile tables...")
		return mghelper.DropTables(ctx, db, &dao.ReceiverKYCProfileDao{}, &dao.QuoteDao{})
	})
}
