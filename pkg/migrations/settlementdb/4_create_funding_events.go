package settlementdb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/db/dao"
	mghelper "github.com/chainsafe/remittance-middleware/pkg/pgutil/migrations"
)

const fundingOnchainIndex = "uq_onchain_funding_event_chain_tx_log"

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating onchain_funding_event table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.FundingEventDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateCompositeIndex(ctx, db, &dao.FundingEventDao{}, fundingOnchainIndex, true, "",
			"chain", "tx_hash", "log_index"); err != nil {
			return err
		}
		return mghelper.CreateModelUniqueIndexes(ctx, db, &dao.FundingEventDao{}, "transfer_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping onchain_funding_event table...")
		return mghelper.DropTables(ctx, db, &dao.FundingEventDao{})
	})
}
