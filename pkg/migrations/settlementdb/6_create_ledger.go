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
		log.Println("creating ledger_journal and ledger_entry tables...")
		if err := mghelper.CreateSchema(ctx, db, &dao.LedgerJournalDao{}, &dao.LedgerEntryDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &dao.LedgerJournalDao{}, "transfer_id"); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.LedgerEntryDao{}, "journal_id", "transfer_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping ledger_journal and ledger_entry tables...")
		return mghelper.DropTables(ctx, db, &dao.LedgerEntryDao{}, &dao.LedgerJournalDao{})
	})
}
