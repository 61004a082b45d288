package settlementdb

import (
	"context"
	"testing"

	"github.com/uptrace/bun/migrate"

	"github.com/chainsafe/remittance-middleware/pkg/pgutil"
	mghelper "github.com/chainsafe/remittance-middleware/pkg/pgutil/migrations"
)

func TestMigrations_CreateSchema(t *testing.T) {
	db := SetupTestDB(t)

	tables := []string{
		"idempotency_record", "quotes", "receiver_kyc_profile", "transfers", "transfer_transition",
		"deposit_routes", "onchain_funding_event", "payout_instruction", "payout_status_event",
		"ledger_journal", "ledger_entry", "audit_log", "reconciliation_run", "reconciliation_issue",
	}
	for _, table := range tables {
		pgutil.AssertTableExists(t, db, table)
	}

	for _, index := range []string{activeRouteAddressIndex, activeRouteTransferIndex, fundingOnchainIndex,
		"idx_onchain_funding_event_transfer_id", "idx_transfers_status", auditEntityIndex} {
		pgutil.AssertIndexExists(t, db, index)
	}
}

func TestMigrations_Rollback(t *testing.T) {
	db := SetupTestDB(t)
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, Migrations)
	if err := mghelper.RunMigrations(ctx, migrator, "down"); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}

	var exists bool
	err := db.NewSelect().
		ColumnExpr("EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ?)",
			"transfers").
		Scan(ctx, &exists)
	if err != nil {
		t.Fatalf("exists query failed: %v", err)
	}
	if exists {
		t.Fatal("transfers table should be dropped after rollback")
	}

	if err := mghelper.RunMigrations(ctx, migrator, "up"); err != nil {
		t.Fatalf("re-apply failed: %v", err)
	}
	pgutil.AssertTableExists(t, db, "transfers")
}
