package settlementdb

import (
	"context"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	"github.com/chainsafe/remittance-middleware/pkg/pgutil"
	mghelper "github.com/chainsafe/remittance-middleware/pkg/pgutil/migrations"
)

// SetupTestDB starts a postgres testcontainer with every settlement migration applied.
// The test is skipped when docker is unavailable.
func SetupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	if err := mghelper.MigrateUp(context.Background(), migrate.NewMigrator(db, Migrations)); err != nil {
		t.Fatalf("failed to apply settlement migrations: %v", err)
	}
	return db
}
