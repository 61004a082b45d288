package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"github.com/chainsafe/remittance-middleware/pkg/config"
	"github.com/chainsafe/remittance-middleware/pkg/pgutil"
)

type testDao struct {
	bun.BaseModel `bun:"table:test_table"`
	ID            int64  `bun:",pk,autoincrement"`
	Name          string `bun:",notnull,type:varchar(100)"`
	Kind          string `bun:",notnull,type:varchar(16)"`
	Active        bool   `bun:",notnull"`
}

func TestConnectDB_InvalidHost(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     5432,
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
	}

	db, err := pgutil.ConnectDB(context.Background(), cfg)
	if err == nil {
		_ = db.Close()
		t.Fatal("ConnectDB() should fail with invalid host")
	}
}

func TestCreateAndDropSchema(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &testDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	pgutil.AssertTableExists(t, db, "test_table")

	if err := CreateSchema(ctx, db, &testDao{}); err != nil {
		t.Fatalf("CreateSchema() second call failed: %v", err)
	}

	if err := DropTables(ctx, db, &testDao{}); err != nil {
		t.Fatalf("DropTables() failed: %v", err)
	}
	if err := DropTables(ctx, db, &testDao{}); err != nil {
		t.Fatalf("DropTables() second call failed: %v", err)
	}
}

func TestTruncateTables(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &testDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	rows := []*testDao{{Name: "a", Kind: "x"}, {Name: "b", Kind: "y"}}
	if _, err := db.NewInsert().Model(&rows).Exec(ctx); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	pgutil.AssertRowCount(t, db, "test_table", 2)

	if err := TruncateTables(ctx, db, &testDao{}); err != nil {
		t.Fatalf("TruncateTables() failed: %v", err)
	}
	pgutil.AssertRowCount(t, db, "test_table", 0)
}

func TestCreateModelIndexes(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &testDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	if err := CreateModelIndexes(ctx, db, &testDao{}, "name", "kind"); err != nil {
		t.Fatalf("CreateModelIndexes() failed: %v", err)
	}
	pgutil.AssertIndexExists(t, db, "idx_test_table_name")
	pgutil.AssertIndexExists(t, db, "idx_test_table_kind")

	if err := DropIndex(ctx, db, "idx_test_table_kind"); err != nil {
		t.Fatalf("DropIndex() failed: %v", err)
	}
	if err := DropIndex(ctx, db, "idx_test_table_kind"); err != nil {
		t.Fatalf("DropIndex() second call failed: %v", err)
	}
}

func TestCreateCompositeIndex_PartialUnique(t *testing.T) {
	db, cleanup := pgutil.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &testDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	err := CreateCompositeIndex(ctx, db, &testDao{}, "uq_test_active_name_kind", true, "active = true", "name", "kind")
	if err != nil {
		t.Fatalf("CreateCompositeIndex() failed: %v", err)
	}
	pgutil.AssertIndexExists(t, db, "uq_test_active_name_kind")

	insert := func(active bool) error {
		_, err := db.NewInsert().Model(&testDao{Name: "dup", Kind: "x", Active: active}).Exec(ctx)
		return err
	}
	if err := insert(true); err != nil {
		t.Fatalf("first active insert failed: %v", err)
	}
	if err := insert(false); err != nil {
		t.Fatalf("inactive duplicate should be allowed: %v", err)
	}
	err = insert(true)
	if err == nil {
		t.Fatal("expected duplicate active insert to fail")
	}
	if !pgutil.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}
