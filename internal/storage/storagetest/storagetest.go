// README: Test helper that opens a migrated, truncated Postgres pool from FOODDASH_TEST_DSN.
package storagetest

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"fooddash/internal/storage"
)

// Pool skips the test unless FOODDASH_TEST_DSN is set.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("FOODDASH_TEST_DSN")
	if dsn == "" {
		t.Skip("FOODDASH_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.Migrate(db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE cash_ledger_entries, orders, drivers, customers, menu_items, merchants"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return db
}
