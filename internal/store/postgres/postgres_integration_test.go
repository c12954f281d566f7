package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/sphere-social/sphere-matching/internal/store"
	"github.com/sphere-social/sphere-matching/internal/store/storetest"
)

func makePGStore(t *testing.T) store.Store {
	t.Helper()
	dsn := os.Getenv("MATCHING_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MATCHING_TEST_POSTGRES_DSN not set; skipping postgres store integration test")
	}
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("postgres open: %v", err)
	}
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db)
}

func TestPostgresStore_Compliance(t *testing.T) {
	storetest.Run(t, makePGStore)
}
