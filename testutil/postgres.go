package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onnwee/clipherald/db"
)

// SetupTestDB creates a test database connection, runs migrations, and clears
// clip pipeline tables so tests start from a known state. It skips the test if
// the TEST_PG_DSN environment variable is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(context.Background(), database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	if _, err := database.Exec(`TRUNCATE clips, games, users, access_tokens, kv`); err != nil {
		database.Close()
		t.Fatalf("failed to reset tables: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}
