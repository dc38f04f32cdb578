package testutil

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
)

// PostgresDB opens the test database named by MAD_TEST_POSTGRES_DSN, or
// skips the test when the variable is unset. Integration tests that
// need real infrastructure use this so `go test ./...` stays green on a
// bare machine.
func PostgresDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("MAD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MAD_TEST_POSTGRES_DSN not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// NATSURL returns the test NATS URL or skips.
func NATSURL(t *testing.T) string {
	t.Helper()

	url := os.Getenv("MAD_TEST_NATS_URL")
	if url == "" {
		t.Skip("MAD_TEST_NATS_URL not set, skipping integration test")
	}
	return url
}
