// Package testing provides shared test helpers.
package testing

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/promptpipe/promptpipe/db"
)

// CreateTestDB creates an in-memory SQLite database with the full schema
// applied. The connection is closed automatically when the test ends.
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// Cascade behavior in tests must match production connections
	if _, err := testDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
		testDB.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := db.Migrate(testDB, nil); err != nil {
		testDB.Close()
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		testDB.Close()
	})

	return testDB
}
