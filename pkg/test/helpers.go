package test

import (
	"log"
	"strings"
	"testing"

	"todolist/internal/adapter/database"
	"todolist/internal/adapter/database/sqlite"
	"todolist/pkg/config"
)

// InitTestDB opens a migrated in-memory sqlite database.
func InitTestDB() *database.DB {
	db, err := sqlite.NewDB(config.DatabaseConfig{
		Driver: database.DriverSQLite,
		Path:   sqlite.MemoryPath,
	})

	if err != nil {
		log.Fatal(err)
	}

	return db
}

func TeardownTestDB(t *testing.T, db *database.DB) {
	if db == nil {
		return
	}

	CleanDB(t, db)
	db.Close()
}

// CleanDB empties every application table and resets the id sequences.
func CleanDB(t *testing.T, db *database.DB) {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type = 'table' and name not in ('sqlite_sequence', 'schema_migrations')")

	if err != nil {
		t.Fatalf("Failed to query tables: %v", err)
	}

	var tables []string

	for rows.Next() {
		var table string

		if err := rows.Scan(&table); err != nil {
			rows.Close()
			t.Fatalf("Failed to scan table name: %v", err)
		}

		tables = append(tables, strings.TrimSpace(table))
	}

	if err := rows.Err(); err != nil {
		rows.Close()
		t.Fatalf("Error iterating over rows: %v", err)
	}

	// sqlite runs on a single connection here, so the cursor must be
	// released before the deletes can use it
	rows.Close()

	for _, table := range tables {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("Failed to execute delete for table %s: %v", table, err)
		}
	}

	if _, err := db.Exec("DELETE FROM sqlite_sequence"); err != nil {
		t.Fatalf("Failed to reset sequences: %v", err)
	}
}
