// Package sqlite persists accounts, licenses and the product catalog in an
// embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/gavrikov2044-bot/cs-legit/internal/migrate"
)

//go:embed migrations
var migrationFS embed.FS

// Open opens (creating if needed) the database at path and applies the
// pragmas the subsystem relies on. An empty path yields an in-memory
// database.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	// SQLite serialises writes itself; one connection sidesteps table-lock
	// contention entirely and keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	return db, nil
}

// Migrator returns a migration manager bound to the embedded schema files.
func Migrator(db *sql.DB) *migrate.Manager {
	return migrate.NewManager(db, migrationFS, "migrations")
}

// Migrate applies all pending schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	return Migrator(db).Up(ctx)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
