package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type migration struct {
	version int
	name    string
	upSQL   string
}

// migrate applies every embedded migration newer than the recorded schema
// version. A migration that failed halfway leaves the version dirty and
// blocks further runs.
func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty BOOLEAN NOT NULL DEFAULT FALSE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create schema table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	current, dirty, err := schemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d, manual intervention required", current)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

func loadMigrations() ([]migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, err
	}

	var out []migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}

		version, label, ok := parseMigrationName(strings.TrimSuffix(name, ".up.sql"))
		if !ok {
			return nil, fmt.Errorf("invalid migration filename %q", name)
		}
		content, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, err
		}
		out = append(out, migration{version: version, name: label, upSQL: string(content)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// parseMigrationName splits "001_init" into 1 and "init".
func parseMigrationName(base string) (int, string, bool) {
	num, label, found := strings.Cut(base, "_")
	if !found || label == "" {
		return 0, "", false
	}
	version, err := strconv.Atoi(num)
	if err != nil {
		return 0, "", false
	}
	return version, label, true
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, bool, error) {
	var version int
	var dirty bool
	err := db.QueryRowContext(ctx, `
		SELECT version, dirty
		FROM schema_migrations
		ORDER BY version DESC
		LIMIT 1
	`).Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	return version, dirty, err
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, dirty) VALUES (?, TRUE)`, m.version); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, m.upSQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE schema_migrations SET dirty = FALSE WHERE version = ?`, m.version); err != nil {
		return err
	}
	return tx.Commit()
}
