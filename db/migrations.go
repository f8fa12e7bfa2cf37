package db

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration is one versioned schema change
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

var migrations = []Migration{
	{
		Version: 1,
		Name:    "create_items",
		Up: `
			CREATE TABLE IF NOT EXISTS items (
				id TEXT PRIMARY KEY,
				source_url TEXT NOT NULL,
				title TEXT NOT NULL,
				slug TEXT NOT NULL UNIQUE,
				body_html TEXT NOT NULL DEFAULT '',
				featured_image_url TEXT NOT NULL DEFAULT '',
				meta_description TEXT NOT NULL DEFAULT '',
				keywords TEXT NOT NULL DEFAULT '[]',
				app_version TEXT NOT NULL DEFAULT '',
				app_size TEXT NOT NULL DEFAULT '',
				requirements TEXT NOT NULL DEFAULT '',
				downloads_count TEXT NOT NULL DEFAULT '',
				developer TEXT NOT NULL DEFAULT '',
				download_link TEXT NOT NULL DEFAULT '',
				published BOOLEAN NOT NULL DEFAULT FALSE,
				fetched_at TIMESTAMP NOT NULL,
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_items_published ON items(published);
			CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at);
		`,
		Down: `DROP TABLE IF EXISTS items;`,
	},
	{
		Version: 2,
		Name:    "create_item_images",
		Up: `
			CREATE TABLE IF NOT EXISTS item_images (
				id TEXT PRIMARY KEY,
				item_slug TEXT NOT NULL,
				original_url TEXT NOT NULL,
				hosted_url TEXT NOT NULL,
				alt_text TEXT NOT NULL DEFAULT '',
				content_type TEXT NOT NULL DEFAULT '',
				width INTEGER NOT NULL DEFAULT 0,
				height INTEGER NOT NULL DEFAULT 0,
				file_size_bytes BIGINT NOT NULL DEFAULT 0,
				exif TEXT NOT NULL DEFAULT 'null',
				created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_item_images_slug ON item_images(item_slug);
		`,
		Down: `DROP TABLE IF EXISTS item_images;`,
	},
}

// Migrate runs all pending migrations
func Migrate(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	pending := make([]Migration, len(migrations))
	copy(pending, migrations)
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})

	for _, m := range pending {
		if m.Version <= currentVersion {
			continue
		}
		if err := runMigration(db, m); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", m.Version, m.Name, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// getCurrentVersion returns the highest applied migration version
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// runMigration applies a single migration inside a transaction
func runMigration(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES ($1, $2)",
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// Rollback reverts the most recently applied migration
func Rollback(db *sql.DB) error {
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if currentVersion == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var target *Migration
	for i := range migrations {
		if migrations[i].Version == currentVersion {
			target = &migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %d not found", currentVersion)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(target.Down); err != nil {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = $1", currentVersion); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}
