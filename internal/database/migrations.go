package database

import (
	"database/sql"
	"fmt"
	"log"
)

type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{"create_runs_table", `CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		archive TEXT,
		modules TEXT,
		error TEXT,
		summary TEXT,
		started_at DATETIME NOT NULL,
		finished_at DATETIME
	)`},

	{"create_run_items_table", `CREATE TABLE IF NOT EXISTS run_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		module TEXT NOT NULL,
		kind TEXT NOT NULL,
		path TEXT,
		outcome TEXT NOT NULL,
		reason TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	)`},

	{"create_remotes_table", `CREATE TABLE IF NOT EXISTS remotes (
		name TEXT PRIMARY KEY,
		protocol TEXT NOT NULL,
		host TEXT,
		port INTEGER DEFAULT 0,
		username TEXT,
		password_enc TEXT,
		region TEXT,
		endpoint TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`},

	{"add_remotes_credentials_file", `ALTER TABLE remotes ADD COLUMN credentials_file TEXT`},

	{"create_runs_indexes", `CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`},
	{"create_run_items_indexes", `CREATE INDEX IF NOT EXISTS idx_run_items_run_id ON run_items(run_id)`},
}

func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		migration TEXT UNIQUE NOT NULL,
		batch INTEGER NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func hasMigrationRun(db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM migrations WHERE migration = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func recordMigration(db *sql.DB, name string, batch int) error {
	_, err := db.Exec(`INSERT INTO migrations (migration, batch) VALUES (?, ?)`, name, batch)
	return err
}

func nextBatch(db *sql.DB) (int, error) {
	var batch sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(batch) FROM migrations`).Scan(&batch); err != nil {
		return 0, err
	}
	return int(batch.Int64) + 1, nil
}

func runMigrations(db *sql.DB) error {
	if err := createMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	batch, err := nextBatch(db)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		done, err := hasMigrationRun(db, m.name)
		if err != nil {
			return err
		}
		if done {
			continue
		}

		if _, err := db.Exec(m.sql); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.name, err)
		}
		if err := recordMigration(db, m.name, batch); err != nil {
			return err
		}
		log.Printf("[Database] Applied migration %s", m.name)
	}
	return nil
}
