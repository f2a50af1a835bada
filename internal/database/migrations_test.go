package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	return db
}

func TestCreateMigrationsTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := createMigrationsTable(db); err != nil {
		t.Fatalf("failed to create migrations table: %v", err)
	}

	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='migrations'
	`).Scan(&count)
	if err != nil {
		t.Fatalf("failed to query migrations table: %v", err)
	}

	if count != 1 {
		t.Errorf("expected 1 migrations table, got %d", count)
	}
}

func TestRecordMigration(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := createMigrationsTable(db); err != nil {
		t.Fatalf("failed to create migrations table: %v", err)
	}

	if err := recordMigration(db, "test_migration", 1); err != nil {
		t.Fatalf("failed to record migration: %v", err)
	}

	var migrationName string
	var batch int
	err := db.QueryRow(`
		SELECT migration, batch FROM migrations WHERE migration = ?
	`, "test_migration").Scan(&migrationName, &batch)
	if err != nil {
		t.Fatalf("failed to query migration: %v", err)
	}

	if migrationName != "test_migration" {
		t.Errorf("expected migration name 'test_migration', got %q", migrationName)
	}
	if batch != 1 {
		t.Errorf("expected batch 1, got %d", batch)
	}
}

func TestHasMigrationRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := createMigrationsTable(db); err != nil {
		t.Fatalf("failed to create migrations table: %v", err)
	}

	hasRun, err := hasMigrationRun(db, "nonexistent")
	if err != nil {
		t.Fatalf("failed to check migration: %v", err)
	}
	if hasRun {
		t.Error("expected hasRun to be false for nonexistent migration")
	}

	if err := recordMigration(db, "test_migration", 1); err != nil {
		t.Fatalf("failed to record migration: %v", err)
	}

	hasRun, err = hasMigrationRun(db, "test_migration")
	if err != nil {
		t.Fatalf("failed to check migration: %v", err)
	}
	if !hasRun {
		t.Error("expected hasRun to be true for existing migration")
	}
}

func TestRunMigrations(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	if err := runMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	for _, table := range []string{"runs", "run_items", "remotes", "migrations"} {
		var count int
		err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	var applied int
	if err := db.QueryRow(`SELECT COUNT(*) FROM migrations`).Scan(&applied); err != nil {
		t.Fatalf("failed to count migrations: %v", err)
	}
	if applied != len(migrations) {
		t.Errorf("expected %d applied migrations, got %d", len(migrations), applied)
	}
}

func TestRunMigrations_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	for i := 0; i < 3; i++ {
		if err := runMigrations(db); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}

	var batches int
	if err := db.QueryRow(`SELECT COUNT(DISTINCT batch) FROM migrations`).Scan(&batches); err != nil {
		t.Fatalf("failed to count batches: %v", err)
	}
	if batches != 1 {
		t.Errorf("expected a single batch, got %d", batches)
	}
}

func TestRunMigrations_CascadeDeletesItems(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	if _, err := db.Exec(`INSERT INTO runs (id, kind, started_at) VALUES ('r1', 'backup', CURRENT_TIMESTAMP)`); err != nil {
		t.Fatalf("failed to insert run: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO run_items (run_id, module, kind, outcome) VALUES ('r1', 'editor', 'module', 'succeeded')`); err != nil {
		t.Fatalf("failed to insert item: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM runs WHERE id = 'r1'`); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM run_items`).Scan(&count); err != nil {
		t.Fatalf("failed to count items: %v", err)
	}
	if count != 0 {
		t.Errorf("expected items to be deleted with their run, got %d", count)
	}
}
