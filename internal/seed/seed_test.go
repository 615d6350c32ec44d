package seed

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/Simplici0/simulador-reforma/internal/db"
	"github.com/Simplici0/simulador-reforma/internal/migrations"
)

func TestRunIsIdempotent(t *testing.T) {
	ctx := context.Background()

	dbPath := filepath.Join(t.TempDir(), "seed-test.db")
	database, err := db.Open(ctx, dbPath)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	defer database.Close()

	if err := migrations.Up(ctx, database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	for i := 0; i < 10; i++ {
		stats, err := Run(ctx, database)
		if err != nil {
			t.Fatalf("run seed (iteration=%d): %v", i, err)
		}
		if i == 0 {
			if stats.Inserts != 2 {
				t.Fatalf("expected 2 inserts in first run, got %d", stats.Inserts)
			}
			continue
		}
		if stats.Inserts != 0 {
			t.Fatalf("expected 0 inserts in iteration %d, got %d", i, stats.Inserts)
		}
	}

	assertCount(t, database, `SELECT COUNT(*) FROM rate_profiles WHERE name = ?`, DefaultProfileName, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM rate_profiles WHERE name = ?`, ExemptProfileName, 1)
	assertCount(t, database, `SELECT COUNT(*) FROM rate_profiles WHERE is_default`, nil, 1)

	var icms float64
	if err := database.QueryRow(`SELECT icms_percent FROM rate_profiles WHERE is_default`).Scan(&icms); err != nil {
		t.Fatalf("query default icms: %v", err)
	}
	if icms != DefaultRates.ICMS {
		t.Fatalf("expected default icms %v, got %v", DefaultRates.ICMS, icms)
	}
}

func TestRunKeepsExistingDefault(t *testing.T) {
	ctx := context.Background()

	database, err := db.Open(ctx, db.Memory)
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	defer database.Close()

	if err := migrations.Up(ctx, database); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	if _, err := database.Exec(`INSERT INTO rate_profiles (name, icms_percent, is_default) VALUES ('Minha', 12, TRUE)`); err != nil {
		t.Fatalf("insert custom default: %v", err)
	}

	if _, err := Run(ctx, database); err != nil {
		t.Fatalf("run seed: %v", err)
	}

	assertCount(t, database, `SELECT COUNT(*) FROM rate_profiles WHERE is_default AND name = ?`, "Minha", 1)
	assertCount(t, database, `SELECT COUNT(*) FROM rate_profiles WHERE is_default`, nil, 1)
}

func assertCount(t *testing.T, database *sql.DB, query string, args any, expected int) {
	t.Helper()

	var count int
	var err error
	switch v := args.(type) {
	case nil:
		err = database.QueryRow(query).Scan(&count)
	case []any:
		err = database.QueryRow(query, v...).Scan(&count)
	default:
		err = database.QueryRow(query, v).Scan(&count)
	}
	if err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected count %d, got %d", expected, count)
	}
}
