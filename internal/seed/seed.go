package seed

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
)

const (
	DefaultProfileName = "Padrão"
	ExemptProfileName  = "Isento"
)

// DefaultRates pre-fills the simulation form on a fresh database.
var DefaultRates = taxcalc.RateSet{
	II:     14,
	PIS:    2.1,
	COFINS: 9.65,
	IPI:    10,
	IS:     0,
	IBS:    17.7,
	CBS:    8.8,
	ICMS:   18,
}

// Stats contains seed operation counters.
type Stats struct {
	Inserts int
}

// Run executes the startup seed in an idempotent way.
func Run(ctx context.Context, db *sql.DB) (Stats, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Stats{}, fmt.Errorf("begin seed transaction: %w", err)
	}

	stats := Stats{}

	hasDefault, err := defaultExists(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureProfile(ctx, tx, DefaultProfileName, DefaultRates, !hasDefault, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}
	if err := ensureProfile(ctx, tx, ExemptProfileName, taxcalc.RateSet{}, false, &stats); err != nil {
		_ = tx.Rollback()
		return Stats{}, err
	}

	if err := tx.Commit(); err != nil {
		return Stats{}, fmt.Errorf("commit seed transaction: %w", err)
	}

	return stats, nil
}

func defaultExists(ctx context.Context, tx *sql.Tx) (bool, error) {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rate_profiles WHERE is_default)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("check default profile existence: %w", err)
	}
	return exists, nil
}

func ensureProfile(ctx context.Context, tx *sql.Tx, name string, rates taxcalc.RateSet, isDefault bool, stats *Stats) error {
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM rate_profiles WHERE name = ? LIMIT 1)`, name).Scan(&exists); err != nil {
		return fmt.Errorf("check profile %q existence: %w", name, err)
	}
	if exists {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rate_profiles (
			name,
			ii_percent, pis_percent, cofins_percent, ipi_percent,
			is_percent, ibs_percent, cbs_percent, icms_percent,
			notes, is_default
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, name, rates.II, rates.PIS, rates.COFINS, rates.IPI, rates.IS, rates.IBS, rates.CBS, rates.ICMS, "", isDefault); err != nil {
		return fmt.Errorf("insert profile %q: %w", name, err)
	}
	stats.Inserts++
	return nil
}
