// Package store persists named rate profiles: RateSet presets used to pre-fill simulations.
package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/Simplici0/simulador-reforma/internal/taxcalc"
)

// ErrNotFound is returned when a profile id does not exist or no default profile is set.
var ErrNotFound = errors.New("rate profile not found")

// RateProfile is a named, stored RateSet.
type RateProfile struct {
	ID        int64
	Name      string
	Rates     taxcalc.RateSet
	Notes     string
	IsDefault bool
}

// Validate checks the name and the rate ranges.
func (p RateProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.Wrap(taxcalc.ErrValidation, "name is required")
	}
	return p.Rates.Validate()
}

// RateProfiles is the SQLite-backed profile repository.
type RateProfiles struct {
	db *sql.DB
}

func NewRateProfiles(db *sql.DB) *RateProfiles {
	return &RateProfiles{db: db}
}

const profileColumns = `
	id, name,
	ii_percent, pis_percent, cofins_percent, ipi_percent,
	is_percent, ibs_percent, cbs_percent, icms_percent,
	COALESCE(notes, ''), is_default
`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (RateProfile, error) {
	var p RateProfile
	r := &p.Rates
	err := s.Scan(
		&p.ID, &p.Name,
		&r.II, &r.PIS, &r.COFINS, &r.IPI,
		&r.IS, &r.IBS, &r.CBS, &r.ICMS,
		&p.Notes, &p.IsDefault,
	)
	return p, err
}

// List returns every profile, default first, then by name.
func (s *RateProfiles) List(ctx context.Context) ([]RateProfile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+profileColumns+`
		FROM rate_profiles
		ORDER BY is_default DESC, name ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query rate profiles")
	}
	defer rows.Close()

	profiles := make([]RateProfile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan rate profile")
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate rate profiles")
	}

	return profiles, nil
}

// Get returns the profile with id.
func (s *RateProfiles) Get(ctx context.Context, id int64) (RateProfile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM rate_profiles
		WHERE id = ?
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return RateProfile{}, errors.Wrapf(ErrNotFound, "id %d", id)
	}
	if err != nil {
		return RateProfile{}, errors.Wrap(err, "query rate profile")
	}
	return p, nil
}

// Default returns the profile flagged as default.
func (s *RateProfiles) Default(ctx context.Context) (RateProfile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM rate_profiles
		WHERE is_default
		LIMIT 1
	`))
	if errors.Is(err, sql.ErrNoRows) {
		return RateProfile{}, errors.Wrap(ErrNotFound, "no default profile")
	}
	if err != nil {
		return RateProfile{}, errors.Wrap(err, "query default rate profile")
	}
	return p, nil
}

// Create inserts p and returns its id. A profile created as default takes the flag from the previous one.
func (s *RateProfiles) Create(ctx context.Context, p RateProfile) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if p.IsDefault {
			if err := clearDefault(ctx, tx); err != nil {
				return err
			}
		}
		r := p.Rates
		result, err := tx.ExecContext(ctx, `
			INSERT INTO rate_profiles (
				name,
				ii_percent, pis_percent, cofins_percent, ipi_percent,
				is_percent, ibs_percent, cbs_percent, icms_percent,
				notes, is_default
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, strings.TrimSpace(p.Name), r.II, r.PIS, r.COFINS, r.IPI, r.IS, r.IBS, r.CBS, r.ICMS, p.Notes, p.IsDefault)
		if err != nil {
			return wrapWriteErr(err, "insert rate profile")
		}
		id, err = result.LastInsertId()
		return errors.Wrap(err, "read rate profile id")
	})
	return id, err
}

// Update overwrites the profile with p.ID.
func (s *RateProfiles) Update(ctx context.Context, p RateProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if p.IsDefault {
			if err := clearDefault(ctx, tx); err != nil {
				return err
			}
		}
		r := p.Rates
		result, err := tx.ExecContext(ctx, `
			UPDATE rate_profiles
			SET
				name = ?,
				ii_percent = ?,
				pis_percent = ?,
				cofins_percent = ?,
				ipi_percent = ?,
				is_percent = ?,
				ibs_percent = ?,
				cbs_percent = ?,
				icms_percent = ?,
				notes = ?,
				is_default = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, strings.TrimSpace(p.Name), r.II, r.PIS, r.COFINS, r.IPI, r.IS, r.IBS, r.CBS, r.ICMS, p.Notes, p.IsDefault, p.ID)
		if err != nil {
			return wrapWriteErr(err, "update rate profile")
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "update rate profile")
		}
		if affected == 0 {
			return errors.Wrapf(ErrNotFound, "id %d", p.ID)
		}
		return nil
	})
}

// wrapWriteErr turns a duplicate name into a validation error.
func wrapWriteErr(err error, op string) error {
	if strings.Contains(err.Error(), "UNIQUE constraint failed: rate_profiles.name") {
		return errors.Wrap(taxcalc.ErrValidation, "a profile with this name already exists")
	}
	return errors.Wrap(err, op)
}

func clearDefault(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `UPDATE rate_profiles SET is_default = FALSE WHERE is_default`); err != nil {
		return errors.Wrap(err, "clear default rate profile")
	}
	return nil
}

func (s *RateProfiles) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "commit transaction")
}
