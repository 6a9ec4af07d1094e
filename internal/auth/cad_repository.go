package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CadRepository resolves the deployment record a user population belongs
// to. A running instance has exactly one CAD row; FindOrCreate returns it,
// creating it owned by the given user when none exists yet.
type CadRepository interface {
	FindOrCreate(ctx context.Context, ownerID string) (*Cad, error)
	Get(ctx context.Context) (*Cad, error)
	Update(ctx context.Context, cad *Cad) error
}

const cadColumns = `id, name, owner_id, whitelisted, tow_whitelisted, created_at, updated_at`

// SQLiteCadRepository implements CadRepository using SQLite.
type SQLiteCadRepository struct {
	db *sql.DB
}

// NewCadRepository creates a new SQLite-backed CAD repository.
func NewCadRepository(db *sql.DB) *SQLiteCadRepository {
	return &SQLiteCadRepository{db: db}
}

// FindOrCreate returns the deployment row, creating it with ownerID as the
// owning user if the instance has none yet. A freshly created CAD starts
// with both whitelist flags off.
func (r *SQLiteCadRepository) FindOrCreate(ctx context.Context, ownerID string) (*Cad, error) {
	cad, err := r.Get(ctx)
	if err == nil {
		return cad, nil
	}
	if !errors.Is(err, ErrCadNotFound) {
		return nil, err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	cad = &Cad{
		ID:      "cad-" + uuid.NewString()[:8],
		Name:    "CAD",
		OwnerID: ownerID,
	}
	cad.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	cad.UpdatedAt = cad.CreatedAt

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO cads (id, name, owner_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		cad.ID, cad.Name, cad.OwnerID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("creating cad: %w", err)
	}

	return cad, nil
}

// Get returns the deployment row, or ErrCadNotFound if the instance has
// not been bootstrapped yet.
func (r *SQLiteCadRepository) Get(ctx context.Context) (*Cad, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+cadColumns+" FROM cads ORDER BY created_at ASC LIMIT 1")
	return scanCad(row)
}

// Update modifies the deployment's name and whitelist policy flags.
func (r *SQLiteCadRepository) Update(ctx context.Context, cad *Cad) error {
	now := time.Now().UTC().Format(time.RFC3339)
	cad.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE cads SET name = ?, whitelisted = ?, tow_whitelisted = ?, updated_at = ? WHERE id = ?`,
		cad.Name, boolToInt(cad.Whitelisted), boolToInt(cad.TowWhitelisted), now, cad.ID,
	)
	if err != nil {
		return fmt.Errorf("updating cad: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrCadNotFound
	}
	return nil
}

// scanCad scans a CAD row.
func scanCad(s scanner) (*Cad, error) {
	var c Cad
	var whitelisted, towWhitelisted int
	var createdAt, updatedAt string

	err := s.Scan(&c.ID, &c.Name, &c.OwnerID, &whitelisted, &towWhitelisted, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCadNotFound
		}
		return nil, fmt.Errorf("scanning cad: %w", err)
	}

	c.Whitelisted = whitelisted != 0
	c.TowWhitelisted = towWhitelisted != 0
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &c, nil
}
