package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserRepository defines the interface for account persistence.
//
// Create must enforce username uniqueness at the storage layer — the
// admission controller's pre-check is advisory only, since pre-check then
// create is not atomic under concurrent registrations.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Count(ctx context.Context) (int, error)
	ApplyAdmission(ctx context.Context, id string, adm Admission) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetTempPassword(ctx context.Context, id, tempPasswordHash string) error
	SetBanned(ctx context.Context, id string, banned bool, reason string) error
	SetWhitelistStatus(ctx context.Context, id string, status WhitelistStatus) error
}

const userColumns = `id, username, password_hash, temp_password_hash, rank, whitelist_status,
	banned, ban_reason, is_dispatch, is_leo, is_ems_fd, is_supervisor, is_tow,
	created_at, updated_at`

// SQLiteUserRepository implements UserRepository using SQLite.
type SQLiteUserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new SQLite-backed account repository.
func NewUserRepository(db *sql.DB) *SQLiteUserRepository {
	return &SQLiteUserRepository{db: db}
}

// Create inserts a new account row. Only the identity and primary
// credential are written here — rank, whitelist status and capability
// flags keep their schema defaults until ApplyAdmission sets them.
// The ID is generated if empty.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC().Format(time.RFC3339)
	user.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	user.UpdatedAt = user.CreatedAt
	user.Rank = RankUser
	user.WhitelistStatus = WhitelistPending

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.PasswordHash, now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserAlreadyExists
		}
		return fmt.Errorf("creating user: %w", err)
	}

	return nil
}

// GetByID retrieves an account by its unique ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)
}

// GetByUsername retrieves an account by its username.
func (r *SQLiteUserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getUser(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

// List returns all accounts ordered by creation date.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUserFrom(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}

	if users == nil {
		users = []User{}
	}
	return users, nil
}

// Count returns the total number of accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// ApplyAdmission writes a resolved admission policy to an account as a
// single statement, so rank, status and capability flags land atomically.
func (r *SQLiteUserRepository) ApplyAdmission(ctx context.Context, id string, adm Admission) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET rank = ?, whitelist_status = ?,
		 is_dispatch = ?, is_leo = ?, is_ems_fd = ?, is_supervisor = ?, is_tow = ?,
		 updated_at = ? WHERE id = ?`,
		string(adm.Rank), string(adm.WhitelistStatus),
		boolToInt(adm.IsDispatch), boolToInt(adm.IsLeo), boolToInt(adm.IsEmsFd),
		boolToInt(adm.IsSupervisor), boolToInt(adm.IsTow),
		now, id,
	)
	if err != nil {
		return fmt.Errorf("applying admission: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdatePassword replaces the primary credential and clears any temporary
// one, completing a forced password change.
func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, temp_password_hash = NULL, updated_at = ? WHERE id = ?`,
		passwordHash, now, id,
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetTempPassword stores a temporary credential hash. While present it
// supersedes the primary credential at login.
func (r *SQLiteUserRepository) SetTempPassword(ctx context.Context, id, tempPasswordHash string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET temp_password_hash = ?, updated_at = ? WHERE id = ?`,
		nullString(tempPasswordHash), now, id,
	)
	if err != nil {
		return fmt.Errorf("setting temp password: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetBanned flips the ban flag on an account.
func (r *SQLiteUserRepository) SetBanned(ctx context.Context, id string, banned bool, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET banned = ?, ban_reason = ?, updated_at = ? WHERE id = ?`,
		boolToInt(banned), nullString(reason), now, id,
	)
	if err != nil {
		return fmt.Errorf("setting ban flag: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetWhitelistStatus records a moderation decision. The admission core
// never calls this during login or registration; it exists for the
// approval flow that owns PENDING → ACCEPTED/DECLINED transitions.
func (r *SQLiteUserRepository) SetWhitelistStatus(ctx context.Context, id string, status WhitelistStatus) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET whitelist_status = ?, updated_at = ? WHERE id = ?`,
		string(status), now, id,
	)
	if err != nil {
		return fmt.Errorf("setting whitelist status: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// getUser executes a query and scans a single user result.
func (r *SQLiteUserRepository) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	return scanUserFrom(r.db.QueryRowContext(ctx, query, args...))
}

// scanner is an interface for sql.Row and sql.Rows Scan methods.
type scanner interface {
	Scan(dest ...any) error
}

// scanUserFrom scans a user from any scanner (Row or Rows).
func scanUserFrom(s scanner) (*User, error) {
	var u User
	var tempHash, banReason sql.NullString
	var rank, status string
	var banned, dispatch, leo, emsFd, supervisor, tow int
	var createdAt, updatedAt string

	err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &tempHash, &rank, &status,
		&banned, &banReason, &dispatch, &leo, &emsFd, &supervisor, &tow,
		&createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Rank = Rank(rank)
	u.WhitelistStatus = WhitelistStatus(status)
	u.Banned = banned != 0
	u.IsDispatch = dispatch != 0
	u.IsLeo = leo != 0
	u.IsEmsFd = emsFd != 0
	u.IsSupervisor = supervisor != 0
	u.IsTow = tow != 0
	if tempHash.Valid {
		u.TempPasswordHash = tempHash.String
	}
	if banReason.Valid {
		u.BanReason = banReason.String
	}

	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &u, nil
}

// Helper functions.

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
