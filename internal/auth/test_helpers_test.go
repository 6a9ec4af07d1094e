package auth

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// testDB creates a temporary SQLite database with the auth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "auth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			temp_password_hash TEXT,
			rank TEXT NOT NULL DEFAULT 'USER',
			whitelist_status TEXT NOT NULL DEFAULT 'PENDING',
			banned INTEGER NOT NULL DEFAULT 0,
			ban_reason TEXT,
			is_dispatch INTEGER NOT NULL DEFAULT 0,
			is_leo INTEGER NOT NULL DEFAULT 0,
			is_ems_fd INTEGER NOT NULL DEFAULT 0,
			is_supervisor INTEGER NOT NULL DEFAULT 0,
			is_tow INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE UNIQUE INDEX idx_users_username ON users(username);
		CREATE INDEX idx_users_whitelist_status ON users(whitelist_status);

		CREATE TABLE cads (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT 'CAD',
			owner_id TEXT NOT NULL,
			whitelisted INTEGER NOT NULL DEFAULT 0,
			tow_whitelisted INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (owner_id) REFERENCES users(id) ON DELETE RESTRICT
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}

	return db
}

// testController wires an admission controller against a fresh database
// and returns the controller with its backing repositories.
func testController(t *testing.T) (*Controller, *SQLiteUserRepository, *SQLiteCadRepository) {
	t.Helper()

	db := testDB(t)
	users := NewUserRepository(db)
	cads := NewCadRepository(db)
	return NewController(users, cads, testSecret, nil), users, cads
}

// testSecret is the signing secret used across token and controller tests.
const testSecret = "test-secret-0123456789abcdef0123456789"

// seedUser inserts a user with a hashed password and returns it.
func seedUser(t *testing.T, users *SQLiteUserRepository, username, password string) *User {
	t.Helper()

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	user := &User{
		Username:     username,
		PasswordHash: hash,
	}
	if err := users.Create(context.Background(), user); err != nil {
		t.Fatalf("seeding user %q: %v", username, err)
	}
	return user
}
