package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/opencadhq/cad-core/internal/auth"
	"github.com/opencadhq/cad-core/internal/infrastructure/config"
	"github.com/opencadhq/cad-core/internal/infrastructure/logging"
)

const testSecret = "test-secret-0123456789abcdef0123456789"

// setupTestDB creates a temporary SQLite database with the auth schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
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

	schema := `
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
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("applying test schema: %v", err)
	}

	return db
}

// testServer wires a server against a fresh database. Events and
// telemetry are left nil; the handlers treat both as optional.
func testServer(t *testing.T) (*Server, *auth.SQLiteUserRepository, *auth.SQLiteCadRepository) {
	t.Helper()

	db := setupTestDB(t)
	users := auth.NewUserRepository(db)
	cads := auth.NewCadRepository(db)

	logger := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
	ctrl := auth.NewController(users, cads, testSecret, logger.Logger)

	srv, err := New(Deps{
		Config:    config.APIConfig{Host: "127.0.0.1", Port: 0},
		Security:  config.SecurityConfig{JWT: config.JWTConfig{Secret: testSecret}},
		Logger:    logger,
		Admission: ctrl,
		Users:     users,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, users, cads
}

// doJSON posts a JSON body and returns the recorder.
func doJSON(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// sessionCookie extracts the session cookie from a response, failing the
// test when absent.
func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()

	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", sessionCookieName)
	return nil
}

func TestHandleRegister_FirstAccount(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register",
		`{"username":"founder","password":"password-12"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		UserID  string `json:"userId"`
		IsOwner bool   `json:"isOwner"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.UserID == "" {
		t.Error("userId is empty")
	}
	if !resp.IsOwner {
		t.Error("isOwner = false for first account")
	}

	cookie := sessionCookie(t, w)
	if cookie.Value == "" {
		t.Error("session cookie is empty")
	}
	if !cookie.HttpOnly {
		t.Error("session cookie not HttpOnly")
	}
	if cookie.MaxAge != int(auth.SessionTTL.Seconds()) {
		t.Errorf("cookie MaxAge = %d, want %d", cookie.MaxAge, int(auth.SessionTTL.Seconds()))
	}

	// The cookie value is a valid session for the registered identity.
	claims, err := auth.ParseSessionToken(cookie.Value, testSecret)
	if err != nil {
		t.Fatalf("ParseSessionToken() error = %v", err)
	}
	if claims.Subject != resp.UserID {
		t.Errorf("token subject = %q, want %q", claims.Subject, resp.UserID)
	}
}

func TestHandleRegister_Duplicate(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	if w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register",
		`{"username":"founder","password":"password-12"}`); w.Code != http.StatusOK {
		t.Fatalf("first register status = %d; body: %s", w.Code, w.Body.String())
	}

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register",
		`{"username":"founder","password":"other-password"}`)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusConflict, w.Body.String())
	}
	var resp Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != "UserAlreadyExists" {
		t.Errorf("code = %q, want UserAlreadyExists", resp.Code)
	}
}

func TestHandleRegister_WhitelistedDeployment(t *testing.T) {
	srv, users, cads := testServer(t)
	router := srv.buildRouter()

	if w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register",
		`{"username":"founder","password":"password-12"}`); w.Code != http.StatusOK {
		t.Fatalf("first register status = %d; body: %s", w.Code, w.Body.String())
	}

	ctx := context.Background()
	cad, err := cads.Get(ctx)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	cad.Whitelisted = true
	if err := cads.Update(ctx, cad); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register",
		`{"username":"applicant","password":"password-34"}`)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusForbidden, w.Body.String())
	}
	var resp Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != "WhitelistPending" {
		t.Errorf("code = %q, want WhitelistPending", resp.Code)
	}

	// No session cookie on a pending registration.
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			t.Error("session cookie attached to a pending registration")
		}
	}

	// The account itself was committed.
	if _, err := users.GetByUsername(ctx, "applicant"); err != nil {
		t.Errorf("pending account not durable: %v", err)
	}
}

func TestHandleRegister_BadRequest(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `{not json`},
		{"missing fields", `{}`},
		{"bad username", `{"username":"has space","password":"password-12"}`},
		{"short password", `{"username":"founder","password":"short"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}
}

func TestHandleLogin(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	var reg struct {
		UserID string `json:"userId"`
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register",
		`{"username":"founder","password":"password-12"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d; body: %s", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &reg); err != nil {
		t.Fatalf("unmarshal register: %v", err)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
		`{"username":"founder","password":"password-12"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["userId"] != reg.UserID {
		t.Errorf("userId = %v, want %q", resp["userId"], reg.UserID)
	}
	if _, present := resp["hasTempPassword"]; present {
		t.Error("hasTempPassword present on a normal login")
	}

	sessionCookie(t, w)
}

func TestHandleLogin_Failures(t *testing.T) {
	srv, users, _ := testServer(t)
	router := srv.buildRouter()

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register",
		`{"username":"founder","password":"password-12"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d; body: %s", w.Code, w.Body.String())
	}
	var reg struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &reg); err != nil {
		t.Fatalf("unmarshal register: %v", err)
	}

	t.Run("unknown user", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
			`{"username":"nobody","password":"whatever-12"}`)
		assertAdmissionFailure(t, w, http.StatusNotFound, "UserNotFound")
	})

	t.Run("wrong password", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
			`{"username":"founder","password":"not-the-password"}`)
		assertAdmissionFailure(t, w, http.StatusUnauthorized, "PasswordIncorrect")
	})

	t.Run("banned", func(t *testing.T) {
		if err := users.SetBanned(context.Background(), reg.UserID, true, "abuse"); err != nil {
			t.Fatalf("SetBanned() error = %v", err)
		}
		w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
			`{"username":"founder","password":"password-12"}`)
		assertAdmissionFailure(t, w, http.StatusForbidden, "UserBanned")
	})

	t.Run("declined", func(t *testing.T) {
		if err := users.SetWhitelistStatus(context.Background(), reg.UserID, auth.WhitelistDeclined); err != nil {
			t.Fatalf("SetWhitelistStatus() error = %v", err)
		}
		w := doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
			`{"username":"founder","password":"password-12"}`)
		assertAdmissionFailure(t, w, http.StatusForbidden, "WhitelistDeclined")
	})
}

// assertAdmissionFailure checks the status, the stable code, and that no
// session cookie was attached.
func assertAdmissionFailure(t *testing.T, w *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()

	if w.Code != wantStatus {
		t.Errorf("status = %d, want %d; body: %s", w.Code, wantStatus, w.Body.String())
	}
	var resp Error
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != wantCode {
		t.Errorf("code = %q, want %q", resp.Code, wantCode)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			t.Error("session cookie attached to a failed login")
		}
	}
}

func TestHandleLogin_TempPassword(t *testing.T) {
	srv, users, _ := testServer(t)
	router := srv.buildRouter()

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register",
		`{"username":"founder","password":"primary-pass-12"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d; body: %s", w.Code, w.Body.String())
	}
	var reg struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &reg); err != nil {
		t.Fatalf("unmarshal register: %v", err)
	}

	tempHash, err := auth.HashPassword("temp-pass-34")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if err := users.SetTempPassword(context.Background(), reg.UserID, tempHash); err != nil {
		t.Fatalf("SetTempPassword() error = %v", err)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/auth/login",
		`{"username":"founder","password":"temp-pass-34"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	// The response signals the forced change and suppresses the identity.
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["hasTempPassword"] != true {
		t.Errorf("hasTempPassword = %v, want true", resp["hasTempPassword"])
	}
	if _, present := resp["userId"]; present {
		t.Error("userId present on a temp-password login")
	}

	// The session is still issued.
	sessionCookie(t, w)
}

func TestHandleMe(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	w := doJSON(t, router, http.MethodPost, "/api/v1/auth/register",
		`{"username":"founder","password":"password-12"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d; body: %s", w.Code, w.Body.String())
	}
	cookie := sessionCookie(t, w)
	var reg struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &reg); err != nil {
		t.Fatalf("unmarshal register: %v", err)
	}

	t.Run("with cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.AddCookie(cookie)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
		}
		var user auth.User
		if err := json.Unmarshal(w.Body.Bytes(), &user); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if user.ID != reg.UserID {
			t.Errorf("id = %q, want %q", user.ID, reg.UserID)
		}
		if user.Rank != auth.RankOwner {
			t.Errorf("rank = %v, want %v", user.Rank, auth.RankOwner)
		}
	})

	t.Run("with bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+cookie.Value)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
		}
	})

	t.Run("without token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("with garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
		req.Header.Set("Authorization", "Bearer not.a.token")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

func TestHandleHealth(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp struct {
		Status     string `json:"status"`
		Version    string `json:"version"`
		SessionTTL int64  `json:"session_ttl"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
	if resp.SessionTTL != auth.SessionTTL.Milliseconds() {
		t.Errorf("session_ttl = %d, want %d", resp.SessionTTL, auth.SessionTTL.Milliseconds())
	}
}
