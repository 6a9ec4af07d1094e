package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/opencadhq/cad-core/internal/auth"
	"github.com/opencadhq/cad-core/internal/infrastructure/mqtt"
)

// sessionCookieName is the cookie carrying the session token.
const sessionCookieName = "cad_session"

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// credentialsRequest is the request body for login and register.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// validate checks the request body shape before it reaches the admission
// core. Business rules (existence, whitelist, bans) stay in the core.
func (req *credentialsRequest) validate() string {
	if req.Username == "" || req.Password == "" {
		return "username and password are required"
	}
	if !auth.IsValidUsername(req.Username) {
		return "username must be 1-64 characters: letters, digits, dots, hyphens, underscores"
	}
	if len(req.Password) < minPasswordLength {
		return "password must be at least 8 characters"
	}
	return ""
}

// handleLogin verifies credentials and issues a session.
//
// Success reports {"userId": ...}, or {"hasTempPassword": true} with the
// user id deliberately suppressed when the temporary credential matched —
// the client must complete a password change first. Either way the session
// cookie is attached.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeBadRequest(w, msg)
		return
	}

	start := time.Now()
	result, err := s.admission.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		code := auth.FailureCode(err)
		if code == "" {
			s.logger.Error("login failed", "error", err)
		}
		s.recordOutcome("login", codeOrInternal(code), "", start)
		writeAdmissionError(w, err)
		return
	}

	s.attachSessionCookie(w, result.Token)
	s.publishAuthEvent(mqtt.EventLogin, map[string]any{
		"user_id":       result.UserID,
		"temp_password": result.HasTempPassword,
	})
	s.recordOutcome("login", "ok", result.UserID, start)

	if result.HasTempPassword {
		writeJSON(w, http.StatusOK, map[string]any{"hasTempPassword": true})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": result.UserID})
}

// handleRegister admits a new account and issues its first session.
//
// On whitelisted deployments a non-first registrant's account is created
// but left pending: the response is the WhitelistPending failure and no
// cookie is attached.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeBadRequest(w, msg)
		return
	}

	start := time.Now()
	result, err := s.admission.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		code := auth.FailureCode(err)
		if code == "" {
			s.logger.Error("register failed", "error", err)
		}
		if code == "WhitelistPending" {
			// The account was committed; moderation UIs want to know.
			s.publishAuthEvent(mqtt.EventPending, map[string]any{
				"username": req.Username,
			})
		}
		s.recordOutcome("register", codeOrInternal(code), "", start)
		writeAdmissionError(w, err)
		return
	}

	s.attachSessionCookie(w, result.Token)
	s.publishAuthEvent(mqtt.EventRegistered, map[string]any{
		"user_id": result.UserID,
		"owner":   result.IsOwner,
	})
	s.recordOutcome("register", "ok", result.UserID, start)

	writeJSON(w, http.StatusOK, map[string]any{
		"userId":  result.UserID,
		"isOwner": result.IsOwner,
	})
}

// handleMe returns the authenticated user's account.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	if userID == "" {
		writeUnauthorized(w, "missing session")
		return
	}

	user, err := s.users.GetByID(r.Context(), userID)
	if err != nil {
		writeAdmissionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// attachSessionCookie carries the session token to the client with the
// fixed session TTL.
func (s *Server) attachSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(auth.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.TLS.Enabled,
		SameSite: http.SameSiteLaxMode,
	})
}

// publishAuthEvent fans an admission event out over MQTT. Best effort:
// a missing or disconnected broker never fails the request.
func (s *Server) publishAuthEvent(kind string, payload map[string]any) {
	if s.events == nil {
		return
	}

	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	if err := s.events.PublishEvent(mqtt.Topics{}.AuthEvent(kind), body); err != nil {
		s.logger.Warn("failed to publish admission event", "kind", kind, "error", err)
	}
}

// recordOutcome writes an admission telemetry point. Best effort and
// non-blocking; a missing sink is a no-op.
func (s *Server) recordOutcome(op, code, userID string, start time.Time) {
	if s.telemetry == nil {
		return
	}
	s.telemetry.WriteAdmissionOutcome(op, code, userID, time.Since(start))
}

// codeOrInternal substitutes "internal" for storage faults that carry no
// stable admission code.
func codeOrInternal(code string) string {
	if code == "" {
		return "internal"
	}
	return code
}
