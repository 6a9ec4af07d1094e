package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Controller orchestrates the Login and Register use cases. It owns the
// decision logic only; request parsing, cookie transport and whitelist
// moderation live outside.
//
// Thread Safety: all methods are safe for concurrent use; concurrent
// invocations for different usernames are fully independent.
type Controller struct {
	users  UserRepository
	cads   CadRepository
	secret string
	logger *slog.Logger
}

// NewController creates an admission controller. The signing secret is
// process-wide configuration and read-only after startup.
func NewController(users UserRepository, cads CadRepository, secret string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		users:  users,
		cads:   cads,
		secret: secret,
		logger: logger,
	}
}

// LoginResult reports a successful login. When the matched credential was
// the temporary one, HasTempPassword is set and UserID is suppressed in
// the outward response shape — the caller must force a password change
// before exposing the identity.
type LoginResult struct {
	UserID          string
	Token           string
	HasTempPassword bool
}

// RegisterResult reports a successful registration.
type RegisterResult struct {
	UserID  string
	Token   string
	IsOwner bool
}

// Login verifies a credential submission against the admission gates.
//
// The gates are an ordered chain; the first failure wins:
// unknown user, whitelist pending, whitelist declined, banned, password
// mismatch. The whitelist gates deliberately precede the ban gate, and all
// gates precede credential verification. Login never mutates the database.
func (c *Controller) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	user, err := c.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err // ErrUserNotFound or a storage fault
	}

	if user.WhitelistStatus == WhitelistPending {
		return nil, ErrWhitelistPending
	}
	if user.WhitelistStatus == WhitelistDeclined {
		return nil, ErrWhitelistDeclined
	}
	if user.Banned {
		return nil, ErrUserBanned
	}

	// A temporary credential, while present, supersedes the primary one.
	compareHash := user.PasswordHash
	usedTemp := false
	if user.TempPasswordHash != "" {
		compareHash = user.TempPasswordHash
		usedTemp = true
	}

	if !VerifyPassword(password, compareHash) {
		return nil, ErrPasswordIncorrect
	}

	token, err := IssueSessionToken(user.ID, c.secret, SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing session token: %w", err)
	}

	c.logger.Info("login succeeded",
		"user_id", user.ID,
		"temp_password", usedTemp,
	)

	return &LoginResult{
		UserID:          user.ID,
		Token:           token,
		HasTempPassword: usedTemp,
	}, nil
}

// Register admits a new account.
//
// The account count is read before the row is created and decides
// bootstrap eligibility; the row is created with only the identity and
// credential, then the resolved admission policy is applied as a single
// update. When the policy leaves the account PENDING, the row stays
// committed but the use case reports ErrWhitelistPending and no session
// is issued — the account exists awaiting approval.
//
// Known limitation: the count read and the create are not atomic, so two
// concurrent first registrations can both observe an empty population and
// both claim owner. Username uniqueness, by contrast, is enforced by the
// storage layer and is race-safe.
func (c *Controller) Register(ctx context.Context, username, password string) (*RegisterResult, error) {
	if _, err := c.users.GetByUsername(ctx, username); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err // storage fault, not a domain outcome
	}

	existing, err := c.users.Count(ctx)
	if err != nil {
		return nil, err
	}
	firstAccount := existing <= 0

	hash, err := HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		Username:     username,
		PasswordHash: hash,
	}
	if err := c.users.Create(ctx, user); err != nil {
		return nil, err
	}

	cad, err := c.cads.FindOrCreate(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	adm := ResolveAdmission(firstAccount, cad)
	if err := c.users.ApplyAdmission(ctx, user.ID, adm); err != nil {
		return nil, err
	}

	if adm.Pending() {
		// Committed on purpose: the account exists pending approval,
		// but the caller receives no session.
		c.logger.Info("registration pending whitelist approval",
			"user_id", user.ID,
			"cad_id", cad.ID,
		)
		return nil, ErrWhitelistPending
	}

	token, err := IssueSessionToken(user.ID, c.secret, SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing session token: %w", err)
	}

	c.logger.Info("registration succeeded",
		"user_id", user.ID,
		"owner", firstAccount,
		"cad_id", cad.ID,
	)

	return &RegisterResult{
		UserID:  user.ID,
		Token:   token,
		IsOwner: firstAccount,
	}, nil
}
