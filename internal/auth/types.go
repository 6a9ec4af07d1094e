package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// Rank represents a privilege tier. It is assigned once at registration
// and never mutated by this package afterwards.
type Rank string

const (
	// RankOwner is the highest tier, auto-granted to exactly the first
	// successfully registered account of a CAD deployment.
	RankOwner Rank = "OWNER"

	// RankAdmin is granted by the out-of-scope management flow. This
	// package never assigns it but must round-trip it from storage.
	RankAdmin Rank = "ADMIN"

	// RankUser is the default tier for every non-first registrant.
	RankUser Rank = "USER"
)

// WhitelistStatus gates login on whitelisted deployments.
type WhitelistStatus string

const (
	// WhitelistPending means the account exists but awaits approval.
	WhitelistPending WhitelistStatus = "PENDING"

	// WhitelistAccepted means the account may log in.
	WhitelistAccepted WhitelistStatus = "ACCEPTED"

	// WhitelistDeclined means the account was refused; login is blocked.
	WhitelistDeclined WhitelistStatus = "DECLINED"
)

// User represents a registered account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`

	// PasswordHash is the primary credential. TempPasswordHash, when
	// non-empty, takes precedence during verification and signals a
	// forced password change. It is written by the out-of-scope reset
	// flow; this package only reads it.
	PasswordHash     string `json:"-"`
	TempPasswordHash string `json:"-"`

	Rank            Rank            `json:"rank"`
	WhitelistStatus WhitelistStatus `json:"whitelist_status"`
	Banned          bool            `json:"banned"`
	BanReason       string          `json:"ban_reason,omitempty"`

	// Capability flags, set once at registration from the admission policy.
	IsDispatch   bool `json:"is_dispatch"`
	IsLeo        bool `json:"is_leo"`
	IsEmsFd      bool `json:"is_ems_fd"`
	IsSupervisor bool `json:"is_supervisor"`
	IsTow        bool `json:"is_tow"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Cad represents the deployment a user population belongs to. A running
// instance has exactly one row, created when the first account registers.
type Cad struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"owner_id"`

	// Whitelisted makes new non-owner registrants start PENDING.
	Whitelisted bool `json:"whitelisted"`

	// TowWhitelisted withholds the tow capability from new registrants.
	TowWhitelisted bool `json:"tow_whitelisted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Sentinel errors for admission outcomes. These are expected domain
// results, not faults; each carries a stable code for API clients via
// FailureCode. Storage faults are wrapped separately and never map to
// one of these.
var (
	ErrUserNotFound      = errors.New("user not found")
	ErrWhitelistPending  = errors.New("account is pending whitelist approval")
	ErrWhitelistDeclined = errors.New("account was declined by whitelist review")
	ErrUserBanned        = errors.New("account is banned")
	ErrPasswordIncorrect = errors.New("password is incorrect")
	ErrUserAlreadyExists = errors.New("username already exists")
	ErrCadNotFound       = errors.New("cad not found")
)

// FailureCode returns the stable machine-readable code for an admission
// failure, or "" if the error is not a domain outcome.
func FailureCode(err error) string {
	switch {
	case errors.Is(err, ErrUserNotFound):
		return "UserNotFound"
	case errors.Is(err, ErrWhitelistPending):
		return "WhitelistPending"
	case errors.Is(err, ErrWhitelistDeclined):
		return "WhitelistDeclined"
	case errors.Is(err, ErrUserBanned):
		return "UserBanned"
	case errors.Is(err, ErrPasswordIncorrect):
		return "PasswordIncorrect"
	case errors.Is(err, ErrUserAlreadyExists):
		return "UserAlreadyExists"
	default:
		return ""
	}
}
