package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionTTL is the fixed lifetime of a session token, applied identically
// to login and registration. 5 hours (18,000,000 ms on the wire contract).
const SessionTTL = 5 * time.Hour

// SessionClaims is the payload of a session token. The token binds a user
// identity to an expiry window and nothing else — a stateless verifier can
// reconstruct validity without a database lookup.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// IssueSessionToken mints a signed session token for a user identity.
// The expiry is issuance time + ttl; the signing secret is process-wide
// configuration loaded once at startup. Issuing twice for the same user
// yields distinct tokens (distinct iat/jti).
func IssueSessionToken(userID, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// ErrTokenInvalid is returned by ParseSessionToken for any token that does
// not verify: bad signature, expired, or missing the bound user identity.
var ErrTokenInvalid = fmt.Errorf("invalid session token")

// ParseSessionToken validates a session token and returns its claims.
// This is the verifier used by the HTTP layer on subsequent requests;
// the admission core itself only issues.
func ParseSessionToken(tokenString, secret string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	return claims, nil
}
