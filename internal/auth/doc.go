// Package auth is the admission core of CAD Core.
//
// It implements account registration and credential verification with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Signed, expiring session tokens (HS256 JWT, fixed 5-hour TTL)
//   - A whitelist/ban/pending state machine gating login
//   - First-user-becomes-owner bootstrap driven by the account count
//   - Capability-flag policy derived from the owning CAD's whitelist flags
//
// The admission state machine is deliberately one-directional here: this
// package initialises whitelist status at registration and reads it at
// login, but transitions between PENDING, ACCEPTED and DECLINED belong to
// a separate moderation flow.
package auth
