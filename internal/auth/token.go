// Package auth issues session tokens and verifies the admin credential.
//
// Session tokens and the admin token are separate credential namespaces: a
// session token only ever authorizes operations on its own session, and the
// admin token never doubles as a session token.
package auth

import (
	"crypto/hmac"
	"errors"
	"strings"

	"linkreview/api/internal/util"
)

var ErrBadAdminToken = errors.New("invalid admin token")

// NewSessionToken returns an unguessable opaque session credential
// (128 bits of entropy, hex encoded).
func NewSessionToken() string {
	return util.RandomHex(16)
}

// VerifyAdminToken compares a presented admin token against the configured
// one in constant time. An empty configured token disables admin access
// entirely rather than allowing anonymous admin calls.
func VerifyAdminToken(configured, presented string) error {
	configured = strings.TrimSpace(configured)
	presented = strings.TrimSpace(presented)
	if configured == "" || presented == "" {
		return ErrBadAdminToken
	}
	if !hmac.Equal([]byte(configured), []byte(presented)) {
		return ErrBadAdminToken
	}
	return nil
}
