// Package auth implements the shared-secret gate in front of every mutating or
// data-revealing endpoint.
package auth

import (
	"crypto/subtle"
	"errors"
)

// ErrUnauthorized is returned when a configured secret does not match.
var ErrUnauthorized = errors.New("unauthorized")

// Authorize allows everything when no secret is configured; otherwise the
// provided value must match exactly.
func Authorize(provided, configured string) error {
	if configured == "" {
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(configured)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Gate binds Authorize to a secret source that may change between requests.
type Gate struct {
	secret func() string
}

// NewGate builds a gate over a secret provider. A nil provider means an open
// deployment.
func NewGate(secret func() string) *Gate {
	if secret == nil {
		secret = func() string { return "" }
	}
	return &Gate{secret: secret}
}

// StaticGate builds a gate over a fixed secret.
func StaticGate(secret string) *Gate {
	return NewGate(func() string { return secret })
}

// Check authorises a provided secret.
func (g *Gate) Check(provided string) error {
	return Authorize(provided, g.secret())
}

// Open reports whether no secret is configured.
func (g *Gate) Open() bool {
	return g.secret() == ""
}
