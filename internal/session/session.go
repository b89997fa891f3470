// Package session models the bearer credentials handed to the engine
// by the excluded auth layer. Credentials are threaded explicitly
// through every backend call instead of being read from a storage
// side-channel.
package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials carries the bearer token for the current user session.
// The zero value means "no session".
type Credentials struct {
	Token string
}

// Anonymous returns empty credentials.
func Anonymous() Credentials {
	return Credentials{}
}

// Bearer builds credentials from a raw bearer token.
func Bearer(token string) Credentials {
	return Credentials{Token: token}
}

// Present reports whether a token is attached at all.
func (c Credentials) Present() bool {
	return c.Token != ""
}

// claims is the subset of backend JWT claims the engine reads.
type claims struct {
	jwt.RegisteredClaims
}

// Live reports whether the token looks like a usable cached session:
// present, decodable, and not past its expiry. The signature is not
// verified here; the backend rejects forged tokens and the engine only
// needs a cheap "is there a session worth resuming" answer on cold
// start.
func (c Credentials) Live(now time.Time) bool {
	if !c.Present() {
		return false
	}
	var cl claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(c.Token, &cl); err != nil {
		return false
	}
	if cl.ExpiresAt == nil {
		return true
	}
	return cl.ExpiresAt.After(now)
}

// UserID returns the token subject, empty when absent or undecodable.
func (c Credentials) UserID() string {
	if !c.Present() {
		return ""
	}
	var cl claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(c.Token, &cl); err != nil {
		return ""
	}
	return cl.Subject
}
