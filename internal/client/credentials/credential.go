// Package credentials holds the session credential shared by every
// outgoing call: the node endpoint, the application context the session is
// bound to, the caller's executor public key and its JWT pair.
//
// The Store is the only mutable state shared between concurrent calls.
// Reads are concurrent; writes (login, token refresh, logout) are serialized
// and persisted before they become visible.
package credentials

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Credential struct {
	NodeURL           string `json:"node_url"`
	ApplicationID     string `json:"application_id"`
	ContextID         string `json:"context_id"`
	ExecutorPublicKey string `json:"executor_public_key"`
	AccessToken       string `json:"access_token"`
	RefreshToken      string `json:"refresh_token"`
}

// Complete reports whether c carries everything an authenticated call needs.
func (c Credential) Complete() bool {
	return c.NodeURL != "" &&
		c.ApplicationID != "" &&
		c.ExecutorPublicKey != "" &&
		c.AccessToken != "" &&
		c.RefreshToken != ""
}

// AccessTokenExpiry returns the exp claim of the access token. The signature
// is not verified: only the node can do that.
func (c Credential) AccessTokenExpiry() (time.Time, bool) {
	return tokenExpiry(c.AccessToken)
}

func tokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// WithTokens returns a copy of c with a new token pair. Identity fields are kept.
func (c Credential) WithTokens(access, refresh string) Credential {
	c.AccessToken = access
	c.RefreshToken = refresh
	return c
}
