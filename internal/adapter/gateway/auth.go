package gateway

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerAuth guards admin routes with a static bearer token, compared in
// constant time to prevent timing attacks. An empty token disables the guard.
type BearerAuth struct {
	token []byte
}

// NewBearerAuth builds the guard for the given token.
func NewBearerAuth(token string) *BearerAuth {
	return &BearerAuth{token: []byte(token)}
}

// Enabled reports whether a token is configured.
func (a *BearerAuth) Enabled() bool { return len(a.token) > 0 }

// Authenticate checks an Authorization header value.
func (a *BearerAuth) Authenticate(header string) bool {
	if !a.Enabled() {
		return true
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := []byte(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare(presented, a.token) == 1
}

// Require wraps an admin handler with the bearer check.
func (a *BearerAuth) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.Authenticate(r.Header.Get("Authorization")) {
			writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next(w, r)
	}
}
