// Package access gates the HTTP surface behind a shared bearer token.
// The token itself never lives in config: the environment carries a
// bcrypt hash and callers present the plaintext on each request.
package access

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	AccessModeOff   = "off"
	AccessModeToken = "token"
)

// Guard checks inbound requests. A nil tokenHash means the guard is
// disabled and everything passes.
type Guard struct {
	mode      string
	tokenHash []byte
}

func accessModeFromEnv() string {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("AGENTD_ACCESS_MODE")))
	switch raw {
	case "", "none", AccessModeOff:
		return AccessModeOff
	case AccessModeToken, "bearer":
		return AccessModeToken
	default:
		return raw
	}
}

// NewGuardFromEnv builds the guard for the configured mode. Token mode
// requires AGENTD_TOKEN_BCRYPT to hold a bcrypt hash; a malformed hash
// fails here instead of silently rejecting every request later.
func NewGuardFromEnv() (*Guard, string, error) {
	mode := accessModeFromEnv()

	switch mode {
	case AccessModeOff:
		return &Guard{mode: AccessModeOff}, mode, nil
	case AccessModeToken:
		hash := strings.TrimSpace(os.Getenv("AGENTD_TOKEN_BCRYPT"))
		if hash == "" {
			return nil, mode, fmt.Errorf("AGENTD_ACCESS_MODE=token requires AGENTD_TOKEN_BCRYPT")
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, mode, fmt.Errorf("invalid AGENTD_TOKEN_BCRYPT: %w", err)
		}
		return &Guard{mode: AccessModeToken, tokenHash: []byte(hash)}, mode, nil
	default:
		return nil, mode, fmt.Errorf("invalid AGENTD_ACCESS_MODE %q (supported: %s, %s)", mode, AccessModeOff, AccessModeToken)
	}
}

// Allow reports whether the request carries the expected bearer token.
func (g *Guard) Allow(r *http.Request) bool {
	if g.tokenHash == nil {
		return true
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(g.tokenHash, []byte(strings.TrimSpace(token))) == nil
}

// Wrap protects an HTTP handler. Off mode returns next unchanged so
// the hot path pays nothing.
func (g *Guard) Wrap(next http.Handler) http.Handler {
	if g.tokenHash == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Allow(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
