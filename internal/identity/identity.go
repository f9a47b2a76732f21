// Package identity resolves the principal behind each API request.
package identity

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
)

const (
	// LocalPrincipal owns every request when no API tokens are configured.
	LocalPrincipal = "local"

	// AccessTokenParam carries the bearer token for clients that cannot set
	// headers, such as browser websockets.
	AccessTokenParam = "access_token"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the principal from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID returns a context carrying the given principal.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, token, found := strings.Cut(auth, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get(AccessTokenParam)
}

func lookup(tokens map[string]string, token string) (string, bool) {
	if token == "" {
		return "", false
	}
	for known, principal := range tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			return principal, true
		}
	}
	return "", false
}

// Middleware maps the request's bearer token to a principal. With an empty
// token table every request runs as LocalPrincipal.
func Middleware(tokens map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := LocalPrincipal
			if len(tokens) > 0 {
				principal, ok := lookup(tokens, tokenFromRequest(r))
				if !ok {
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("WWW-Authenticate", `Bearer realm="carolina"`)
					http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
					return
				}
				userID = principal
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
