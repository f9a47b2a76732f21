// Package middleware provides HTTP middleware for the Carolina API.
package middleware

import "net/http"

const (
	corsMethods = "GET, POST, PATCH, DELETE, OPTIONS"
	corsHeaders = "Content-Type, Authorization"
)

// originPolicy is the allow list split into named origins and the "*" entry.
type originPolicy struct {
	named    map[string]struct{}
	anywhere bool
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{named: make(map[string]struct{}, len(origins))}
	for _, o := range origins {
		if o == "*" {
			p.anywhere = true
			continue
		}
		p.named[o] = struct{}{}
	}
	return p
}

// grant reports whether origin may read responses and whether it may send
// credentials along with the request.
func (p originPolicy) grant(origin string) (allow, credentials bool) {
	if origin == "" {
		return false, false
	}
	if _, ok := p.named[origin]; ok {
		return true, true
	}
	return p.anywhere, false
}

// CORS echoes an allowed request Origin back to the browser and answers
// preflight requests with 204.
//
// Allow-Credentials is only sent for origins listed by name. A "*" entry
// echoes whatever Origin the browser sends, so granting credentials there
// would let any site issue authenticated requests with the user's bearer
// token or cookies (CSRF).
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newOriginPolicy(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allow, credentials := policy.grant(origin); allow {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Add("Vary", "Origin")
				if credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
