package identity

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(UserIDFromContext(r.Context())))
	})
}

func TestMiddlewareWithoutTokensUsesLocalPrincipal(t *testing.T) {
	h := Middleware(nil)(echoPrincipal())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != LocalPrincipal {
		t.Errorf("Expected %q, got %q", LocalPrincipal, rec.Body.String())
	}
}

func TestMiddlewareBearerToken(t *testing.T) {
	h := Middleware(map[string]string{"secret": "alice"})(echoPrincipal())

	tests := []struct {
		name     string
		header   string
		target   string
		wantCode int
		wantBody string
	}{
		{"valid header", "Bearer secret", "/", http.StatusOK, "alice"},
		{"lowercase scheme", "bearer secret", "/", http.StatusOK, "alice"},
		{"wrong token", "Bearer nope", "/", http.StatusUnauthorized, ""},
		{"basic scheme", "Basic secret", "/", http.StatusUnauthorized, ""},
		{"missing", "", "/", http.StatusUnauthorized, ""},
		{"query param", "", "/?access_token=secret", http.StatusOK, "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d", tt.wantCode, rec.Code)
			}
			if tt.wantCode == http.StatusOK && rec.Body.String() != tt.wantBody {
				t.Errorf("Expected principal %q, got %q", tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestUserIDFromEmptyContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := UserIDFromContext(req.Context()); got != "" {
		t.Errorf("Expected empty principal, got %q", got)
	}
}
