package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/carolina/internal/agent"
	"github.com/ashureev/carolina/internal/domain"
)

type call struct {
	method string
	path   string
	auth   string
	body   string
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) at(i int) call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[i]
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newServer(t *testing.T, status int, response string) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.calls = append(rec.calls, call{r.Method, r.URL.EscapedPath(), r.Header.Get("Authorization"), string(body)})
		rec.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/", "secret")
	require.NoError(t, err)
	return c, rec
}

func TestNewRejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com", "")
	assert.Error(t, err)
	_, err = New("://bad", "")
	assert.Error(t, err)
}

func TestListSessions(t *testing.T) {
	c, calls := newServer(t, http.StatusOK,
		`[{"id":"s1","title":"One","emoji":"✨","created_at":"2026-01-01T00:00:00Z","updated_at":"2026-01-02T00:00:00Z"}]`)

	got, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "One", got[0].Title)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), got[0].UpdatedAt)

	require.Equal(t, 1, calls.len())
	assert.Equal(t, call{http.MethodGet, "/api/sessions", "Bearer secret", ""}, calls.at(0))
}

func TestCreateSessionOmitsEmptyFields(t *testing.T) {
	c, calls := newServer(t, http.StatusCreated, `{"id":"s1","title":"New Chat","emoji":"✨"}`)

	got, err := c.CreateSession(context.Background(), "", "")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.JSONEq(t, `{}`, calls.at(0).body)
}

func TestUpdateSessionSendsPatch(t *testing.T) {
	c, calls := newServer(t, http.StatusOK, `{"id":"a b","title":"Renamed"}`)

	title := "Renamed"
	got, err := c.UpdateSession(context.Background(), "a b", domain.SessionPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)

	assert.Equal(t, http.MethodPatch, calls.at(0).method)
	assert.Equal(t, "/api/sessions/a%20b", calls.at(0).path)
	assert.JSONEq(t, `{"title":"Renamed"}`, calls.at(0).body)
}

func TestInsertMessageAndTouch(t *testing.T) {
	c, calls := newServer(t, http.StatusCreated, `{"id":"m1","session_id":"s1","role":"assistant","content":"hi","domains":["physics"]}`)
	ctx := context.Background()

	msg, err := c.InsertMessage(ctx, domain.NewMessage{
		SessionID: "s1",
		Role:      domain.RoleAssistant,
		Content:   "hi",
		Domains:   json.RawMessage(`["physics"]`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `["physics"]`, string(msg.Domains))
	assert.Equal(t, "/api/sessions/s1/messages", calls.at(0).path)

	require.NoError(t, c.TouchSession(ctx, "s1"))
	assert.Equal(t, "/api/sessions/s1/touch", calls.at(1).path)
}

func TestRespond(t *testing.T) {
	c, calls := newServer(t, http.StatusOK, `{"response":"hey","domains":["mathematics"]}`)

	reply, err := c.Respond(context.Background(), agent.Request{Message: "hi", CoreContext: "[CORE CONTEXT]"})
	require.NoError(t, err)
	assert.Equal(t, "hey", reply.Response)

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(calls.at(0).body), &sent))
	assert.Equal(t, "hi", sent["message"])
	assert.Equal(t, "[CORE CONTEXT]", sent["coreContext"])
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantNotFnd bool
		wantMsg    string
	}{
		{"not found", http.StatusNotFound, `{"error":"session not found"}`, true, "session not found"},
		{"server error", http.StatusInternalServerError, `boom`, false, "boom"},
		{"unauthorized", http.StatusUnauthorized, `{"error":"unauthorized"}`, false, "unauthorized"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newServer(t, tt.status, tt.body)
			err := c.DeleteSession(context.Background(), "s1")
			require.Error(t, err)

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.wantMsg, se.Message)
			assert.Equal(t, tt.wantNotFnd, errors.Is(err, ErrNotFound))
			assert.Equal(t, !tt.wantNotFnd, errors.Is(err, ErrStatus))
		})
	}
}

func TestNoTokenSendsNoAuthorization(t *testing.T) {
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := New(srv.URL, "")
	require.NoError(t, err)
	require.NoError(t, c.TouchSession(context.Background(), "s1"))
	assert.Empty(t, <-auth)
}

func TestHealth(t *testing.T) {
	c, calls := newServer(t, http.StatusOK, `{"status":"healthy","checks":{"api":"ok","database":"ok"}}`)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "ok", h.Checks["database"])
	assert.Equal(t, "/api/health", calls.at(0).path)
}
