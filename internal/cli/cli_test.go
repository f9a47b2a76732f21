package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/carolina/internal/core"
)

func TestMain(m *testing.M) {
	// Plain output keeps assertions independent of the terminal.
	os.Setenv("NO_COLOR", "1")
	os.Exit(m.Run())
}

type result struct {
	stdout string
	stderr string
	err    error
}

// run executes one command against dataDir in local mode.
func run(t *testing.T, dataDir, stdin string, args ...string) result {
	t.Helper()
	t.Setenv("CAROLINA_TOKEN", "")
	t.Setenv("CAROLINA_CORE_BACKEND", "file")

	root, a := newRootCommand()
	defer a.close()

	var stdout, stderr bytes.Buffer
	root.SetArgs(append([]string{"--local", "--data-dir", dataDir}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func showDocument(t *testing.T, dataDir string, extra ...string) core.Document {
	t.Helper()
	res := run(t, dataDir, "", append(extra, "core", "show")...)
	require.NoError(t, res.err)

	var doc core.Document
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &doc))
	return doc
}

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{name: "version flag", args: []string{"--version"}},
		{name: "help flag", args: []string{"--help"}},
		{name: "unknown command", args: []string{"nope"}, wantErr: true},
		{name: "bad core backend", args: []string{"--core-backend", "redis", "core", "status"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, t.TempDir(), "", tt.args...)
			if (res.err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", res.err, tt.wantErr)
			}
		})
	}
}

func TestCoreStatusOnFreshDataDir(t *testing.T) {
	res := run(t, t.TempDir(), "", "core", "status")
	require.NoError(t, res.err)

	assert.Contains(t, res.stdout, "Schema: 2")
	assert.Contains(t, res.stdout, "Version: 1.0.0")
	assert.Contains(t, res.stdout, "Source: empty")
	assert.NotContains(t, res.stdout, "Last patched")
}

func TestCoreMutationsPersistAcrossRuns(t *testing.T) {
	for _, backend := range []string{"file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			flags := []string{"--core-backend", backend}

			steps := [][]string{
				{"core", "set", "name", `"Ada"`},
				{"core", "set", "visits", "3"},
				{"core", "emotion", "joy", "2.5"},
				{"core", "snapshot"},
				{"core", "patch"},
			}
			for _, step := range steps {
				res := run(t, dir, "", append(flags, step...)...)
				require.NoError(t, res.err, "step %v", step)
			}

			doc := showDocument(t, dir, flags...)
			assert.Equal(t, "Ada", doc.Memory["name"])
			assert.Equal(t, float64(3), doc.Memory["visits"])
			assert.Equal(t, 2.5, doc.EmotionalState["joy"])
			assert.Len(t, doc.EmotionalHistory, 1)
			assert.Equal(t, "1.0.1", doc.Version)
			require.NotNil(t, doc.LastPatched)
		})
	}
}

func TestCoreResets(t *testing.T) {
	dir := t.TempDir()
	for _, step := range [][]string{
		{"core", "set", "name", "Ada"},
		{"core", "emotion", "joy", "1"},
		{"core", "snapshot"},
	} {
		require.NoError(t, run(t, dir, "", step...).err)
	}

	require.NoError(t, run(t, dir, "", "core", "reset").err)
	doc := showDocument(t, dir)
	assert.Empty(t, doc.EmotionalState)
	assert.Equal(t, "Ada", doc.Memory["name"])

	require.NoError(t, run(t, dir, "", "core", "clear-cache").err)
	doc = showDocument(t, dir)
	assert.Empty(t, doc.Memory)
	assert.Len(t, doc.EmotionalHistory, 1)

	require.NoError(t, run(t, dir, "", "core", "reset", "--hard").err)
	doc = showDocument(t, dir)
	assert.Empty(t, doc.EmotionalHistory)
	assert.Equal(t, core.DefaultVersion, doc.Version)
}

func TestCoreExportImportRoundTrip(t *testing.T) {
	for _, format := range []string{"json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			dir := t.TempDir()
			file := filepath.Join(t.TempDir(), "core."+format)

			require.NoError(t, run(t, dir, "", "core", "set", "name", "Ada").err)
			res := run(t, dir, "", "core", "export", "--format", format, "-o", file)
			require.NoError(t, res.err)
			assert.Contains(t, res.stdout, file)

			require.NoError(t, run(t, dir, "", "core", "reset", "--hard").err)
			res = run(t, dir, "", "core", "import", file)
			require.NoError(t, res.err)
			assert.Contains(t, res.stdout, "Migration: up-to-date(2)")

			assert.Equal(t, "Ada", showDocument(t, dir).Memory["name"])
		})
	}
}

func TestCoreImportFromStdinMigratesLegacySnapshot(t *testing.T) {
	dir := t.TempDir()
	legacy := `{"schemaVersion": 1, "version": "1.2.3", "memory": {"name": "Ada"}, "emotionalState": {"joy": 1}, "lastPatched": null}`

	res := run(t, dir, legacy, "core", "import", "-")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Migration: migrated(1->2)")

	doc := showDocument(t, dir)
	assert.Equal(t, "1.2.3", doc.Version)
	assert.Equal(t, 2, doc.SchemaVersion)
	assert.Empty(t, doc.EmotionalHistory)
}

func TestCoreImportRejectsUnusableSnapshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, run(t, dir, "", "core", "set", "name", "Ada").err)

	file := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"memory": {}}`), 0o600))

	res := run(t, dir, "", "core", "import", file)
	require.ErrorIs(t, res.err, core.ErrInvalidSnapshot)
	assert.Equal(t, "Ada", showDocument(t, dir).Memory["name"])
}

func TestCorePrompt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, run(t, dir, "", "core", "set", "name", "Ada").err)

	res := run(t, dir, "", "core", "prompt")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "You are Carolina Olive.")
	assert.Contains(t, res.stdout, `"name": "Ada"`)
}

func TestLocalSessionsAndSend(t *testing.T) {
	dir := t.TempDir()

	res := run(t, dir, "", "sessions", "new", "Plans", "--emoji", "🗺️")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Plans")

	res = run(t, dir, "", "send", "hello", "there")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "I'm Carolina")

	res = run(t, dir, "", "sessions", "show")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "hello there")
	assert.Contains(t, res.stdout, "I'm Carolina")

	doc := showDocument(t, dir)
	assert.Equal(t, "hello there", doc.Memory["last_user_message"])
	assert.Equal(t, float64(1), doc.Memory["conversation_count"])

	res = run(t, dir, "", "sessions", "list")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Chat Sessions (")
}

func TestLocalSessionRenameAndDelete(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, run(t, dir, "", "sessions", "list").err)

	res := run(t, dir, "", "sessions", "new", "Scratch")
	require.NoError(t, res.err)
	id := sessionIDFrom(t, res.stdout)

	res = run(t, dir, "", "sessions", "rename", id, "Keep")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "Keep")

	res = run(t, dir, "", "sessions", "delete", id)
	require.NoError(t, res.err)
	assert.Contains(t, res.stderr, "Chat deleted")

	res = run(t, dir, "", "sessions", "list")
	require.NoError(t, res.err)
	assert.NotContains(t, res.stdout, id)

	res = run(t, dir, "", "sessions", "show", id)
	assert.Error(t, res.err)
}

// sessionIDFrom pulls the id off the second line of printSessionLine output.
func sessionIDFrom(t *testing.T, out string) string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	fields := strings.Fields(lines[1])
	require.NotEmpty(t, fields)
	return fields[0]
}

func TestChatREPL(t *testing.T) {
	dir := t.TempDir()
	stdin := strings.Join([]string{"hi", "", "/status", "/bogus", "/new Fresh", "/quit", "ignored"}, "\n")

	res := run(t, dir, stdin, "chat")
	require.NoError(t, res.err)

	assert.Contains(t, res.stdout, "I'm Carolina")
	assert.Contains(t, res.stdout, "Conversation count: 1")
	assert.Contains(t, res.stdout, "unknown command /bogus")
	assert.Contains(t, res.stdout, "Fresh")

	doc := showDocument(t, dir)
	assert.Equal(t, "hi", doc.Memory["last_user_message"])
}

func TestChatREPLEndsAtEOF(t *testing.T) {
	res := run(t, t.TempDir(), "status please", "chat")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "All systems operational")
}

func TestWatchRequiresServer(t *testing.T) {
	res := run(t, t.TempDir(), "", "watch")
	assert.Error(t, res.err)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		want    string
	}{
		{
			name:   "healthy",
			status: http.StatusOK,
			body:   `{"status":"healthy","checks":{"database":"ok"}}`,
			want:   "is healthy",
		},
		{
			name:    "degraded",
			status:  http.StatusServiceUnavailable,
			body:    `{"error":"database unreachable"}`,
			wantErr: ErrReported,
			want:    "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/health", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			res := run(t, t.TempDir(), "", "--server", srv.URL, "health")
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.err, tt.wantErr)
			} else {
				assert.NoError(t, res.err)
			}
			assert.Contains(t, res.stdout, tt.want)
		})
	}
}

func TestParseMemoryValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{raw: "Ada", want: "Ada"},
		{raw: `"quoted"`, want: "quoted"},
		{raw: "42", want: float64(42)},
		{raw: "true", want: true},
		{raw: `["a"]`, want: []any{"a"}},
		{raw: `{"k": 1}`, want: map[string]any{"k": float64(1)}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseMemoryValue(tt.raw), tt.raw)
	}
}

func TestFormatFromName(t *testing.T) {
	assert.Equal(t, "yaml", formatFromName("core.YAML"))
	assert.Equal(t, "yaml", formatFromName("core.yml"))
	assert.Equal(t, "json", formatFromName("core.json"))
	assert.Equal(t, "json", formatFromName("-"))
}
