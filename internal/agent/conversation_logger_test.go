package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestServiceLogsBothSidesOfAnExchange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	log, err := NewConversationLogger(ConversationLogConfig{Enabled: true, Dir: dir, QueueSize: 16}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	svc := NewService(&stubResponder{reply: &Reply{Response: "\x1b[1mHi\x1b[0m   Ada"}}, log, slog.Default())
	defer func() { _ = svc.Close() }()

	if _, err := svc.RespondAs(context.Background(), "ada", Request{Message: "hello", SessionID: "s-1"}); err != nil {
		t.Fatalf("RespondAs failed: %v", err)
	}

	events := waitForLogEvents(t, filepath.Join(dir, "ada", "s-1.ndjson"), 2)
	if events[0].EventType != "chat_user_message" || events[0].Direction != "outbound" {
		t.Errorf("Expected user message first, got %s/%s", events[0].EventType, events[0].Direction)
	}
	if events[0].Channel != "chat_http" {
		t.Errorf("Expected channel chat_http, got %q", events[0].Channel)
	}
	reply := events[1]
	if reply.EventType != "chat_assistant_message" {
		t.Errorf("Expected assistant message second, got %s", reply.EventType)
	}
	if reply.Content != "Hi Ada" {
		t.Errorf("Expected cleaned content %q, got %q", "Hi Ada", reply.Content)
	}
	if _, ok := reply.Meta["duration_ms"]; !ok {
		t.Error("Expected duration_ms in reply meta")
	}
}

func TestCleanForReadability(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{raw: "\x1b[31mred\x1b[0m text", want: "red text"},
		{raw: "bell\x07 and   spaces", want: "bell and spaces"},
		{raw: "  line one\nline two  ", want: "line one\nline two"},
	}
	for _, tt := range tests {
		if got := cleanForReadability(tt.raw); got != tt.want {
			t.Errorf("cleanForReadability(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func waitForLogEvents(t *testing.T, path string, n int) []ConversationLogEvent {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) >= n {
				events := make([]ConversationLogEvent, 0, len(lines))
				for _, line := range lines {
					var ev ConversationLogEvent
					if err := json.Unmarshal([]byte(line), &ev); err != nil {
						t.Fatalf("invalid log line %q: %v", line, err)
					}
					events = append(events, ev)
				}
				return events
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events in %s", n, path)
	return nil
}

func TestConversationLoggerDisabledIsNoop(t *testing.T) {
	t.Parallel()

	logger, err := NewConversationLogger(ConversationLogConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}
	if _, ok := logger.(noopConversationLogger); !ok {
		t.Fatalf("expected noop logger, got %T", logger)
	}
	logger.Log(ConversationLogEvent{ContentRaw: "ignored"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestConversationLoggerSanitizesPathParts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewConversationLogger(ConversationLogConfig{Enabled: true, Dir: dir}, slog.Default())
	if err != nil {
		t.Fatalf("NewConversationLogger failed: %v", err)
	}

	logger.Log(ConversationLogEvent{UserID: "../evil", SessionID: "", ContentRaw: "x"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ".._evil", "default.ndjson")); err != nil {
		t.Fatalf("expected sanitized log file: %v", err)
	}
	// Logging after Close must not panic.
	logger.Log(ConversationLogEvent{ContentRaw: "late"})
}
