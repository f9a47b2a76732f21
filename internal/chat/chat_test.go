package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/carolina/internal/agent"
	"github.com/ashureev/carolina/internal/core"
	"github.com/ashureev/carolina/internal/domain"
	"github.com/ashureev/carolina/internal/prompt"
	"github.com/ashureev/carolina/internal/sessions"
	"github.com/ashureev/carolina/internal/store"
)

type recordingResponder struct {
	mu    sync.Mutex
	reqs  []agent.Request
	reply agent.Reply
	err   error
}

func (r *recordingResponder) Respond(_ context.Context, req agent.Request) (*agent.Reply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reqs = append(r.reqs, req)
	if r.err != nil {
		return nil, r.err
	}
	reply := r.reply
	return &reply, nil
}

func (r *recordingResponder) last() agent.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reqs[len(r.reqs)-1]
}

type fixture struct {
	svc       *Service
	mgr       *sessions.Manager
	core      *core.Store
	responder *recordingResponder
	notices   []sessions.Notice
}

// flakyMessages fails message fetches while failing is set.
type flakyMessages struct {
	*store.Scoped
	failing atomic.Bool
}

func (f *flakyMessages) ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error) {
	if f.failing.Load() {
		return nil, errors.New("connection reset")
	}
	return f.Scoped.ListMessages(ctx, sessionID)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOver(t, func(s *store.Scoped) sessions.Backend { return s })
}

func newFixtureOver(t *testing.T, backend func(*store.Scoped) sessions.Backend) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := store.NewSQLite(filepath.Join(dir, "carolina.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	mgr := sessions.NewManager(backend(store.NewScoped(repo, "local")))
	require.NoError(t, mgr.Init(ctx))

	kv, err := store.NewFileKV(filepath.Join(dir, "core"))
	require.NoError(t, err)
	coreStore, err := core.Open(ctx, kv)
	require.NoError(t, err)

	f := &fixture{
		mgr:       mgr,
		core:      coreStore,
		responder: &recordingResponder{reply: agent.Reply{Response: "Hello back"}},
	}
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.svc = NewService(mgr, coreStore, f.responder,
		WithClock(func() time.Time { return clock }),
		WithNotifier(sessions.NotifierFunc(func(n sessions.Notice) { f.notices = append(f.notices, n) })),
	)
	return f
}

func TestSendRecordsExchange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Send(ctx, "  Thanks, I love this code  ")
	require.NoError(t, err)

	require.NotNil(t, res.User)
	require.NotNil(t, res.Assistant)
	assert.Equal(t, "Thanks, I love this code", res.User.Content)
	assert.Equal(t, "Hello back", res.Assistant.Content)
	assert.Equal(t, []string{"trust", "love"}, res.Emotions)

	msgs := f.mgr.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role)

	doc := f.core.Document()
	assert.Equal(t, "Thanks, I love this code", doc.Memory[prompt.KeyLastUserMessage])
	assert.Equal(t, "Hello back", doc.Memory[prompt.KeyLastResponse])
	assert.Equal(t, float64(1), doc.Memory[prompt.KeyConversationCount])
	assert.Equal(t, float64(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).UnixMilli()), doc.Memory[prompt.KeyLastInteractionAt])
	assert.Equal(t, 1.0, doc.EmotionalState["trust"])
	assert.Equal(t, 1.0, doc.EmotionalState["love"])

	active := f.mgr.ActiveSession()
	require.NotNil(t, active)
	assert.Equal(t, "Thanks, I love this", active.Title)
	assert.Equal(t, "❤️", active.Emoji)
}

func TestSendRequestCarriesContext(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "first")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, "second")
	require.NoError(t, err)

	req := f.responder.last()
	assert.Equal(t, "second", req.Message)
	assert.Equal(t, f.mgr.ActiveSessionID(), req.SessionID)
	require.Len(t, req.History, 2)
	assert.Equal(t, "first", req.History[0].Content)
	assert.Equal(t, "Hello back", req.History[1].Content)
	assert.True(t, strings.HasPrefix(req.CoreContext, "[CORE CONTEXT]"))
	assert.Contains(t, req.CoreContext, "Conversation count: 2")
	assert.True(t, strings.HasPrefix(req.SystemPrompt, "You are Carolina Olive."))
}

func TestSendHistoryIsCapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := f.svc.Send(ctx, "message")
		require.NoError(t, err)
	}
	req := f.responder.last()
	assert.Len(t, req.History, agent.MaxHistory)
}

func TestSendAutoTitlesOnlyFirstMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "help me debug python")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, "something entirely different now")
	require.NoError(t, err)

	active := f.mgr.ActiveSession()
	require.NotNil(t, active)
	assert.Equal(t, "help me debug python", active.Title)
}

func TestSendKeepsManualTitleWhenHistoryFailsToLoad(t *testing.T) {
	backend := &flakyMessages{}
	f := newFixtureOver(t, func(s *store.Scoped) sessions.Backend {
		backend.Scoped = s
		return backend
	})
	ctx := context.Background()

	_, err := f.svc.Send(ctx, "My titled conversation starts here")
	require.NoError(t, err)
	first := f.mgr.ActiveSessionID()
	require.NotNil(t, f.mgr.RenameSession(ctx, first, "Manual name", ""))

	require.NotNil(t, f.mgr.CreateSession(ctx, "", ""))
	_, err = f.svc.Send(ctx, "second session chatter")
	require.NoError(t, err)

	backend.failing.Store(true)
	require.True(t, f.mgr.SelectSession(ctx, first))
	require.NotEmpty(t, f.mgr.Messages(), "mirror should keep the stale messages")

	_, err = f.svc.Send(ctx, "love everything again")
	require.NoError(t, err)

	active := f.mgr.ActiveSession()
	require.NotNil(t, active)
	assert.Equal(t, first, active.ID)
	assert.Equal(t, "Manual name", active.Title)
	for _, turn := range f.responder.last().History {
		assert.NotEqual(t, "second session chatter", turn.Content)
	}
}

func TestSendSnapshotsEveryFifthPriorMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Prior counts are 0, 2, 4, 6, 8, 10: only 10 is a positive multiple of 5.
	for i := 0; i < 6; i++ {
		_, err := f.svc.Send(ctx, "I am happy")
		require.NoError(t, err)
	}
	history := f.core.Document().EmotionalHistory
	require.Len(t, history, 1)
	assert.Equal(t, 6.0, history[0].Emotions["joy"])
}

func TestSendEmptyReplyUsesFallback(t *testing.T) {
	f := newFixture(t)
	f.responder.reply = agent.Reply{}

	res, err := f.svc.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, agent.FallbackReply, res.Assistant.Content)
	assert.Equal(t, agent.FallbackReply, f.core.Document().Memory[prompt.KeyLastResponse])
}

func TestSendStoresAnnotations(t *testing.T) {
	f := newFixture(t)
	f.responder.reply = agent.Reply{
		Response:     "ok",
		Domains:      []byte(`["physics"]`),
		Calculations: []byte(`{"physics":"done"}`),
	}

	res, err := f.svc.Send(context.Background(), "force")
	require.NoError(t, err)
	assert.JSONEq(t, `["physics"]`, string(res.Assistant.Domains))
	assert.JSONEq(t, `{"physics":"done"}`, string(res.Assistant.Calculations))
}

func TestSendResponderFailure(t *testing.T) {
	f := newFixture(t)
	f.responder.err = errors.New("agent down")

	res, err := f.svc.Send(context.Background(), "hello")
	require.Error(t, err)
	require.NotNil(t, res)
	assert.NotNil(t, res.User)
	assert.Nil(t, res.Assistant)
	require.Len(t, f.notices, 1)
	assert.Equal(t, "Failed to send message", f.notices[0].Message)
	assert.Len(t, f.mgr.Messages(), 1)
}

func TestSendRejectsBlankInput(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, f.responder.reqs)
}

func TestSendWithoutActiveSession(t *testing.T) {
	f := newFixture(t)
	svc := NewService(sessions.NewManager(nil), f.core, f.responder)
	_, err := svc.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestDetectEmotions(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"nothing here", nil},
		{"I'm so HAPPY and curious", []string{"joy", "curiosity"}},
		{"feeling down, need help", []string{"sadness", "seeking"}},
		{"careful", nil},
		{"stress and worry, but hope", []string{"anxiety", "hope"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectEmotions(tt.text), tt.text)
	}
}
