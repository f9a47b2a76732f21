// Package sessions keeps an in-memory mirror of the principal's chat sessions
// and the active session's messages, reconciled with a remote backend.
package sessions

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/carolina/internal/domain"
)

// ErrAlreadyInitialized is returned when Init is called more than once.
var ErrAlreadyInitialized = errors.New("session manager already initialized")

// ErrInitFailed is returned when Init could neither select nor create a session.
var ErrInitFailed = errors.New("session manager: no session available")

// errNotReady is logged when an operation runs before Init completed.
var errNotReady = errors.New("session manager not ready")

// DefaultTimeout bounds each backend call.
const DefaultTimeout = 15 * time.Second

// Backend is the remote sessions/messages service.
type Backend interface {
	ListSessions(ctx context.Context) ([]*domain.ChatSession, error)
	ListMessages(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error)
	CreateSession(ctx context.Context, title, emoji string) (*domain.ChatSession, error)
	UpdateSession(ctx context.Context, sessionID string, patch domain.SessionPatch) (*domain.ChatSession, error)
	DeleteSession(ctx context.Context, sessionID string) error
	InsertMessage(ctx context.Context, msg domain.NewMessage) (*domain.ChatMessage, error)
	TouchSession(ctx context.Context, sessionID string) error
}

// State is the manager lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithNotifier sets where user-visible notices go.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithTimeout bounds every backend call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithTitleGenerator replaces GenerateAutoTitle.
func WithTitleGenerator(gen TitleGenerator) Option {
	return func(m *Manager) { m.titleGen = gen }
}

// WithClock overrides the time source for local updatedAt bumps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager mirrors remote sessions and messages. The lock guards local state
// only and is never held across a backend call; concurrent operations are
// last-write-wins on the mirror.
type Manager struct {
	backend  Backend
	notifier Notifier
	logger   *slog.Logger
	timeout  time.Duration
	titleGen TitleGenerator
	now      func() time.Time

	mu          sync.Mutex
	state       State
	sessions    []*domain.ChatSession
	activeID    string
	messages    []*domain.ChatMessage
	loading     int
	unconfirmed map[string]string
	// titleable holds sessions confirmed to have had no messages and not
	// yet auto-titled. Sessions whose history is unknown are absent.
	titleable map[string]bool
}

// NewManager creates a Manager. Call Init before using it.
func NewManager(backend Backend, opts ...Option) *Manager {
	m := &Manager{
		backend:     backend,
		logger:      slog.Default(),
		timeout:     DefaultTimeout,
		titleGen:    GenerateAutoTitle,
		now:         time.Now,
		unconfirmed: make(map[string]string),
		titleable:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = logNotifier{logger: m.logger}
	}
	return m
}

func (m *Manager) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

func (m *Manager) fail(msg string, err error, attrs ...any) {
	m.logger.Error(msg, append([]any{"error", err}, attrs...)...)
	m.notifier.Notify(Notice{Level: LevelError, Message: msg, Err: err})
}

func (m *Manager) ready(op string) bool {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state != StateReady {
		m.logger.Warn("operation before ready", "op", op, "state", state.String(), "error", errNotReady)
		return false
	}
	return true
}

// Init lists sessions and activates the most recent one, or creates a
// session when none exist. Once Init returns nil there is always an active
// session.
func (m *Manager) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return ErrAlreadyInitialized
	}
	m.state = StateInitializing
	m.mu.Unlock()

	sessions := m.listSessions(ctx)
	if len(sessions) > 0 {
		m.activate(sessions[0].ID)
		m.loadMessages(ctx, sessions[0].ID)
	} else if m.createSession(ctx, "", "") == nil {
		m.mu.Lock()
		m.state = StateUninitialized
		m.mu.Unlock()
		return ErrInitFailed
	}

	m.mu.Lock()
	m.state = StateReady
	m.mu.Unlock()
	m.logger.Debug("session manager ready", "sessions", len(m.Sessions()), "active", m.ActiveSessionID())
	return nil
}

// ListSessions refreshes the session list. On failure it notifies and
// returns an empty list, leaving the mirror untouched.
func (m *Manager) ListSessions(ctx context.Context) []*domain.ChatSession {
	if !m.ready("list sessions") {
		return []*domain.ChatSession{}
	}
	return m.listSessions(ctx)
}

func (m *Manager) listSessions(ctx context.Context) []*domain.ChatSession {
	callCtx, cancel := m.callCtx(ctx)
	defer cancel()

	sessions, err := m.backend.ListSessions(callCtx)
	if err != nil {
		m.fail("Failed to load chat history", err)
		return []*domain.ChatSession{}
	}
	if sessions == nil {
		sessions = []*domain.ChatSession{}
	}

	m.mu.Lock()
	m.sessions = cloneSessions(sessions)
	m.mu.Unlock()
	return cloneSessions(sessions)
}

// LoadMessages fetches a session's messages. They replace the mirror only
// if sessionID is still active when the fetch returns. On failure the mirror
// is left as it was.
func (m *Manager) LoadMessages(ctx context.Context, sessionID string) []*domain.ChatMessage {
	if !m.ready("load messages") {
		return nil
	}
	return m.loadMessages(ctx, sessionID)
}

func (m *Manager) loadMessages(ctx context.Context, sessionID string) []*domain.ChatMessage {
	if sessionID == "" {
		return nil
	}
	m.mu.Lock()
	m.loading++
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.loading--
		m.mu.Unlock()
	}()

	callCtx, cancel := m.callCtx(ctx)
	defer cancel()

	messages, err := m.backend.ListMessages(callCtx, sessionID)
	if err != nil {
		m.fail("Failed to load messages", err, "session_id", sessionID)
		return nil
	}
	if messages == nil {
		messages = []*domain.ChatMessage{}
	}

	m.mu.Lock()
	if len(messages) > 0 {
		delete(m.titleable, sessionID)
	} else {
		m.titleable[sessionID] = true
	}
	if m.activeID == sessionID {
		m.messages = cloneMessages(messages)
	} else {
		m.logger.Debug("dropping messages for inactive session", "session_id", sessionID)
	}
	m.mu.Unlock()
	return cloneMessages(messages)
}

// CreateSession creates a session, prepends it, makes it active and clears
// the messages. Empty title or emoji fall back to the defaults. Returns nil
// on failure.
func (m *Manager) CreateSession(ctx context.Context, title, emoji string) *domain.ChatSession {
	if !m.ready("create session") {
		return nil
	}
	return m.createSession(ctx, title, emoji)
}

func (m *Manager) createSession(ctx context.Context, title, emoji string) *domain.ChatSession {
	if title == "" {
		title = domain.DefaultSessionTitle
	}
	if emoji == "" {
		emoji = domain.DefaultSessionEmoji
	}

	callCtx, cancel := m.callCtx(ctx)
	defer cancel()

	created, err := m.backend.CreateSession(callCtx, title, emoji)
	if err != nil {
		m.fail("Failed to create new chat", err)
		return nil
	}

	session := *created
	m.mu.Lock()
	m.sessions = append([]*domain.ChatSession{&session}, m.sessions...)
	m.activeID = session.ID
	m.messages = []*domain.ChatMessage{}
	m.titleable[session.ID] = true
	m.mu.Unlock()

	out := session
	return &out
}

// RenameSession updates a session's title and, if non-empty, its emoji.
// The returned fields are merged into the mirror entry.
func (m *Manager) RenameSession(ctx context.Context, sessionID, title, emoji string) *domain.ChatSession {
	if !m.ready("rename session") {
		return nil
	}
	var patch domain.SessionPatch
	if title != "" {
		patch.Title = &title
	}
	if emoji != "" {
		patch.Emoji = &emoji
	}
	if patch.Empty() {
		return nil
	}

	callCtx, cancel := m.callCtx(ctx)
	defer cancel()

	updated, err := m.backend.UpdateSession(callCtx, sessionID, patch)
	if err != nil {
		m.fail("Failed to update chat", err, "session_id", sessionID)
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == sessionID {
			*s = s.Merge(*updated)
			out := *s
			return &out
		}
	}
	out := *updated
	return &out
}

// DeleteSession deletes a session. When the active session is deleted the
// first remaining session becomes active and its messages are loaded; when
// none remain a new session is created.
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) bool {
	if !m.ready("delete session") {
		return false
	}

	callCtx, cancel := m.callCtx(ctx)
	err := m.backend.DeleteSession(callCtx, sessionID)
	cancel()
	if err != nil {
		m.fail("Failed to delete chat", err, "session_id", sessionID)
		return false
	}

	m.mu.Lock()
	m.sessions = slices.DeleteFunc(m.sessions, func(s *domain.ChatSession) bool {
		return s.ID == sessionID
	})
	delete(m.unconfirmed, sessionID)
	delete(m.titleable, sessionID)
	wasActive := m.activeID == sessionID
	var next string
	if wasActive {
		if len(m.sessions) > 0 {
			next = m.sessions[0].ID
		}
		m.activeID = next
	}
	m.mu.Unlock()

	if wasActive {
		if next != "" {
			m.loadMessages(ctx, next)
		} else {
			m.createSession(ctx, "", "")
		}
	}

	m.notifier.Notify(Notice{Level: LevelSuccess, Message: "Chat deleted"})
	return true
}

// SelectSession makes sessionID active and loads its messages.
func (m *Manager) SelectSession(ctx context.Context, sessionID string) bool {
	if !m.ready("select session") {
		return false
	}

	m.mu.Lock()
	known := slices.ContainsFunc(m.sessions, func(s *domain.ChatSession) bool { return s.ID == sessionID })
	m.mu.Unlock()
	if !known {
		m.fail("Chat not found", errors.New("unknown session"), "session_id", sessionID)
		return false
	}

	m.activate(sessionID)
	m.loadMessages(ctx, sessionID)
	return true
}

// activate switches the active id. The message mirror is left as it is
// until a load for the new session succeeds.
func (m *Manager) activate(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeID = sessionID
}

// MessageOption annotates an appended message.
type MessageOption func(*domain.NewMessage)

// WithAnnotations attaches opaque domains/calculations JSON to a message.
func WithAnnotations(domains, calculations []byte) MessageOption {
	return func(msg *domain.NewMessage) {
		msg.Domains = domains
		msg.Calculations = calculations
	}
}

// AppendMessage inserts a message into the active session and appends it to
// the mirror, then touches the session's updatedAt. A failed touch is not
// rolled back; the session is marked unconfirmed instead. Returns nil when
// no session is active or the insert fails.
func (m *Manager) AppendMessage(ctx context.Context, role domain.Role, content string, opts ...MessageOption) *domain.ChatMessage {
	if !m.ready("append message") {
		return nil
	}

	m.mu.Lock()
	sessionID := m.activeID
	m.mu.Unlock()
	if sessionID == "" {
		return nil
	}

	in := domain.NewMessage{SessionID: sessionID, Role: role, Content: content}
	for _, opt := range opts {
		opt(&in)
	}

	callCtx, cancel := m.callCtx(ctx)
	msg, err := m.backend.InsertMessage(callCtx, in)
	cancel()
	if err != nil {
		m.fail("Failed to save message", err, "session_id", sessionID)
		return nil
	}

	m.mu.Lock()
	if m.activeID == sessionID {
		m.messages = append(m.messages, cloneMessage(msg))
	}
	m.mu.Unlock()

	callCtx, cancel = m.callCtx(ctx)
	err = m.backend.TouchSession(callCtx, sessionID)
	cancel()

	m.mu.Lock()
	if err != nil {
		m.unconfirmed[sessionID] = "updatedAt not confirmed"
		m.logger.Warn("session touch failed", "session_id", sessionID, "error", err)
	} else {
		delete(m.unconfirmed, sessionID)
		m.bumpLocked(sessionID)
	}
	m.mu.Unlock()

	return cloneMessage(msg)
}

// bumpLocked moves a session to the front with a fresh updatedAt.
func (m *Manager) bumpLocked(sessionID string) {
	idx := slices.IndexFunc(m.sessions, func(s *domain.ChatSession) bool { return s.ID == sessionID })
	if idx < 0 {
		return
	}
	s := m.sessions[idx]
	s.UpdatedAt = m.now().UTC()
	m.sessions = append(m.sessions[:idx], m.sessions[idx+1:]...)
	m.sessions = append([]*domain.ChatSession{s}, m.sessions...)
}

// MaybeAutoTitle titles the active session from content, at most once per
// session. Only sessions known to have started empty are titled; a session
// whose messages could not be loaded keeps its title.
func (m *Manager) MaybeAutoTitle(ctx context.Context, content string) bool {
	if !m.ready("auto title") {
		return false
	}

	m.mu.Lock()
	sessionID := m.activeID
	if sessionID == "" || !m.titleable[sessionID] {
		m.mu.Unlock()
		return false
	}
	delete(m.titleable, sessionID)
	m.mu.Unlock()

	title := m.titleGen(content)
	return m.RenameSession(ctx, sessionID, title.Title, title.Emoji) != nil
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Sessions returns a copy of the mirrored sessions, most recent first.
func (m *Manager) Sessions() []*domain.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSessions(m.sessions)
}

// ActiveSessionID returns the active session id, or "" if none.
func (m *Manager) ActiveSessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// ActiveSession returns a copy of the active session, or nil.
func (m *Manager) ActiveSession() *domain.ChatSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == m.activeID {
			out := *s
			return &out
		}
	}
	return nil
}

// Messages returns a copy of the mirrored messages. After a failed load they
// can still belong to the previously active session.
func (m *Manager) Messages() []*domain.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneMessages(m.messages)
}

// Loading reports whether a message fetch is in flight.
func (m *Manager) Loading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading > 0
}

// Unconfirmed reports whether the last remote write for id failed, and why.
func (m *Manager) Unconfirmed(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reason, ok := m.unconfirmed[id]
	return reason, ok
}

func cloneSessions(in []*domain.ChatSession) []*domain.ChatSession {
	out := make([]*domain.ChatSession, len(in))
	for i, s := range in {
		c := *s
		out[i] = &c
	}
	return out
}

func cloneMessage(msg *domain.ChatMessage) *domain.ChatMessage {
	c := *msg
	c.Domains = slices.Clone(msg.Domains)
	c.Calculations = slices.Clone(msg.Calculations)
	return &c
}

func cloneMessages(in []*domain.ChatMessage) []*domain.ChatMessage {
	out := make([]*domain.ChatMessage, len(in))
	for i, msg := range in {
		out[i] = cloneMessage(msg)
	}
	return out
}
