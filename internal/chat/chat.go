// Package chat runs the send pipeline: it records the user's message, keeps
// the core document's conversation memory current, asks the responder for a
// reply and records that too.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/carolina/internal/agent"
	"github.com/ashureev/carolina/internal/core"
	"github.com/ashureev/carolina/internal/domain"
	"github.com/ashureev/carolina/internal/prompt"
	"github.com/ashureev/carolina/internal/sessions"
)

var (
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNoActiveSession is returned when no session is selected.
	ErrNoActiveSession = errors.New("no active session")
)

// snapshotEvery is the message cadence at which emotions are snapshotted.
const snapshotEvery = 5

// Sessions is the part of the session manager the pipeline drives.
type Sessions interface {
	ActiveSessionID() string
	Messages() []*domain.ChatMessage
	AppendMessage(ctx context.Context, role domain.Role, content string, opts ...sessions.MessageOption) *domain.ChatMessage
	MaybeAutoTitle(ctx context.Context, content string) bool
}

// CoreState is the part of the core store the pipeline mutates.
type CoreState interface {
	Document() core.Document
	SetMemory(ctx context.Context, key string, value any) error
	BumpEmotion(ctx context.Context, name string, delta float64) error
	SnapshotEmotions(ctx context.Context) error
}

// Result is the outcome of one Send.
type Result struct {
	User      *domain.ChatMessage
	Assistant *domain.ChatMessage
	Reply     *agent.Reply
	Emotions  []string
}

// Service sends chat messages.
type Service struct {
	sessions  Sessions
	core      CoreState
	responder agent.Responder
	notifier  sessions.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets where send failures are reported.
func WithNotifier(n sessions.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the time source for last_interaction_at.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires the pipeline.
func NewService(sess Sessions, state CoreState, responder agent.Responder, opts ...Option) *Service {
	s := &Service{
		sessions:  sess,
		core:      state,
		responder: responder,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.notifier == nil {
		s.notifier = sessions.NotifierFunc(func(n sessions.Notice) {
			s.logger.Error(n.Message, "error", n.Err)
		})
	}
	return s
}

// Send runs one exchange in the active session. Core memory updates that
// fail to persist are logged and do not abort the exchange; the store keeps
// them in memory and retries on the next save.
func (s *Service) Send(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	sessionID := s.sessions.ActiveSessionID()
	if sessionID == "" {
		return nil, ErrNoActiveSession
	}

	prior := messagesOf(s.sessions.Messages(), sessionID)
	res := &Result{}
	res.User = s.sessions.AppendMessage(ctx, domain.RoleUser, text)

	count := conversationCount(s.core.Document().Memory)
	s.remember(ctx, prompt.KeyLastUserMessage, text)
	s.remember(ctx, prompt.KeyLastInteractionAt, s.now().UnixMilli())
	s.remember(ctx, prompt.KeyConversationCount, count+1)

	res.Emotions = DetectEmotions(text)
	for _, emotion := range res.Emotions {
		if err := s.core.BumpEmotion(ctx, emotion, 1); err != nil {
			s.logger.Warn("failed to persist emotion", "emotion", emotion, "error", err)
		}
	}

	if len(prior) == 0 {
		s.sessions.MaybeAutoTitle(ctx, text)
	}

	doc := s.core.Document()
	req := agent.Request{
		Message:      text,
		History:      agent.TrimHistory(agent.TurnsFromMessages(prior)),
		CoreContext:  prompt.BuildContextSummary(doc),
		SystemPrompt: prompt.BuildSystemPrompt(doc),
		SessionID:    sessionID,
	}
	reply, err := s.responder.Respond(ctx, req)
	if err != nil {
		s.notifier.Notify(sessions.Notice{Level: sessions.LevelError, Message: "Failed to send message", Err: err})
		return res, fmt.Errorf("respond: %w", err)
	}
	if reply.Response == "" {
		reply.Response = agent.FallbackReply
	}
	res.Reply = reply

	res.Assistant = s.sessions.AppendMessage(ctx, domain.RoleAssistant, reply.Response,
		sessions.WithAnnotations(reply.Domains, reply.Calculations))
	s.remember(ctx, prompt.KeyLastResponse, reply.Response)

	if n := len(prior); n > 0 && n%snapshotEvery == 0 {
		if err := s.core.SnapshotEmotions(ctx); err != nil {
			s.logger.Warn("failed to persist emotion snapshot", "error", err)
		}
	}
	return res, nil
}

// messagesOf drops mirrored messages left over from another session.
func messagesOf(messages []*domain.ChatMessage, sessionID string) []*domain.ChatMessage {
	out := messages[:0:0]
	for _, msg := range messages {
		if msg.SessionID == sessionID {
			out = append(out, msg)
		}
	}
	return out
}

func (s *Service) remember(ctx context.Context, key string, value any) {
	if err := s.core.SetMemory(ctx, key, value); err != nil {
		s.logger.Warn("failed to persist memory", "key", key, "error", err)
	}
}

func conversationCount(memory map[string]any) int64 {
	switch v := memory[prompt.KeyConversationCount].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return 0
	}
}
