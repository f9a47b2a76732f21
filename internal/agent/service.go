package agent

import (
	"context"
	"log/slog"
	"time"
)

// Service relays chat requests to a Responder. It trims history, falls back
// to the placeholder when the responder fails, fills in missing annotations
// and records the exchange in the conversation log.
type Service struct {
	responder Responder
	fallback  Responder
	log       ConversationLogger
	logger    *slog.Logger
}

// NewService creates a Service around responder. A nil responder means the
// placeholder answers everything.
func NewService(responder Responder, log ConversationLogger, logger *slog.Logger) *Service {
	if responder == nil {
		responder = Placeholder{}
	}
	if log == nil {
		log = noopConversationLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		responder: responder,
		fallback:  Placeholder{},
		log:       log,
		logger:    logger,
	}
}

// Respond implements Responder.
func (s *Service) Respond(ctx context.Context, req Request) (*Reply, error) {
	return s.RespondAs(ctx, "", req)
}

// RespondAs answers req on behalf of userID.
func (s *Service) RespondAs(ctx context.Context, userID string, req Request) (*Reply, error) {
	req.History = TrimHistory(req.History)
	s.logEvent(userID, req.SessionID, "outbound", "chat_user_message", req.Message, nil)

	start := time.Now()
	reply, err := s.responder.Respond(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("responder failed, using placeholder", "error", err, "session_id", req.SessionID)
		if reply, err = s.fallback.Respond(ctx, req); err != nil {
			return nil, err
		}
	}
	if reply.Response == "" {
		reply.Response = FallbackReply
	}
	Annotate(req.Message, reply)

	s.logEvent(userID, req.SessionID, "inbound", "chat_assistant_message", reply.Response, map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return reply, nil
}

func (s *Service) logEvent(userID, sessionID, direction, eventType, content string, meta map[string]any) {
	s.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		UserID:     userID,
		SessionID:  sessionID,
		Channel:    "chat_http",
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}

// Close releases the conversation log.
func (s *Service) Close() error {
	return s.log.Close()
}
