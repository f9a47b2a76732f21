package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	serviceName   = "carolina.agent.v1.AgentService"
	respondMethod = "/" + serviceName + "/Respond"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
	errRespond                  = errors.New("agent returned error")
)

// GrpcClient calls a remote agent service over gRPC. Payloads are
// google.protobuf.Struct messages carrying the JSON shape of Request and Reply.
type GrpcClient struct {
	conn           *grpc.ClientConn
	addr           string
	requestTimeout time.Duration
	logger         *slog.Logger
}

// GrpcClientConfig holds configuration for the gRPC client.
type GrpcClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGrpcClientConfig returns default configuration.
func DefaultGrpcClientConfig() GrpcClientConfig {
	return GrpcClientConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   30 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewGrpcClient connects to the agent at addr and waits until the connection
// is ready. Extra dial options are appended after the defaults.
func NewGrpcClient(addr string, logger *slog.Logger, opts ...grpc.DialOption) (*GrpcClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cfg := DefaultGrpcClientConfig()
	if addr != "" {
		cfg.Address = addr
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent at %s: %w", cfg.Address, err)
	}

	// Force a connection attempt during startup so we fail fast on bad agent endpoints.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("agent at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to agent service", "address", cfg.Address)

	return &GrpcClient{
		conn:           conn,
		addr:           cfg.Address,
		requestTimeout: cfg.RequestTimeout,
		logger:         logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GrpcClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// Respond sends req to the agent's Respond method.
func (c *GrpcClient) Respond(ctx context.Context, req Request) (*Reply, error) {
	in, err := requestToStruct(req)
	if err != nil {
		return nil, err
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, respondMethod, in, out); err != nil {
		c.logger.Error("agent Respond failed", "error", err, "address", c.addr)
		return nil, fmt.Errorf("respond request failed: %w", err)
	}

	fields := out.GetFields()
	if msg := fields["error"].GetStringValue(); msg != "" {
		return nil, fmt.Errorf("%w: %s", errRespond, msg)
	}
	return replyFromStruct(out)
}

func requestToStruct(req Request) (*structpb.Struct, error) {
	history := make([]any, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, map[string]any{
			"role":    string(turn.Role),
			"content": turn.Content,
		})
	}
	s, err := structpb.NewStruct(map[string]any{
		"message":       req.Message,
		"history":       history,
		"core_context":  req.CoreContext,
		"system_prompt": req.SystemPrompt,
		"session_id":    req.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode agent request: %w", err)
	}
	return s, nil
}

func requestFromStruct(s *structpb.Struct) Request {
	fields := s.GetFields()
	req := Request{
		Message:      fields["message"].GetStringValue(),
		CoreContext:  fields["core_context"].GetStringValue(),
		SystemPrompt: fields["system_prompt"].GetStringValue(),
		SessionID:    fields["session_id"].GetStringValue(),
	}
	for _, v := range fields["history"].GetListValue().GetValues() {
		turn := v.GetStructValue().GetFields()
		req.History = append(req.History, Turn{
			Role:    roleOf(turn["role"].GetStringValue()),
			Content: turn["content"].GetStringValue(),
		})
	}
	return req
}

func replyToStruct(reply *Reply) (*structpb.Struct, error) {
	fields := map[string]any{"response": reply.Response}
	for name, raw := range map[string]json.RawMessage{"domains": reply.Domains, "calculations": reply.Calculations} {
		if len(raw) == 0 {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", name, err)
		}
		fields[name] = v
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode agent reply: %w", err)
	}
	return s, nil
}

func replyFromStruct(s *structpb.Struct) (*Reply, error) {
	fields := s.GetFields()
	reply := &Reply{Response: fields["response"].GetStringValue()}

	var err error
	if v, ok := fields["domains"]; ok {
		if reply.Domains, err = v.MarshalJSON(); err != nil {
			return nil, fmt.Errorf("decode domains: %w", err)
		}
	}
	if v, ok := fields["calculations"]; ok {
		if reply.Calculations, err = v.MarshalJSON(); err != nil {
			return nil, fmt.Errorf("decode calculations: %w", err)
		}
	}
	return reply, nil
}
