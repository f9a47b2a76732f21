// Carolina - chat session and AI relay server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/ashureev/carolina/internal/agent"
	"github.com/ashureev/carolina/internal/api"
	"github.com/ashureev/carolina/internal/config"
	"github.com/ashureev/carolina/internal/events"
	"github.com/ashureev/carolina/internal/identity"
	"github.com/ashureev/carolina/internal/middleware"
	"github.com/ashureev/carolina/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "auth", len(cfg.APITokens) > 0)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		return err
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	responder, closeResponder := newResponder(ctx, cfg.Agent, logger)
	defer closeResponder()

	conversationLogger, err := agent.NewConversationLogger(agent.ConversationLogConfig{
		Enabled:   cfg.ConversationLog.Enabled,
		Dir:       cfg.ConversationLog.Dir,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return err
	}

	chatService := agent.NewService(responder, conversationLogger, logger)
	defer func() {
		if closeErr := chatService.Close(); closeErr != nil {
			slog.Warn("Failed to close conversation log", "error", closeErr)
		}
	}()

	chatHandler := agent.NewHandler(chatService, agent.HandlerConfig{
		RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
		WindowDuration:    cfg.RateLimit.WindowDuration,
		MaxRequestBody:    cfg.MaxRequestBody,
		Timeout:           cfg.Agent.Timeout,
	})
	defer chatHandler.Close()

	hub := events.NewHub(logger)
	defer hub.CloseAll()

	baseHandler := api.NewHandler(repo, hub, logger)
	healthHandler := api.NewHealthHandler(repo, 5*time.Second)
	feedHandler := events.NewHandler(hub, cfg.AllowedOrigins())

	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	// Public routes.
	healthHandler.RegisterHealth(r)

	// Authenticated routes.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(cfg.APITokens))
		baseHandler.RegisterRoutes(r)
		chatHandler.RegisterRoutes(r)
		r.Get("/ws/events", feedHandler.ServeHTTP)
	})

	// No WriteTimeout: the websocket feed is long-lived and chat relays can
	// run up to the agent timeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if cfg.SessionTTL > 0 {
		g.Go(func() error {
			return store.RunCleanupWorker(gctx, repo, cfg.CleanupInterval, cfg.SessionTTL, events.PublishRemoved(hub))
		})
	}

	if cfg.Agent.ServeAddr != "" {
		grpcServer := grpc.NewServer()
		agent.RegisterResponder(grpcServer, chatService)
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.Agent.ServeAddr)
			if err != nil {
				return err
			}
			slog.Info("Agent gRPC service listening", "addr", cfg.Agent.ServeAddr)
			return grpcServer.Serve(lis)
		})
		g.Go(func() error {
			<-gctx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")
		hub.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newResponder picks the AI collaborator: the gRPC agent when configured
// and reachable, then Gemini, then the built-in placeholder.
func newResponder(ctx context.Context, cfg config.AgentConfig, logger *slog.Logger) (agent.Responder, func()) {
	if cfg.GrpcAddr != "" {
		slog.Info("Attempting to connect to agent service via gRPC", "address", cfg.GrpcAddr)
		client, err := agent.NewGrpcClient(cfg.GrpcAddr, logger)
		if err == nil {
			return client, client.Close
		}
		slog.Warn("Failed to connect to agent, trying next responder", "error", err)
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := agent.NewGeminiResponder(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err == nil {
			slog.Info("Using Gemini responder", "model", cfg.GeminiModel)
			return gemini, func() {}
		}
		slog.Warn("Failed to initialize Gemini, using placeholder", "error", err)
	}

	slog.Info("AI model disabled, using placeholder responder")
	return agent.Placeholder{}, func() {}
}

