// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the server configuration.
type Config struct {
	Port            string
	FrontendURL     string
	DBPath          string
	SessionTTL      time.Duration // idle empty sessions older than this are removed; 0 keeps them
	CleanupInterval time.Duration
	APITokens       map[string]string // bearer token -> principal
	Agent           AgentConfig
	RateLimit       RateLimitConfig
	MaxRequestBody  int64
	ConversationLog ConversationLogConfig
}

// AgentConfig selects the AI collaborator. The gRPC agent wins over Gemini;
// with neither set the built-in placeholder answers.
type AgentConfig struct {
	GrpcAddr     string
	ServeAddr    string // when set, the chat service is also served over gRPC here
	GeminiAPIKey string
	GeminiModel  string
	Timeout      time.Duration
}

// RateLimitConfig bounds chat requests per principal.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	tokens, err := parseTokens(getEnv("CAROLINA_API_TOKENS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := &Config{
		Port:            getEnv("PORT", "8080"),
		FrontendURL:     getEnv("FRONTEND_URL", ""),
		DBPath:          getEnv("DB_PATH", "./data/carolina.db"),
		SessionTTL:      getEnvDuration("SESSION_TTL", 0),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", 10*time.Minute),
		APITokens:       tokens,
		Agent: AgentConfig{
			GrpcAddr:     getEnv("AGENT_GRPC_ADDR", ""),
			ServeAddr:    getEnv("AGENT_GRPC_LISTEN", ""),
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			Timeout:      getEnvDuration("AGENT_TIMEOUT", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		MaxRequestBody: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL must be >= 0")
	}
	if c.SessionTTL > 0 && c.CleanupInterval <= 0 {
		return fmt.Errorf("CLEANUP_INTERVAL must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.MaxRequestBody <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	origins := []string{c.FrontendURL}
	if c.IsDevelopment() {
		origins = append(origins, "http://localhost:5173", "http://localhost:3000")
	}
	return origins
}

// ClientConfig holds the CLI client configuration.
type ClientConfig struct {
	ServerURL        string
	Token            string
	DataDir          string
	CoreBackend      string // "file" or "sqlite"
	HistoryLimit     int
	Timeout          time.Duration
	SnapshotInterval time.Duration
}

// LoadClient reads the client configuration from environment variables.
// Command-line flags override these values.
func LoadClient() (*ClientConfig, error) {
	cfg := &ClientConfig{
		ServerURL:        getEnv("CAROLINA_SERVER_URL", "http://localhost:8080"),
		Token:            getEnv("CAROLINA_TOKEN", ""),
		DataDir:          getEnv("CAROLINA_DATA_DIR", defaultDataDir()),
		CoreBackend:      getEnv("CAROLINA_CORE_BACKEND", "file"),
		HistoryLimit:     getEnvInt("CAROLINA_HISTORY_LIMIT", 500),
		Timeout:          getEnvDuration("CAROLINA_TIMEOUT", 15*time.Second),
		SnapshotInterval: getEnvDuration("CAROLINA_SNAPSHOT_INTERVAL", 30*time.Second),
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the client configuration.
func (c *ClientConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("CAROLINA_SERVER_URL cannot be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("CAROLINA_DATA_DIR cannot be empty")
	}
	switch c.CoreBackend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("CAROLINA_CORE_BACKEND must be file or sqlite, got %q", c.CoreBackend)
	}
	if c.HistoryLimit < 0 {
		return fmt.Errorf("CAROLINA_HISTORY_LIMIT must be >= 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("CAROLINA_TIMEOUT must be > 0")
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "carolina")
	}
	return "./.carolina"
}

// parseTokens reads "token=principal" pairs separated by commas. A bare
// token maps to the "local" principal.
func parseTokens(raw string) (map[string]string, error) {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, principal, found := strings.Cut(pair, "=")
		token = strings.TrimSpace(token)
		principal = strings.TrimSpace(principal)
		if !found {
			principal = "local"
		}
		if token == "" || principal == "" {
			return nil, fmt.Errorf("CAROLINA_API_TOKENS: malformed entry %q", pair)
		}
		tokens[token] = principal
	}
	return tokens, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
