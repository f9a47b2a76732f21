package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/carolina/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// sqliteDSN enables WAL, foreign keys and a busy timeout on every pooled connection.
func sqliteDSN(dbPath string) string {
	return dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

func openSQLite(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := openSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db, now: time.Now}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		emoji TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_sessions_user_updated ON chat_sessions(user_id, updated_at DESC);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		domains TEXT,
		calculations TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.ChatSession, error) {
	var session domain.ChatSession
	var createdAt, updatedAt int64
	if err := row.Scan(
		&session.ID, &session.UserID, &session.Title, &session.Emoji,
		&createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	session.CreatedAt = time.UnixMilli(createdAt).UTC()
	session.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &session, nil
}

// ListSessions returns the principal's sessions, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]*domain.ChatSession, error) {
	query := `
		SELECT id, user_id, title, emoji, created_at, updated_at
		FROM chat_sessions WHERE user_id = ?
		ORDER BY updated_at DESC, created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	sessions := make([]*domain.ChatSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// GetSession retrieves a single session.
func (s *SQLiteStore) GetSession(ctx context.Context, userID, sessionID string) (*domain.ChatSession, error) {
	query := `
		SELECT id, user_id, title, emoji, created_at, updated_at
		FROM chat_sessions WHERE id = ? AND user_id = ?`

	session, err := scanSession(s.db.QueryRowContext(ctx, query, sessionID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// CreateSession inserts a session and assigns its ID and timestamps.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.ChatSession) error {
	now := s.now().UTC().Truncate(time.Millisecond)
	session.ID = newID()
	session.CreatedAt = now
	session.UpdatedAt = now

	query := `
	INSERT INTO chat_sessions (id, user_id, title, emoji, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	err := withBusyRetry(ctx, "create session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.ID, session.UserID, session.Title, session.Emoji,
			now.UnixMilli(), now.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// UpdateSession applies a partial title/emoji update and returns the stored row.
func (s *SQLiteStore) UpdateSession(ctx context.Context, userID, sessionID string, patch domain.SessionPatch) (*domain.ChatSession, error) {
	if patch.Empty() {
		return s.GetSession(ctx, userID, sessionID)
	}

	var sets []string
	var args []any
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Emoji != nil {
		sets = append(sets, "emoji = ?")
		args = append(args, *patch.Emoji)
	}
	args = append(args, sessionID, userID)

	query := `UPDATE chat_sessions SET ` + strings.Join(sets, ", ") + ` WHERE id = ? AND user_id = ?`

	var affected int64
	err := withBusyRetry(ctx, "update session", func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetSession(ctx, userID, sessionID)
}

// DeleteSession removes a session together with its messages.
func (s *SQLiteStore) DeleteSession(ctx context.Context, userID, sessionID string) error {
	var affected int64
	err := withBusyRetry(ctx, "delete session", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		// Explicit delete keeps the cascade even when foreign keys are off for a connection.
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM chat_messages WHERE session_id IN (SELECT id FROM chat_sessions WHERE id = ? AND user_id = ?)`,
			sessionID, userID,
		); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ? AND user_id = ?`, sessionID, userID)
		if err != nil {
			return err
		}
		if affected, err = result.RowsAffected(); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchSession bumps updated_at for a session.
func (s *SQLiteStore) TouchSession(ctx context.Context, userID, sessionID string, at time.Time) error {
	query := `UPDATE chat_sessions SET updated_at = ? WHERE id = ? AND user_id = ?`

	var affected int64
	err := withBusyRetry(ctx, "touch session", func() error {
		result, err := s.db.ExecContext(ctx, query, at.UTC().UnixMilli(), sessionID, userID)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if affected == 0 {
		slog.Warn("TouchSession affected 0 rows", "session_id", sessionID, "user_id", userID)
		return ErrNotFound
	}
	return nil
}

// ListMessages returns a session's messages in creation order.
func (s *SQLiteStore) ListMessages(ctx context.Context, userID, sessionID string) ([]*domain.ChatMessage, error) {
	if _, err := s.GetSession(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, session_id, role, content, domains, calculations, created_at
		FROM chat_messages WHERE session_id = ?
		ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	messages := make([]*domain.ChatMessage, 0)
	for rows.Next() {
		var msg domain.ChatMessage
		var role string
		var domains, calculations sql.NullString
		var createdAt int64
		if err := rows.Scan(
			&msg.ID, &msg.SessionID, &role, &msg.Content,
			&domains, &calculations, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Role = domain.Role(role)
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		if domains.Valid {
			msg.Domains = []byte(domains.String)
		}
		if calculations.Valid {
			msg.Calculations = []byte(calculations.String)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// InsertMessage appends a message to a session.
func (s *SQLiteStore) InsertMessage(ctx context.Context, userID string, in domain.NewMessage) (*domain.ChatMessage, error) {
	if _, err := s.GetSession(ctx, userID, in.SessionID); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	msg := &domain.ChatMessage{
		ID:           newID(),
		SessionID:    in.SessionID,
		Role:         in.Role,
		Content:      in.Content,
		CreatedAt:    now,
		Domains:      in.Domains,
		Calculations: in.Calculations,
	}

	query := `
	INSERT INTO chat_messages (id, session_id, role, content, domains, calculations, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	err := withBusyRetry(ctx, "insert message", func() error {
		_, err := s.db.ExecContext(ctx, query,
			msg.ID, msg.SessionID, string(msg.Role), msg.Content,
			nullableJSON(msg.Domains), nullableJSON(msg.Calculations), now.UnixMilli(),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// CleanupIdleSessions removes sessions that have no messages and were not
// touched within ttl, and returns the removed sessions' ids and owners.
func (s *SQLiteStore) CleanupIdleSessions(ctx context.Context, ttl time.Duration) ([]*domain.ChatSession, error) {
	threshold := s.now().Add(-ttl).UnixMilli()
	query := `
	DELETE FROM chat_sessions
	WHERE updated_at < ?
	  AND NOT EXISTS (SELECT 1 FROM chat_messages m WHERE m.session_id = chat_sessions.id)
	RETURNING id, user_id`

	var removed []*domain.ChatSession
	err := withBusyRetry(ctx, "cleanup idle sessions", func() error {
		removed = removed[:0]
		rows, err := s.db.QueryContext(ctx, query, threshold)
		if err != nil {
			return err
		}
		defer func() { _ = rows.Close() }()
		for rows.Next() {
			session := &domain.ChatSession{}
			if err := rows.Scan(&session.ID, &session.UserID); err != nil {
				return err
			}
			removed = append(removed, session)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("cleanup idle sessions: %w", err)
	}
	return removed, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
