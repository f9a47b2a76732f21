package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrClosed is returned by mutations after Close.
var ErrClosed = errors.New("core store closed")

// Backend is the key-value persistence the store writes through to.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// LoadSource says where the loaded document came from.
type LoadSource string

const (
	SourceEmpty        LoadSource = "empty"
	SourceStored       LoadSource = "stored"
	SourceCorrupt      LoadSource = "corrupt"
	SourceBackendError LoadSource = "backend-error"
)

// LoadReport describes the most recent load.
type LoadReport struct {
	Source     LoadSource
	Migration  Outcome
	Validation Validation
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

// WithHistoryLimit caps emotionalHistory; the oldest snapshots are evicted
// first. Zero disables the cap.
func WithHistoryLimit(n int) Option {
	return func(s *Store) {
		if n < 0 {
			n = 0
		}
		s.historyLimit = n
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMigrator replaces the built-in migration chain.
func WithMigrator(m *Migrator) Option {
	return func(s *Store) { s.migrator = m }
}

// Store owns the live core document. Every mutation derives a new document
// from the previous one, validates it, replaces it and persists it in full.
// Store is safe for concurrent use.
type Store struct {
	backend      Backend
	key          string
	historyLimit int
	now          func() time.Time
	logger       *slog.Logger
	migrator     *Migrator

	mu       sync.Mutex
	doc      Document
	lastLoad LoadReport
	dirty    bool
	closed   bool
}

// Open loads the persisted document from backend. Load problems never fail
// Open; they degrade to defaults and are recorded in LastLoad.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	if backend == nil {
		return nil, errors.New("core: nil backend")
	}
	s := &Store{
		backend:      backend,
		key:          StorageKey,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
		logger:       slog.Default(),
		migrator:     defaultMigrator,
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, report := s.load(ctx)
	s.doc = doc
	s.lastLoad = report
	s.trimHistory()

	s.logger.Debug("core document loaded",
		"source", report.Source,
		"migration", report.Migration.String(),
		"repair", report.Validation.Tier.String(),
		"schema_version", doc.SchemaVersion)
	return s, nil
}

func (s *Store) load(ctx context.Context) (Document, LoadReport) {
	data, ok, err := s.backend.Get(ctx, s.key)
	if err != nil {
		s.logger.Warn("core document unreadable, using defaults", "error", err)
		return Defaults(), LoadReport{Source: SourceBackendError}
	}
	if !ok || len(data) == 0 {
		return Defaults(), LoadReport{Source: SourceEmpty}
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		s.logger.Warn("core document corrupt, using defaults", "error", err)
		return Defaults(), LoadReport{Source: SourceCorrupt}
	}

	doc, outcome, validation := s.upgrade(raw)
	return doc, LoadReport{Source: SourceStored, Migration: outcome, Validation: validation}
}

// upgrade runs migration then validation on a parsed blob.
func (s *Store) upgrade(raw map[string]any) (Document, Outcome, Validation) {
	migrated, outcome := s.migrator.Migrate(raw)
	switch outcome.Kind {
	case OutcomeFutureVersion:
		s.logger.Warn("core document from a newer schema, using defaults",
			"found", outcome.From, "supported", s.migrator.Target())
		return Defaults(), outcome, Validation{Tier: TierNone}
	case OutcomePartiallyMigrated:
		// The chain has a gap. Keep the fields and adopt them onto the current schema.
		s.logger.Warn("core migration incomplete, adopting document",
			"from", outcome.From, "reached", outcome.Reached, "target", s.migrator.Target())
		migrated = mergeOver(defaultsMap(), migrated, s.migrator.Target())
	}

	doc, validation := Validate(migrated)
	if validation.Tier != TierNone {
		s.logger.Warn("core document repaired",
			"tier", validation.Tier.String(), "fields", validation.Repaired)
	}
	return doc, outcome, validation
}

// LastLoad returns the report of the most recent load or import.
func (s *Store) LastLoad() LoadReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLoad
}

// Document returns a deep copy of the current document.
func (s *Store) Document() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Dirty reports whether the in-memory document has changes the backend
// has not accepted yet.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// mutate applies fn to a copy of the document, validates the result, installs
// it and persists it. The new document stays installed if persisting fails.
func (s *Store) mutate(ctx context.Context, op string, fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	next := s.doc.Clone()
	if err := fn(&next); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	raw, err := next.toMap()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	doc, validation := Validate(raw)
	if validation.Tier != TierNone {
		s.logger.Warn("core document repaired after mutation",
			"op", op, "tier", validation.Tier.String(), "fields", validation.Repaired)
	}
	s.doc = doc
	s.trimHistory()

	if err := s.saveLocked(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) saveLocked(ctx context.Context) error {
	data, err := json.Marshal(s.doc)
	if err != nil {
		s.dirty = true
		return fmt.Errorf("marshal core document: %w", err)
	}
	if err := s.backend.Put(ctx, s.key, data); err != nil {
		s.dirty = true
		s.logger.Warn("core document not persisted", "error", err)
		return fmt.Errorf("persist core document: %w", err)
	}
	s.dirty = false
	return nil
}

func (s *Store) trimHistory() {
	if s.historyLimit <= 0 {
		return
	}
	if excess := len(s.doc.EmotionalHistory) - s.historyLimit; excess > 0 {
		s.doc.EmotionalHistory = append([]EmotionSnapshot(nil), s.doc.EmotionalHistory[excess:]...)
	}
}

// SoftReset clears the emotional state only.
func (s *Store) SoftReset(ctx context.Context) error {
	return s.mutate(ctx, "soft reset", func(d *Document) error {
		d.EmotionalState = map[string]float64{}
		return nil
	})
}

// ClearCache clears memory and emotional state, keeping version and history.
func (s *Store) ClearCache(ctx context.Context) error {
	return s.mutate(ctx, "clear cache", func(d *Document) error {
		d.Memory = map[string]any{}
		d.EmotionalState = map[string]float64{}
		return nil
	})
}

// HardReset deletes the persisted blob and reinstates defaults.
func (s *Store) HardReset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.doc = Defaults()
	if err := s.backend.Delete(ctx, s.key); err != nil {
		s.dirty = true
		return fmt.Errorf("hard reset: delete core document: %w", err)
	}
	s.dirty = false
	return nil
}

// Patch increments the patch component of the semantic version and stamps
// lastPatched with the current time.
func (s *Store) Patch(ctx context.Context) error {
	return s.mutate(ctx, "patch", func(d *Document) error {
		d.Version = incrementPatch(d.Version)
		ts := formatTimestamp(s.now())
		d.LastPatched = &ts
		return nil
	})
}

// SetMemory upserts one memory key. value must be JSON-serializable.
func (s *Store) SetMemory(ctx context.Context, key string, value any) error {
	normalized, err := normalizeValue(value)
	if err != nil {
		return fmt.Errorf("set memory %q: %w", key, err)
	}
	return s.mutate(ctx, "set memory", func(d *Document) error {
		d.Memory[key] = normalized
		return nil
	})
}

// BumpEmotion adds delta to an emotion's intensity. Negative deltas are allowed.
func (s *Store) BumpEmotion(ctx context.Context, name string, delta float64) error {
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return fmt.Errorf("bump emotion %q: delta must be finite", name)
	}
	return s.mutate(ctx, "bump emotion", func(d *Document) error {
		d.EmotionalState[name] += delta
		return nil
	})
}

// SnapshotEmotions appends a timestamped copy of the emotional state to the history.
func (s *Store) SnapshotEmotions(ctx context.Context) error {
	return s.mutate(ctx, "snapshot emotions", func(d *Document) error {
		d.EmotionalHistory = append(d.EmotionalHistory, EmotionSnapshot{
			Timestamp: formatTimestamp(s.now()),
			Emotions:  maps.Clone(d.EmotionalState),
		})
		return nil
	})
}

// Flush persists the current document.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.saveLocked(ctx)
}

// Close persists pending changes and rejects further mutations.
func (s *Store) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.dirty {
		return s.saveLocked(ctx)
	}
	return nil
}

// incrementPatch bumps the third component of a dotted version. Missing or
// non-numeric patch components count as zero.
func incrementPatch(v string) string {
	parts := strings.Split(v, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil || patch < 0 {
		patch = 0
	}
	parts[2] = strconv.Itoa(patch + 1)
	return strings.Join(parts, ".")
}
