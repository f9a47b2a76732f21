package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a snapshot serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a user-supplied name to a Format. Empty means JSON.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown snapshot format %q", name)
	}
}

// ErrInvalidSnapshot is returned when an import cannot be used as a core document.
var ErrInvalidSnapshot = errors.New("invalid core snapshot")

// Snapshot is a serialized copy of the document ready to be written out.
type Snapshot struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportSnapshot serializes the current document. It does not change state.
func (s *Store) ExportSnapshot(format Format) (Snapshot, error) {
	doc := s.Document()

	switch format {
	case FormatJSON, "":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return Snapshot{}, fmt.Errorf("export json: %w", err)
		}
		return Snapshot{
			Filename:    "carolina-olive-core.json",
			ContentType: "application/json",
			Data:        append(data, '\n'),
		}, nil
	case FormatYAML:
		data, err := yaml.Marshal(doc)
		if err != nil {
			return Snapshot{}, fmt.Errorf("export yaml: %w", err)
		}
		return Snapshot{
			Filename:    "carolina-olive-core.yaml",
			ContentType: "application/yaml",
			Data:        data,
		}, nil
	default:
		return Snapshot{}, fmt.Errorf("export: unknown format %q", format)
	}
}

// ImportSnapshot replaces the document with a previously exported one. The
// input is migrated and validated like a stored blob, but documents that
// would be reset to defaults are rejected instead.
func (s *Store) ImportSnapshot(ctx context.Context, data []byte, format Format) (LoadReport, error) {
	raw, err := decodeSnapshot(data, format)
	if err != nil {
		return LoadReport{}, err
	}

	doc, outcome, validation := s.upgrade(raw)
	if outcome.Kind == OutcomeFutureVersion {
		return LoadReport{}, fmt.Errorf("%w: schema version %d is newer than %d",
			ErrInvalidSnapshot, outcome.From, s.migrator.Target())
	}
	if validation.Tier == TierFullReset {
		return LoadReport{}, fmt.Errorf("%w: malformed %s", ErrInvalidSnapshot, strings.Join(validation.Repaired, ", "))
	}

	report := LoadReport{Source: SourceStored, Migration: outcome, Validation: validation}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return LoadReport{}, ErrClosed
	}
	s.doc = doc
	s.lastLoad = report
	s.trimHistory()
	if err := s.saveLocked(ctx); err != nil {
		return report, fmt.Errorf("import: %w", err)
	}
	return report, nil
}

func decodeSnapshot(data []byte, format Format) (map[string]any, error) {
	var generic any
	switch format {
	case FormatJSON, "":
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		// Re-encode through JSON so YAML ints and nested maps take JSON shapes.
		encoded, err := json.Marshal(generic)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		generic = nil
		if err := json.Unmarshal(encoded, &generic); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
	default:
		return nil, fmt.Errorf("import: unknown format %q", format)
	}

	raw, ok := generic.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: not an object", ErrInvalidSnapshot)
	}
	return raw, nil
}
