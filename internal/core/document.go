// Package core holds the persisted, schema-versioned core document: its
// migration chain, its validator and the store that keeps it on disk.
package core

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"
)

const (
	// CurrentSchemaVersion is the schema every loaded or mutated document ends up at.
	CurrentSchemaVersion = 2

	// StorageKey is the key the document is persisted under.
	StorageKey = "carolina_olive_core"

	// DefaultVersion is the semantic version of a fresh document.
	DefaultVersion = "1.0.0"

	// DefaultHistoryLimit caps emotionalHistory unless overridden.
	DefaultHistoryLimit = 500

	timestampLayout = "2006-01-02T15:04:05.000Z"
)

// Document is the single versioned state object persisted per client.
type Document struct {
	SchemaVersion    int                `json:"schemaVersion" yaml:"schemaVersion"`
	Version          string             `json:"version" yaml:"version"`
	Memory           map[string]any     `json:"memory" yaml:"memory"`
	EmotionalState   map[string]float64 `json:"emotionalState" yaml:"emotionalState"`
	EmotionalHistory []EmotionSnapshot  `json:"emotionalHistory" yaml:"emotionalHistory"`
	LastPatched      *string            `json:"lastPatched" yaml:"lastPatched"`
}

// EmotionSnapshot is a timestamped copy of the emotional state.
type EmotionSnapshot struct {
	Timestamp string             `json:"timestamp" yaml:"timestamp"`
	Emotions  map[string]float64 `json:"emotions" yaml:"emotions"`
}

// Defaults returns a fresh default document.
func Defaults() Document {
	return Document{
		SchemaVersion:    CurrentSchemaVersion,
		Version:          DefaultVersion,
		Memory:           map[string]any{},
		EmotionalState:   map[string]float64{},
		EmotionalHistory: []EmotionSnapshot{},
	}
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := d
	out.Memory = cloneMemory(d.Memory)
	out.EmotionalState = maps.Clone(d.EmotionalState)
	if out.EmotionalState == nil {
		out.EmotionalState = map[string]float64{}
	}
	out.EmotionalHistory = make([]EmotionSnapshot, len(d.EmotionalHistory))
	for i, snap := range d.EmotionalHistory {
		out.EmotionalHistory[i] = EmotionSnapshot{
			Timestamp: snap.Timestamp,
			Emotions:  maps.Clone(snap.Emotions),
		}
	}
	if d.LastPatched != nil {
		ts := *d.LastPatched
		out.LastPatched = &ts
	}
	return out
}

// HasActiveEmotion reports whether any emotion has a non-zero intensity.
func (d Document) HasActiveEmotion() bool {
	for _, v := range d.EmotionalState {
		if v != 0 {
			return true
		}
	}
	return false
}

// EmotionNames returns the emotion names in sorted order.
func (d Document) EmotionNames() []string {
	return slices.Sorted(maps.Keys(d.EmotionalState))
}

// toMap converts the document to its generic JSON shape.
func (d Document) toMap() (map[string]any, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return out, nil
}

func cloneMemory(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return maps.Clone(m)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return maps.Clone(m)
	}
	return out
}

// normalizeValue reduces v to the value JSON would round-trip it to.
func normalizeValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
