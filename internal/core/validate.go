package core

import (
	"encoding/json"
	"fmt"
	"math"
)

// Tier is the repair level the validator applied.
type Tier int

const (
	// TierNone means the document was well-formed.
	TierNone Tier = iota
	// TierFieldRepair means individual fields were reset or dropped.
	TierFieldRepair
	// TierFullReset means the whole document was replaced by defaults.
	TierFullReset
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierFieldRepair:
		return "field-repair"
	case TierFullReset:
		return "full-reset"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Validation reports what the validator did.
type Validation struct {
	Tier Tier
	// Repaired lists the fields that were reset, dropped or nulled.
	Repaired []string
}

// Validate turns a generic document into a typed one. A missing or
// non-integral schemaVersion, or a non-string version, replaces the whole
// document with defaults. Otherwise malformed fields are repaired one by one.
func Validate(raw map[string]any) (Document, Validation) {
	sv, ok := schemaVersionOf(raw)
	if !ok {
		return Defaults(), Validation{Tier: TierFullReset, Repaired: []string{"schemaVersion"}}
	}
	version, ok := raw["version"].(string)
	if !ok {
		return Defaults(), Validation{Tier: TierFullReset, Repaired: []string{"version"}}
	}

	doc := Document{SchemaVersion: sv, Version: version}
	var repaired []string

	if memory, ok := raw["memory"].(map[string]any); ok {
		doc.Memory = cloneMemory(memory)
	} else {
		doc.Memory = map[string]any{}
		repaired = append(repaired, "memory")
	}

	if state, ok := raw["emotionalState"].(map[string]any); ok {
		var dropped bool
		doc.EmotionalState, dropped = numericMap(state)
		if dropped {
			repaired = append(repaired, "emotionalState.values")
		}
	} else {
		doc.EmotionalState = map[string]float64{}
		repaired = append(repaired, "emotionalState")
	}

	doc.EmotionalHistory = []EmotionSnapshot{}
	switch history := raw["emotionalHistory"].(type) {
	case nil:
		if _, present := raw["emotionalHistory"]; present {
			repaired = append(repaired, "emotionalHistory")
		}
	case []any:
		var dropped bool
		for _, entry := range history {
			snap, ok := snapshotOf(entry)
			if !ok {
				dropped = true
				continue
			}
			doc.EmotionalHistory = append(doc.EmotionalHistory, snap)
		}
		if dropped {
			repaired = append(repaired, "emotionalHistory.entries")
		}
	default:
		repaired = append(repaired, "emotionalHistory")
	}

	switch ts := raw["lastPatched"].(type) {
	case nil:
	case string:
		doc.LastPatched = &ts
	default:
		repaired = append(repaired, "lastPatched")
	}

	if len(repaired) == 0 {
		return doc, Validation{Tier: TierNone}
	}
	return doc, Validation{Tier: TierFieldRepair, Repaired: repaired}
}

func snapshotOf(entry any) (EmotionSnapshot, bool) {
	m, ok := entry.(map[string]any)
	if !ok {
		return EmotionSnapshot{}, false
	}
	ts, ok := m["timestamp"].(string)
	if !ok {
		return EmotionSnapshot{}, false
	}
	emotions, ok := m["emotions"].(map[string]any)
	if !ok {
		return EmotionSnapshot{}, false
	}
	values, _ := numericMap(emotions)
	return EmotionSnapshot{Timestamp: ts, Emotions: values}, true
}

// numericMap keeps the finite numeric entries of m.
func numericMap(m map[string]any) (map[string]float64, bool) {
	out := make(map[string]float64, len(m))
	dropped := false
	for k, v := range m {
		f, ok := asNumber(v)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			dropped = true
			continue
		}
		out[k] = f
	}
	return out, dropped
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
