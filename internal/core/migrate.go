package core

import (
	"fmt"
	"maps"
	"math"
)

// OutcomeKind names how a migration run ended.
type OutcomeKind int

const (
	// OutcomeUnversioned means the blob carried no integral schemaVersion and
	// was left untouched for the validator.
	OutcomeUnversioned OutcomeKind = iota
	// OutcomeUpToDate means the blob was already at the current schema.
	OutcomeUpToDate
	// OutcomeMigrated means every step up to the current schema was applied.
	OutcomeMigrated
	// OutcomePartiallyMigrated means the chain stopped below the current schema
	// because no step was registered for the next version.
	OutcomePartiallyMigrated
	// OutcomeFutureVersion means the blob was written by a newer schema and
	// was replaced by defaults.
	OutcomeFutureVersion
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUnversioned:
		return "unversioned"
	case OutcomeUpToDate:
		return "up-to-date"
	case OutcomeMigrated:
		return "migrated"
	case OutcomePartiallyMigrated:
		return "partially-migrated"
	case OutcomeFutureVersion:
		return "future-version"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome describes one migration run.
type Outcome struct {
	Kind OutcomeKind
	// From is the schema version found in the blob.
	From int
	// Reached is the schema version the chain ended at.
	Reached int
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeMigrated, OutcomePartiallyMigrated:
		return fmt.Sprintf("%s(%d->%d)", o.Kind, o.From, o.Reached)
	case OutcomeUpToDate, OutcomeFutureVersion:
		return fmt.Sprintf("%s(%d)", o.Kind, o.From)
	default:
		return o.Kind.String()
	}
}

// Step upgrades a document to schema version To. Apply must merge the old
// fields over a fresh default so fields introduced at To are backfilled.
type Step struct {
	To    int
	Apply func(old map[string]any) map[string]any
}

// Migrator applies registered steps in order until the target schema is reached.
type Migrator struct {
	target int
	steps  map[int]Step
}

// NewMigrator builds a migrator targeting the given schema version.
func NewMigrator(target int, steps ...Step) *Migrator {
	m := &Migrator{target: target, steps: make(map[int]Step, len(steps))}
	for _, step := range steps {
		m.steps[step.To] = step
	}
	return m
}

// Target returns the schema version the migrator upgrades to.
func (m *Migrator) Target() int {
	return m.target
}

// Migrate upgrades a copy of raw and reports how far the chain got.
// raw itself is never modified.
func (m *Migrator) Migrate(raw map[string]any) (map[string]any, Outcome) {
	from, ok := schemaVersionOf(raw)
	if !ok {
		return raw, Outcome{Kind: OutcomeUnversioned}
	}
	switch {
	case from == m.target:
		return raw, Outcome{Kind: OutcomeUpToDate, From: from, Reached: from}
	case from > m.target:
		return nil, Outcome{Kind: OutcomeFutureVersion, From: from, Reached: from}
	}

	doc := maps.Clone(raw)
	version := from
	for version < m.target {
		step, ok := m.steps[version+1]
		if !ok {
			return doc, Outcome{Kind: OutcomePartiallyMigrated, From: from, Reached: version}
		}
		doc = step.Apply(doc)
		version = step.To
	}
	return doc, Outcome{Kind: OutcomeMigrated, From: from, Reached: version}
}

// defaultMigrator is the chain for the schema versions this build understands.
var defaultMigrator = NewMigrator(CurrentSchemaVersion,
	Step{To: 1, Apply: func(old map[string]any) map[string]any {
		return mergeOver(map[string]any{
			"version":        DefaultVersion,
			"memory":         map[string]any{},
			"emotionalState": map[string]any{},
			"lastPatched":    nil,
		}, old, 1)
	}},
	Step{To: 2, Apply: func(old map[string]any) map[string]any {
		return mergeOver(defaultsMap(), old, 2)
	}},
)

// Migrate upgrades raw with the built-in chain.
func Migrate(raw map[string]any) (map[string]any, Outcome) {
	return defaultMigrator.Migrate(raw)
}

// mergeOver copies old over base and stamps the schema version.
func mergeOver(base, old map[string]any, schemaVersion int) map[string]any {
	maps.Copy(base, old)
	base["schemaVersion"] = float64(schemaVersion)
	return base
}

func defaultsMap() map[string]any {
	return map[string]any{
		"schemaVersion":    float64(CurrentSchemaVersion),
		"version":          DefaultVersion,
		"memory":           map[string]any{},
		"emotionalState":   map[string]any{},
		"emotionalHistory": []any{},
		"lastPatched":      nil,
	}
}

func schemaVersionOf(raw map[string]any) (int, bool) {
	f, ok := asNumber(raw["schemaVersion"])
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}
