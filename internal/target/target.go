// Package target models one declared output artifact: its dependency set,
// its derived state, and the staleness criterion built on persisted
// build-generation markers.
package target

import (
	"path/filepath"
	"sync"

	"github.com/vk/pipeforge/internal/genmark"
	"github.com/vk/pipeforge/internal/model"
)

// Target is one declared output. Its identity fields are immutable after
// linking; only the derived scan/build annotations (touched, building) are
// mutated, under the internal mutex.
type Target struct {
	Name      string
	ModuleDir string
	Kind      model.Kind

	// OutputPath is the absolute artifact location.
	OutputPath string

	// Command is the declared build action, empty for direct targets.
	Command string

	// Class is the opaque parallelizable key used for scheduling grouping,
	// never for correctness.
	Class string

	Primary bool

	// Depends holds the antecedent targets, possibly in other modules.
	Depends []*Target

	// Depth is the topological level: 0 without dependencies, otherwise
	// 1 + max over dependency depths. -1 until computed.
	Depth int

	marks *genmark.Store

	mu       sync.Mutex
	touched  bool
	building bool
}

// New creates an unlinked Target from its declaration. Dependencies are
// attached afterwards by the resolver, followed by ComputeDepths.
func New(decl *model.TargetDecl, moduleDir string, marks *genmark.Store) *Target {
	return &Target{
		Name:       decl.Name,
		ModuleDir:  moduleDir,
		Kind:       decl.Kind,
		OutputPath: filepath.Join(moduleDir, decl.Output),
		Command:    decl.Command,
		Class:      decl.Parallelizable,
		Primary:    decl.Primary,
		Depth:      -1,
		marks:      marks,
	}
}

// ID is the process-wide identity "<module-dir>:<name>". Module dirs are
// canonical, so the ID is stable across resolution paths.
func (t *Target) ID() string {
	return t.ModuleDir + ":" + t.Name
}

// Exists reports whether the artifact is present on disk.
func (t *Target) Exists() bool {
	return genmark.FingerprintPath(t.OutputPath) != ""
}

// Generation returns the recorded build generation, 0 when never recorded.
// Direct targets that were never registered report generation 0, which acts
// as the baseline every first build compares against.
func (t *Target) Generation() int64 {
	m, ok := t.marks.Mark(t.ModuleDir, t.Name)
	if !ok {
		return 0
	}
	return m.Generation
}

// Fingerprint returns the artifact's current on-disk fingerprint.
func (t *Target) Fingerprint() string {
	return genmark.FingerprintPath(t.OutputPath)
}

// IsUpToDate evaluates the staleness criterion. It never mutates state and
// is safe to call at any time.
//
// A direct target is up to date exactly when its artifact exists. An
// indirect target is up to date when its artifact exists unmodified since
// the last recorded build, every dependency is itself up to date, and every
// dependency's current generation and fingerprint still match the snapshot
// recorded at build time. Generations beat raw timestamps, so a dependent
// whose file happens to be numerically newer than a rebuilt dependency is
// still reported stale.
func (t *Target) IsUpToDate() bool {
	if t.Touched() {
		return false
	}
	if t.Kind == model.KindDirect {
		return t.Exists()
	}

	fp := genmark.FingerprintPath(t.OutputPath)
	if fp == "" {
		return false
	}

	m, ok := t.marks.Mark(t.ModuleDir, t.Name)
	if !ok {
		// Artifact present but no recorded build: adopt it by rebuilding.
		return false
	}
	if m.Fingerprint != fp {
		// Edited out of band since the recorded build.
		return false
	}

	for _, dep := range t.Depends {
		if !dep.IsUpToDate() {
			return false
		}
		input, ok := m.Inputs[dep.ID()]
		if !ok {
			return false
		}
		if input.Generation != dep.Generation() {
			return false
		}
		if input.Fingerprint != dep.Fingerprint() {
			return false
		}
	}
	return true
}

// MarkTouched records that the target was identified as needing work in the
// current scan pass. It does not alter on-disk state.
func (t *Target) MarkTouched() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touched = true
}

// ClearTouched resets the scan annotation once the scheduled work is done,
// so freshness checks by dependents see the rebuilt state.
func (t *Target) ClearTouched() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.touched = false
}

// Touched reports whether the target was marked in the current scan pass.
func (t *Target) Touched() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.touched
}

// SetBuilding flags the target as currently building. The build engine owns
// this transition.
func (t *Target) SetBuilding(b bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.building = b
}

// State derives the current target state. It is recomputed on every call
// and never persisted.
func (t *Target) State() State {
	t.mu.Lock()
	building, touched := t.building, t.touched
	t.mu.Unlock()

	switch {
	case building:
		return StateBuilding
	case touched:
		return StateTouched
	case t.Depth < 0:
		return StateUnknown
	case t.IsUpToDate():
		return StateUpToDate
	default:
		return StateStale
	}
}
