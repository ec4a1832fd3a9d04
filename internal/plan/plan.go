// Package plan defines the structured, parallel-annotated execution plan
// the scheduler emits, plus the textual script rendering handed to a
// generic parallel job runner. The plan is descriptive only: nothing in
// this package executes builds.
package plan

import "fmt"

// Invocation names one build to perform: module path, target name, and
// whether the build is forced.
type Invocation struct {
	ModuleDir string
	Target    string
	Force     bool
}

// Command renders the CLI invocation for this build.
func (i Invocation) Command() string {
	cmd := fmt.Sprintf("pipeforge make %s -t %s", i.ModuleDir, i.Target)
	if i.Force {
		cmd += " --force"
	}
	return cmd
}

// ID returns the target's process-wide identity.
func (i Invocation) ID() string {
	return i.ModuleDir + ":" + i.Target
}

// Batch groups same-depth invocations of one parallelizable class. Class
// homogeneity lets the runner apply a class-specific concurrency limit
// without breaking resource budgets.
type Batch struct {
	// Class is the opaque parallelizable key shared by all invocations.
	Class string

	// Limit is the executor's concurrency ceiling for this batch.
	Limit int

	// JobsArg is the -j argument passed to the parallel runner in the
	// rendered script. It may be a count or a GNU-parallel spec such as
	// "100%".
	JobsArg string

	Invocations []Invocation
}

// Layer holds every batch of one topological depth. Depth is a hard
// ordering barrier: a layer must complete before the next begins. Batches
// within a layer are mutually independent by construction.
type Layer struct {
	Depth   int
	Batches []Batch
}

// SkippedTarget records a target the scan visited but did not schedule.
type SkippedTarget struct {
	ID     string
	Reason string
}

// Problem records a module or target the scan could not process; the scan
// continues past it instead of failing outright.
type Problem struct {
	ModuleDir string
	Target    string
	Err       string
}

// Plan is the ordered execution plan for one scanned module subtree.
// Layers are sorted by strictly increasing depth.
type Plan struct {
	Root     string
	Layers   []Layer
	Skipped  []SkippedTarget
	Blocked  []SkippedTarget
	Problems []Problem
}

// Empty reports whether the plan schedules no work.
func (p *Plan) Empty() bool {
	return len(p.Layers) == 0
}

// TotalInvocations counts the scheduled builds.
func (p *Plan) TotalInvocations() int {
	n := 0
	for _, layer := range p.Layers {
		for _, b := range layer.Batches {
			n += len(b.Invocations)
		}
	}
	return n
}
