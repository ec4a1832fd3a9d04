package executor

import (
	"fmt"
	"sync"

	"github.com/vk/pipeforge/internal/target"
)

// Failure pairs a target with its build error.
type Failure struct {
	ID  string
	Err error
}

// Blocked records a target withheld because a prerequisite failed.
type Blocked struct {
	ID string
	By string
}

// Report collects per-target outcomes of one plan run. It is safe for
// concurrent use during execution.
type Report struct {
	mu      sync.Mutex
	Built   []string
	Failed  []Failure
	Blocked []Blocked

	// bad holds IDs of failed and blocked targets; dependents consult it
	// before building.
	bad map[string]bool
}

func newReport() *Report {
	return &Report{bad: map[string]bool{}}
}

func (r *Report) built(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Built = append(r.Built, id)
}

func (r *Report) fail(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed = append(r.Failed, Failure{ID: id, Err: err})
	r.bad[id] = true
}

func (r *Report) block(id, by string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Blocked = append(r.Blocked, Blocked{ID: id, By: by})
	r.bad[id] = true
}

// blockedBy reports whether any prerequisite of t failed or was itself
// blocked. Layers execute in depth order, so checking direct dependencies
// covers the transitive closure.
func (r *Report) blockedBy(t *target.Target) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dep := range t.Depends {
		if r.bad[dep.ID()] {
			return dep.ID(), true
		}
	}
	return "", false
}

// Err summarizes build failures, nil when every scheduled target built.
func (r *Report) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Failed) == 0 && len(r.Blocked) == 0 {
		return nil
	}
	return fmt.Errorf("plan execution incomplete: %d failed, %d blocked", len(r.Failed), len(r.Blocked))
}
