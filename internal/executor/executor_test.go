package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/pipeforge/internal/build"
	"github.com/vk/pipeforge/internal/config"
	"github.com/vk/pipeforge/internal/genmark"
	"github.com/vk/pipeforge/internal/pipeline"
	"github.com/vk/pipeforge/internal/plan"
	"github.com/vk/pipeforge/internal/scheduler"
)

// fakeRunner records build invocations, tracks peak concurrency, and
// writes the declared artifact unless told to fail.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]bool
	delay   time.Duration
	active  int
	maxSeen int
}

func (f *fakeRunner) Run(_ context.Context, _ string, _ string, env []string) error {
	var name, output string
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, "PIPEFORGE_TARGET="); ok {
			name = v
		}
		if v, ok := strings.CutPrefix(kv, "PIPEFORGE_OUTPUT="); ok {
			output = v
		}
	}

	f.mu.Lock()
	f.active++
	if f.active > f.maxSeen {
		f.maxSeen = f.active
	}
	f.calls = append(f.calls, name)
	fail := f.fail[name]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.active--
	f.mu.Unlock()

	if fail {
		return errors.New("exit status 1")
	}
	return os.WriteFile(output, []byte("built"), 0o644)
}

func (f *fakeRunner) order(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.calls {
		if c == name {
			return i
		}
	}
	return -1
}

type runFixture struct {
	moduleDir string
	runner    *fakeRunner
	exec      *Executor
	sched     *scheduler.Scheduler
}

// newRunFixture declares two independent branches in one module:
//
//	left  -> leftchild  -> grand
//	right -> rightchild
//
// plus two depth-0 targets in a throttled "io" class.
func newRunFixture(t *testing.T) *runFixture {
	t.Helper()
	root := t.TempDir()
	moduleDir := filepath.Join(root, "m")
	require.NoError(t, os.MkdirAll(moduleDir, 0o755))

	decl := `
target "left" {
  output  = "left.out"
  command = "build left"
}

target "right" {
  output  = "right.out"
  command = "build right"
}

target "leftchild" {
  output     = "leftchild.out"
  command    = "build leftchild"
  depends_on = ["left"]
}

target "rightchild" {
  output     = "rightchild.out"
  command    = "build rightchild"
  depends_on = ["right"]
}

target "grand" {
  output     = "grand.out"
  command    = "build grand"
  depends_on = ["leftchild"]
}

target "slow_a" {
  output         = "slow_a.out"
  command        = "build slow_a"
  parallelizable = "io"
}

target "slow_b" {
  output         = "slow_b.out"
  command        = "build slow_b"
  parallelizable = "io"
}
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "pipeline.hcl"), []byte("pipeline { root = true }\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(moduleDir, "pipeline.hcl"), []byte(decl), 0o644))

	cfg := config.Default()
	cfg.Boundary = filepath.Dir(root)
	cfg.Classes = map[string]int{"io": 1}

	marks := genmark.NewStore()
	rsv := pipeline.NewResolver(cfg, marks)
	runner := &fakeRunner{fail: map[string]bool{}, delay: 20 * time.Millisecond}
	engine := build.NewEngineWithRunner(cfg, marks, runner)

	return &runFixture{
		moduleDir: moduleDir,
		runner:    runner,
		exec:      NewLocal(cfg, engine, rsv),
		sched:     scheduler.New(cfg, rsv),
	}
}

func TestRun_BuildsLayersInOrder(t *testing.T) {
	f := newRunFixture(t)
	ctx := context.Background()

	p, err := f.sched.Scan(ctx, f.moduleDir, scheduler.Options{})
	require.NoError(t, err)
	require.Len(t, p.Layers, 3)

	report, err := f.exec.Run(ctx, p)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Len(t, report.Built, 7)

	assert.Less(t, f.runner.order("left"), f.runner.order("leftchild"))
	assert.Less(t, f.runner.order("leftchild"), f.runner.order("grand"))
	assert.Less(t, f.runner.order("right"), f.runner.order("rightchild"))
}

func TestRun_FailureBlocksOnlyAffectedSubtree(t *testing.T) {
	f := newRunFixture(t)
	f.runner.fail["left"] = true
	ctx := context.Background()

	p, err := f.sched.Scan(ctx, f.moduleDir, scheduler.Options{})
	require.NoError(t, err)

	report, err := f.exec.Run(ctx, p)
	require.NoError(t, err)
	require.Error(t, report.Err())

	require.Len(t, report.Failed, 1)
	assert.Equal(t, f.moduleDir+":left", report.Failed[0].ID)

	blocked := map[string]string{}
	for _, b := range report.Blocked {
		blocked[b.ID] = b.By
	}
	assert.Equal(t, f.moduleDir+":left", blocked[f.moduleDir+":leftchild"])
	assert.Equal(t, f.moduleDir+":leftchild", blocked[f.moduleDir+":grand"])

	// The independent branch completes.
	assert.Contains(t, report.Built, f.moduleDir+":right")
	assert.Contains(t, report.Built, f.moduleDir+":rightchild")
	assert.Equal(t, -1, f.runner.order("leftchild"), "blocked target must never run")
}

func TestRun_RespectsClassConcurrencyCeiling(t *testing.T) {
	f := newRunFixture(t)
	ctx := context.Background()

	// A plan holding only the throttled io batch, so peak concurrency is
	// attributable to its ceiling.
	p := &plan.Plan{
		Root: f.moduleDir,
		Layers: []plan.Layer{{
			Depth: 0,
			Batches: []plan.Batch{{
				Class:   "io",
				Limit:   1,
				JobsArg: "1",
				Invocations: []plan.Invocation{
					{ModuleDir: f.moduleDir, Target: "slow_a"},
					{ModuleDir: f.moduleDir, Target: "slow_b"},
				},
			}},
		}},
	}

	report, err := f.exec.Run(ctx, p)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Len(t, report.Built, 2)
	assert.Equal(t, 1, f.runner.maxSeen, "io batch must run one job at a time")
}

func TestRun_ZeroLimitBatchRunsSerially(t *testing.T) {
	f := newRunFixture(t)
	ctx := context.Background()

	// A batch with an unset concurrency ceiling must still execute
	// instead of deadlocking.
	p := &plan.Plan{
		Root: f.moduleDir,
		Layers: []plan.Layer{{
			Depth: 0,
			Batches: []plan.Batch{{
				Class: "io",
				Invocations: []plan.Invocation{
					{ModuleDir: f.moduleDir, Target: "slow_a"},
					{ModuleDir: f.moduleDir, Target: "slow_b"},
				},
			}},
		}},
	}

	report, err := f.exec.Run(ctx, p)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	assert.Len(t, report.Built, 2)
	assert.Equal(t, 1, f.runner.maxSeen)
}
