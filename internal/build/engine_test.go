package build

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

	"github.com/vk/pipeforge/internal/config"
	"github.com/vk/pipeforge/internal/genmark"
	"github.com/vk/pipeforge/internal/pipeline"
	"github.com/vk/pipeforge/internal/target"
)

// fakeRunner stands in for the shell: it records invocations in order and
// writes the declared output file unless told to fail.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string // target names, invocation order
	fail    map[string]bool
	noWrite map[string]bool
	delay   time.Duration
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

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	f.calls = append(f.calls, name)
	fail := f.fail[name]
	noWrite := f.noWrite[name]
	f.mu.Unlock()

	if fail {
		return errors.New("exit status 1")
	}
	if noWrite {
		return nil
	}
	return os.WriteFile(output, []byte("built "+time.Now().String()), 0o644)
}

func (f *fakeRunner) countOf(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

type fixture struct {
	root   string
	rsv    *pipeline.Resolver
	engine *Engine
	runner *fakeRunner
	forge  *pipeline.Module
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	write := func(rel, body string) {
		dir := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "pipeline.hcl"), []byte(body), 0o644))
	}
	write("", `
pipeline { root = true }

target "calib" {
  kind   = "direct"
  output = "calib.yaml"
}
`)
	write("raw", `
target "capture" {
  kind   = "direct"
  output = "capture.bag"
}
`)
	write("forge", `
target "dataset" {
  command    = "python forge.py"
  depends_on = ["../raw:capture", "..:calib"]
}

target "report" {
  command    = "python report.py"
  depends_on = ["dataset"]
}
`)
	require.NoError(t, os.WriteFile(filepath.Join(root, "calib.yaml"), []byte("k"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "raw", "capture.bag"), []byte("b"), 0o644))

	cfg := config.Default()
	cfg.Boundary = filepath.Dir(root)
	marks := genmark.NewStore()
	rsv := pipeline.NewResolver(cfg, marks)
	runner := &fakeRunner{fail: map[string]bool{}, noWrite: map[string]bool{}}

	forge, err := rsv.Resolve(context.Background(), filepath.Join(root, "forge"))
	require.NoError(t, err)

	return &fixture{
		root:   root,
		rsv:    rsv,
		engine: NewEngineWithRunner(cfg, marks, runner),
		runner: runner,
		forge:  forge,
	}
}

func (f *fixture) target(t *testing.T, name string) *target.Target {
	t.Helper()
	tg, err := f.forge.Target(name)
	require.NoError(t, err)
	return tg
}

func TestMake_RecursiveBuildsDependenciesFirst(t *testing.T) {
	f := newFixture(t)
	report := f.target(t, "report")

	require.NoError(t, f.engine.Make(context.Background(), report, Options{Recurse: true}))

	assert.Equal(t, []string{"dataset", "report"}, f.runner.calls)
	assert.True(t, report.IsUpToDate())
}

func TestMake_Idempotent(t *testing.T) {
	f := newFixture(t)
	report := f.target(t, "report")
	ctx := context.Background()

	require.NoError(t, f.engine.Make(ctx, report, Options{Recurse: true}))
	callsAfterFirst := len(f.runner.calls)

	require.NoError(t, f.engine.Make(ctx, report, Options{Recurse: true}))
	assert.Equal(t, callsAfterFirst, len(f.runner.calls), "second run must perform zero build actions")
}

func TestMake_ForceRebuildsUpToDateTarget(t *testing.T) {
	f := newFixture(t)
	dataset := f.target(t, "dataset")
	ctx := context.Background()

	require.NoError(t, f.engine.Make(ctx, dataset, Options{Recurse: true}))
	require.True(t, dataset.IsUpToDate())

	require.NoError(t, f.engine.Make(ctx, dataset, Options{Recurse: true, Force: true}))
	assert.Equal(t, 2, f.runner.countOf("dataset"))
}

func TestMake_NonRecursiveFailsOnStalePrerequisite(t *testing.T) {
	f := newFixture(t)
	report := f.target(t, "report")

	err := f.engine.Make(context.Background(), report, Options{})
	var missErr *MissingPrerequisiteError
	require.ErrorAs(t, err, &missErr)
	assert.Equal(t, "report", missErr.Target)
	assert.Empty(t, f.runner.calls, "nothing may be built")
}

func TestMake_MissingDirectTargetIsFatal(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.Remove(filepath.Join(f.root, "raw", "capture.bag")))
	dataset := f.target(t, "dataset")

	err := f.engine.Make(context.Background(), dataset, Options{Recurse: true})
	var dirErr *DirectTargetNotBuildableError
	require.ErrorAs(t, err, &dirErr)
	assert.Equal(t, "capture", dirErr.Target)
	assert.Empty(t, f.runner.calls, "dependent must not be attempted")
}

func TestMake_FailedActionDoesNotAdvanceMarker(t *testing.T) {
	f := newFixture(t)
	f.runner.fail["dataset"] = true
	report := f.target(t, "report")

	err := f.engine.Make(context.Background(), report, Options{Recurse: true})
	var actErr *BuildActionFailedError
	require.ErrorAs(t, err, &actErr)
	assert.Equal(t, "dataset", actErr.Target)

	assert.False(t, f.target(t, "dataset").IsUpToDate())
	assert.Equal(t, 0, f.runner.countOf("report"), "failure must abort downstream builds")
}

func TestMake_ActionWithoutArtifactFails(t *testing.T) {
	f := newFixture(t)
	f.runner.noWrite["dataset"] = true
	dataset := f.target(t, "dataset")

	err := f.engine.Make(context.Background(), dataset, Options{Recurse: true})
	var actErr *BuildActionFailedError
	require.ErrorAs(t, err, &actErr)
	assert.Contains(t, actErr.Error(), "missing")
	assert.False(t, dataset.IsUpToDate())
}

func TestMake_ConcurrentRequestsCoalesce(t *testing.T) {
	f := newFixture(t)
	f.runner.delay = 50 * time.Millisecond
	dataset := f.target(t, "dataset")
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.engine.Make(ctx, dataset, Options{Recurse: true})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.runner.countOf("dataset"), "one builder per output path")
}

func TestClean(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dataset := f.target(t, "dataset")
	require.NoError(t, f.engine.Make(ctx, dataset, Options{Recurse: true}))
	require.True(t, dataset.Exists())

	t.Run("unknown target name", func(t *testing.T) {
		err := f.engine.Clean(ctx, f.forge, "nope")
		var unkErr *pipeline.UnknownTargetError
		require.ErrorAs(t, err, &unkErr)
		assert.True(t, dataset.Exists(), "nothing may be removed")
	})

	t.Run("direct target by name refused", func(t *testing.T) {
		raw, err := f.rsv.Resolve(ctx, filepath.Join(f.root, "raw"))
		require.NoError(t, err)
		cleanErr := f.engine.Clean(ctx, raw, "capture")
		var dirErr *DirectTargetNotCleanableError
		require.ErrorAs(t, cleanErr, &dirErr)
		assert.FileExists(t, filepath.Join(f.root, "raw", "capture.bag"))
	})

	t.Run("by name", func(t *testing.T) {
		require.NoError(t, f.engine.Clean(ctx, f.forge, "dataset"))
		assert.False(t, dataset.Exists())
		assert.False(t, dataset.IsUpToDate())
	})

	t.Run("whole module skips direct targets", func(t *testing.T) {
		require.NoError(t, f.engine.Make(ctx, f.target(t, "report"), Options{Recurse: true}))
		require.NoError(t, f.engine.Clean(ctx, f.forge, ""))
		assert.False(t, f.target(t, "dataset").Exists())
		assert.False(t, f.target(t, "report").Exists())
		assert.FileExists(t, filepath.Join(f.root, "raw", "capture.bag"))
	})
}
