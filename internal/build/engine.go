// Package build executes the recursive build protocol for single targets:
// it resolves prerequisites, decides whether to skip or (re)build, invokes
// the declared build action, and records the new generation marker. Only a
// fully successful build advances a marker, so no half-written artifact is
// ever reported up to date.
package build

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vk/pipeforge/internal/config"
	"github.com/vk/pipeforge/internal/ctxlog"
	"github.com/vk/pipeforge/internal/genmark"
	"github.com/vk/pipeforge/internal/model"
	"github.com/vk/pipeforge/internal/target"
)

// Options are the build-protocol modifiers.
type Options struct {
	// Recurse builds stale prerequisites first. Without it a stale
	// prerequisite is a MissingPrerequisiteError, never a silent build.
	Recurse bool

	// Force rebuilds the target even when it is up to date.
	Force bool
}

// Engine drives builds against one marker store. It is safe for concurrent
// use; concurrent requests for the same output path coalesce into a single
// build.
type Engine struct {
	cfg    config.Config
	marks  *genmark.Store
	runner CommandRunner
	sf     singleflight.Group
}

// NewEngine returns an Engine running build actions through the system
// shell.
func NewEngine(cfg config.Config, marks *genmark.Store) *Engine {
	return NewEngineWithRunner(cfg, marks, shellRunner{})
}

// NewEngineWithRunner returns an Engine with a custom command runner,
// used by tests and by embedders that dispatch builds elsewhere.
func NewEngineWithRunner(cfg config.Config, marks *genmark.Store, runner CommandRunner) *Engine {
	return &Engine{cfg: cfg, marks: marks, runner: runner}
}

// Make runs the build protocol for one target.
func (e *Engine) Make(ctx context.Context, t *target.Target, opts Options) error {
	logger := ctxlog.FromContext(ctx).With("module", t.ModuleDir, "target", t.Name)

	upToDate := t.IsUpToDate()
	if upToDate && !opts.Force {
		logger.Debug("target already up to date")
		return nil
	}
	if upToDate && opts.Force {
		logger.Warn("target is up to date but force was requested, rebuilding anyway")
	}

	if opts.Recurse {
		// Dependencies in depth order, each fully built before its
		// dependent; the first failure aborts before self is attempted.
		for _, dep := range depthOrdered(t.Depends) {
			if err := e.Make(ctx, dep, Options{Recurse: true}); err != nil {
				return err
			}
		}
	} else {
		for _, dep := range t.Depends {
			if !dep.IsUpToDate() {
				return &MissingPrerequisiteError{
					ModuleDir:    t.ModuleDir,
					Target:       t.Name,
					Prerequisite: dep.ID(),
				}
			}
		}
	}

	if t.Kind == model.KindDirect {
		if t.Exists() {
			// Present direct artifacts have no build action to run.
			return nil
		}
		return &DirectTargetNotBuildableError{ModuleDir: t.ModuleDir, Target: t.Name, Path: t.OutputPath}
	}

	// Serialize per output path: a second request for the same target
	// joins the in-flight build instead of re-running the action.
	_, err, shared := e.sf.Do(t.OutputPath, func() (any, error) {
		return nil, e.runAction(ctx, t, opts.Force)
	})
	if shared {
		logger.Debug("build request coalesced with an in-flight build")
	}
	return err
}

// runAction executes the declared build action and records the generation
// marker on success.
func (e *Engine) runAction(ctx context.Context, t *target.Target, force bool) error {
	logger := ctxlog.FromContext(ctx).With("module", t.ModuleDir, "target", t.Name)

	// A coalesced caller may arrive after an earlier flight finished.
	if !force && t.IsUpToDate() {
		return nil
	}

	t.SetBuilding(true)
	defer t.SetBuilding(false)

	logger.Info("building target", "command", t.Command, "deps", len(t.Depends))
	start := time.Now()

	env := []string{
		"PIPEFORGE_MODULE=" + t.ModuleDir,
		"PIPEFORGE_TARGET=" + t.Name,
		"PIPEFORGE_OUTPUT=" + t.OutputPath,
	}
	if err := e.runner.Run(ctx, t.ModuleDir, t.Command, env); err != nil {
		return &BuildActionFailedError{ModuleDir: t.ModuleDir, Target: t.Name, Err: err}
	}
	if !t.Exists() {
		return &BuildActionFailedError{
			ModuleDir: t.ModuleDir,
			Target:    t.Name,
			Err:       fmt.Errorf("build action succeeded but artifact %s is missing", t.OutputPath),
		}
	}

	if err := e.record(t); err != nil {
		return &BuildActionFailedError{ModuleDir: t.ModuleDir, Target: t.Name, Err: err}
	}
	t.ClearTouched()

	logger.Info("target built", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// record advances the target's generation past every dependency and
// snapshots each dependency's state at this build.
func (e *Engine) record(t *target.Target) error {
	gen := t.Generation()
	inputs := make(map[string]genmark.Input, len(t.Depends))
	for _, dep := range t.Depends {
		if g := dep.Generation(); g > gen {
			gen = g
		}
		inputs[dep.ID()] = genmark.Input{
			Generation:  dep.Generation(),
			Fingerprint: dep.Fingerprint(),
		}
	}

	return e.marks.Record(t.ModuleDir, t.Name, genmark.Mark{
		Generation:  gen + 1,
		BuiltAt:     time.Now().UTC(),
		Fingerprint: t.Fingerprint(),
		Inputs:      inputs,
	})
}

// depthOrdered returns the dependencies sorted by depth, then ID for
// determinism.
func depthOrdered(deps []*target.Target) []*target.Target {
	out := append([]*target.Target(nil), deps...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].ID() < out[j].ID()
	})
	return out
}
