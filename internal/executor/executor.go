// Package executor runs an execution plan in-process. Depth layers are
// hard barriers, batches within a layer run concurrently, and each batch
// is throttled to its class's concurrency ceiling. A failed target does
// not stop the run: only its transitive dependents are withheld, every
// independent branch continues.
package executor

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vk/pipeforge/internal/build"
	"github.com/vk/pipeforge/internal/config"
	"github.com/vk/pipeforge/internal/ctxlog"
	"github.com/vk/pipeforge/internal/pipeline"
	"github.com/vk/pipeforge/internal/plan"
)

// Executor executes plans against one build engine.
type Executor struct {
	cfg      config.Config
	engine   *build.Engine
	resolver *pipeline.Resolver
}

// NewLocal creates an in-process Executor.
func NewLocal(cfg config.Config, engine *build.Engine, resolver *pipeline.Resolver) *Executor {
	return &Executor{cfg: cfg, engine: engine, resolver: resolver}
}

// Run executes the plan and reports per-target outcomes. The returned
// error covers infrastructure failure only; build failures live in the
// report.
func (e *Executor) Run(ctx context.Context, p *plan.Plan) (*Report, error) {
	log := ctxlog.FromContext(ctx)
	report := newReport()

	for _, layer := range p.Layers {
		log.Debug("Starting plan layer", "depth", layer.Depth, "batches", len(layer.Batches))

		var layerGroup errgroup.Group
		for _, batch := range layer.Batches {
			batch := batch
			layerGroup.Go(func() error {
				return e.runBatch(ctx, batch, report)
			})
		}
		// Depth barrier: the next layer's builds read this layer's
		// artifacts and generation markers.
		if err := layerGroup.Wait(); err != nil {
			return report, err
		}
	}

	log.Info("Plan execution finished",
		"built", len(report.Built),
		"failed", len(report.Failed),
		"blocked", len(report.Blocked))
	return report, nil
}

func (e *Executor) runBatch(ctx context.Context, batch plan.Batch, report *Report) error {
	// Hand-built plans may leave Limit at zero; errgroup would then block
	// on the first Go call. Anything below one means serial execution.
	limit := batch.Limit
	if limit < 1 {
		limit = 1
	}

	g := &errgroup.Group{}
	g.SetLimit(limit)

	for _, inv := range batch.Invocations {
		inv := inv
		g.Go(func() error {
			e.runInvocation(ctx, inv, report)
			return nil
		})
	}
	return g.Wait()
}

// runInvocation performs one non-recursive build. Failures are recorded,
// never propagated: aborting the group would take unrelated branches down
// with the failed one.
func (e *Executor) runInvocation(ctx context.Context, inv plan.Invocation, report *Report) {
	log := ctxlog.FromContext(ctx).With("target", inv.ID())

	m, err := e.resolver.Resolve(ctx, inv.ModuleDir)
	if err != nil {
		log.Error("Module resolution failed during execution", "error", err)
		report.fail(inv.ID(), err)
		return
	}
	t, err := m.Target(inv.Target)
	if err != nil {
		log.Error("Target lookup failed during execution", "error", err)
		report.fail(inv.ID(), err)
		return
	}

	if by, ok := report.blockedBy(t); ok {
		log.Warn("Skipping target: a prerequisite failed", "blockedBy", by)
		report.block(inv.ID(), by)
		return
	}

	if err := e.engine.Make(ctx, t, build.Options{Force: inv.Force}); err != nil {
		log.Error("Build failed", "error", err)
		report.fail(inv.ID(), err)
		return
	}
	report.built(inv.ID())
}
