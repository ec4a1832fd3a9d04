package app

import (
	"context"
	"fmt"
	"io"

	"github.com/vk/pipeforge/internal/build"
	"github.com/vk/pipeforge/internal/ctxlog"
	"github.com/vk/pipeforge/internal/pipeline"
	"github.com/vk/pipeforge/internal/plan"
	"github.com/vk/pipeforge/internal/scheduler"
	"github.com/vk/pipeforge/internal/view"
)

// MakeOptions control one make command.
type MakeOptions struct {
	Recurse bool
	Force   bool
}

// Make builds the named target of the module at path. With an empty name
// it builds the module's primary targets, or every target when none is
// marked primary.
func (a *App) Make(ctx context.Context, path, targetName string, opts MakeOptions) error {
	ctx = a.Context(ctx)
	log := ctxlog.FromContext(ctx)

	m, err := a.resolver.Resolve(ctx, path)
	if err != nil {
		return err
	}

	names := []string{targetName}
	if targetName == "" {
		names = m.PrimaryTargetNames()
		if len(names) == 0 {
			names = m.TargetNames()
		}
	}

	for _, name := range names {
		t, err := m.Target(name)
		if err != nil {
			return err
		}
		log.Debug("Making target", "target", t.ID(), "recurse", opts.Recurse, "force", opts.Force)
		if err := a.engine.Make(ctx, t, build.Options{Recurse: opts.Recurse, Force: opts.Force}); err != nil {
			return err
		}
	}
	return nil
}

// Scan produces the execution plan for the module subtree at path.
func (a *App) Scan(ctx context.Context, path string, opts scheduler.Options) (*plan.Plan, error) {
	return a.sched.Scan(a.Context(ctx), path, opts)
}

// ScanScript scans and writes the rendered plan script to w.
func (a *App) ScanScript(ctx context.Context, w io.Writer, path string, opts scheduler.Options) error {
	p, err := a.Scan(ctx, path, opts)
	if err != nil {
		return err
	}
	return plan.WriteScript(w, p)
}

// Run scans the module subtree at path and executes the resulting plan
// in-process.
func (a *App) Run(ctx context.Context, path string, opts scheduler.Options) error {
	ctx = a.Context(ctx)

	p, err := a.sched.Scan(ctx, path, opts)
	if err != nil {
		return err
	}
	report, err := a.exec.Run(ctx, p)
	if err != nil {
		return err
	}
	for _, pr := range p.Problems {
		ctxlog.FromContext(ctx).Warn("Scan problem", "module", pr.ModuleDir, "target", pr.Target, "error", pr.Err)
	}
	return report.Err()
}

// Clean removes built artifacts. With a target name only that target is
// cleaned; otherwise every cleanable target of the module, and of all
// nested modules when recursive is set.
func (a *App) Clean(ctx context.Context, path, targetName string, recursive bool) error {
	ctx = a.Context(ctx)

	if targetName != "" || !recursive {
		m, err := a.resolver.Resolve(ctx, path)
		if err != nil {
			return err
		}
		return a.engine.Clean(ctx, m, targetName)
	}

	modules, err := a.modules(ctx, path, true)
	if err != nil {
		return err
	}
	for _, m := range modules {
		if err := a.engine.Clean(ctx, m, ""); err != nil {
			return err
		}
	}
	return nil
}

// Status writes a per-module status listing to w.
func (a *App) Status(ctx context.Context, w io.Writer, path string, all, recursive bool) error {
	modules, err := a.modules(a.Context(ctx), path, recursive)
	if err != nil {
		return err
	}
	for i, m := range modules {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprint(w, view.Module(m, all))
	}
	return nil
}

// Gitignore writes the generated .gitignore of each module so build
// artifacts never reach version control.
func (a *App) Gitignore(ctx context.Context, path string, recursive bool) error {
	ctx = a.Context(ctx)
	log := ctxlog.FromContext(ctx)

	modules, err := a.modules(ctx, path, recursive)
	if err != nil {
		return err
	}
	for _, m := range modules {
		if err := pipeline.WriteGitignore(m); err != nil {
			return err
		}
		log.Debug("Wrote gitignore", "module", m.Dir)
	}
	return nil
}
