// Package app wires the engine's components together behind the command
// surface: one App owns the configuration, the resolver, the build engine,
// the scheduler and the executor, plus an isolated logger.
package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/vk/pipeforge/internal/build"
	"github.com/vk/pipeforge/internal/config"
	"github.com/vk/pipeforge/internal/ctxlog"
	"github.com/vk/pipeforge/internal/executor"
	"github.com/vk/pipeforge/internal/fsutil"
	"github.com/vk/pipeforge/internal/genmark"
	"github.com/vk/pipeforge/internal/pipeline"
	"github.com/vk/pipeforge/internal/scheduler"
)

// App encapsulates the application's dependencies and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	cfg    config.Config

	marks    *genmark.Store
	resolver *pipeline.Resolver
	engine   *build.Engine
	sched    *scheduler.Scheduler
	exec     *executor.Executor
}

// New constructs a fully initialized App with its own isolated logger.
func New(outW io.Writer, cfg config.Config) *App {
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, outW)

	marks := genmark.NewStore()
	resolver := pipeline.NewResolver(cfg, marks)
	engine := build.NewEngine(cfg, marks)

	return &App{
		outW:     outW,
		logger:   logger,
		cfg:      cfg,
		marks:    marks,
		resolver: resolver,
		engine:   engine,
		sched:    scheduler.New(cfg, resolver),
		exec:     executor.NewLocal(cfg, engine, resolver),
	}
}

// Context attaches the App's logger to ctx; every component below reads it
// back through ctxlog.
func (a *App) Context(ctx context.Context) context.Context {
	return ctxlog.WithLogger(ctx, a.logger)
}

// Resolver exposes the module resolver, primarily for testing.
func (a *App) Resolver() *pipeline.Resolver {
	return a.resolver
}

// Out returns the writer command output goes to.
func (a *App) Out() io.Writer {
	return a.outW
}

// modules resolves the module at path, plus every module nested below it
// when recursive is set.
func (a *App) modules(ctx context.Context, path string, recursive bool) ([]*pipeline.Module, error) {
	root, err := a.resolver.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	out := []*pipeline.Module{root}
	if !recursive {
		return out, nil
	}

	var walk func(dir string) error
	walk = func(dir string) error {
		subdirs, err := fsutil.ListSubdirs(dir, a.cfg.ExcludePrefixes)
		if err != nil {
			return err
		}
		for _, sub := range subdirs {
			if !a.resolver.IsModuleDir(sub) {
				continue
			}
			m, err := a.resolver.Resolve(ctx, sub)
			if err != nil {
				return err
			}
			out = append(out, m)
			if err := walk(sub); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(root.Dir); err != nil {
		return nil, err
	}
	return out, nil
}
