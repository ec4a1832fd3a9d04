package build

import (
	"context"
	"os"

	"github.com/vk/pipeforge/internal/ctxlog"
	"github.com/vk/pipeforge/internal/model"
	"github.com/vk/pipeforge/internal/pipeline"
	"github.com/vk/pipeforge/internal/target"
)

// Clean removes the on-disk artifact and generation marker for one named
// target, or for every indirect target of the module when name is empty.
// It never cascades to dependents. Direct targets are inputs: cleaning one
// by name is an error, and module-wide cleans skip them.
func (e *Engine) Clean(ctx context.Context, m *pipeline.Module, name string) error {
	logger := ctxlog.FromContext(ctx).With("module", m.Dir)

	if name != "" {
		t, err := m.Target(name)
		if err != nil {
			return err
		}
		if t.Kind == model.KindDirect {
			return &DirectTargetNotCleanableError{ModuleDir: m.Dir, Target: t.Name}
		}
		return e.cleanTarget(ctx, t)
	}

	for _, t := range m.Targets() {
		if t.Kind == model.KindDirect {
			logger.Debug("skipping direct target during clean", "target", t.Name)
			continue
		}
		if err := e.cleanTarget(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) cleanTarget(ctx context.Context, t *target.Target) error {
	logger := ctxlog.FromContext(ctx)

	if err := os.RemoveAll(t.OutputPath); err != nil {
		return err
	}
	if err := e.marks.Remove(t.ModuleDir, t.Name); err != nil {
		return err
	}
	logger.Info("cleaned target", "module", t.ModuleDir, "target", t.Name, "path", t.OutputPath)
	return nil
}
