// Package scheduler turns a module subtree into a layered execution plan.
// A scan enumerates every target under the root module, keeps the stale
// ones, pulls in their stale out-of-tree dependencies, and buckets the
// result by topological depth and parallelizable class. The scan only
// reads state; building is the executor's job.
package scheduler

import (
	"context"
	"regexp"
	"sort"
	"strconv"

	"github.com/vk/pipeforge/internal/config"
	"github.com/vk/pipeforge/internal/ctxlog"
	"github.com/vk/pipeforge/internal/fsutil"
	"github.com/vk/pipeforge/internal/model"
	"github.com/vk/pipeforge/internal/pipeline"
	"github.com/vk/pipeforge/internal/plan"
	"github.com/vk/pipeforge/internal/target"
)

// Options control one scan.
type Options struct {
	// Recursive extends the scan from the root module to every module in
	// its directory subtree.
	Recursive bool

	// Force schedules every enumerated target regardless of freshness.
	Force bool
}

// Scheduler performs scans against one resolver.
type Scheduler struct {
	cfg      config.Config
	resolver *pipeline.Resolver
}

// New creates a Scheduler.
func New(cfg config.Config, resolver *pipeline.Resolver) *Scheduler {
	return &Scheduler{cfg: cfg, resolver: resolver}
}

// jobsSpecRe matches class keys that are themselves valid GNU parallel -j
// arguments, such as "4" or "100%".
var jobsSpecRe = regexp.MustCompile(`^[0-9]+%?$`)

// Scan resolves the module at rootPath and produces its execution plan.
// Broken modules and missing direct targets are recorded in the plan
// instead of failing the scan; only an unresolvable root is an error.
func (s *Scheduler) Scan(ctx context.Context, rootPath string, opts Options) (*plan.Plan, error) {
	log := ctxlog.FromContext(ctx)

	root, err := s.resolver.Resolve(ctx, rootPath)
	if err != nil {
		return nil, err
	}

	p := &plan.Plan{Root: root.Dir}

	modules := []*pipeline.Module{root}
	if opts.Recursive {
		modules = append(modules, s.collect(ctx, root.Dir, p)...)
	}

	var (
		scheduled     []*target.Target
		queue         []*target.Target
		missingDirect = map[string]bool{}
	)
	schedule := func(t *target.Target) {
		t.MarkTouched()
		scheduled = append(scheduled, t)
		queue = append(queue, t)
	}

	for _, m := range modules {
		for _, t := range m.Targets() {
			if t.Touched() {
				continue
			}
			if t.Kind == model.KindDirect {
				if !t.Exists() {
					missingDirect[t.ID()] = true
					p.Problems = append(p.Problems, plan.Problem{
						ModuleDir: t.ModuleDir,
						Target:    t.Name,
						Err:       "direct target artifact is missing",
					})
				} else {
					p.Skipped = append(p.Skipped, plan.SkippedTarget{ID: t.ID(), Reason: "direct"})
				}
				continue
			}
			if opts.Force || !t.IsUpToDate() {
				schedule(t)
			} else {
				p.Skipped = append(p.Skipped, plan.SkippedTarget{ID: t.ID(), Reason: "up to date"})
			}
		}
	}

	// Stale dependencies outside the scanned subtree must build too, or the
	// layered plan would run its non-recursive builds against missing
	// prerequisites.
	for len(queue) > 0 {
		t := queue[0]
		queue = queue[1:]
		for _, dep := range t.Depends {
			if dep.Kind == model.KindDirect {
				if !dep.Exists() && !missingDirect[dep.ID()] {
					missingDirect[dep.ID()] = true
					p.Problems = append(p.Problems, plan.Problem{
						ModuleDir: dep.ModuleDir,
						Target:    dep.Name,
						Err:       "direct target artifact is missing",
					})
				}
				continue
			}
			if !dep.Touched() && !dep.IsUpToDate() {
				schedule(dep)
			}
		}
	}

	runnable := s.pruneBlocked(p, scheduled, missingDirect)
	s.bucket(p, runnable, opts.Force)

	sort.Slice(p.Skipped, func(i, j int) bool { return p.Skipped[i].ID < p.Skipped[j].ID })
	sort.Slice(p.Blocked, func(i, j int) bool { return p.Blocked[i].ID < p.Blocked[j].ID })
	sort.Slice(p.Problems, func(i, j int) bool {
		if p.Problems[i].ModuleDir != p.Problems[j].ModuleDir {
			return p.Problems[i].ModuleDir < p.Problems[j].ModuleDir
		}
		return p.Problems[i].Target < p.Problems[j].Target
	})

	log.Debug("Scan complete",
		"root", root.Dir,
		"scheduled", p.TotalInvocations(),
		"skipped", len(p.Skipped),
		"blocked", len(p.Blocked),
		"problems", len(p.Problems))
	return p, nil
}

// collect walks the directory subtree below dir and resolves every nested
// module, descending only through directories that are modules themselves.
// Resolution failures become plan problems, not scan errors.
func (s *Scheduler) collect(ctx context.Context, dir string, p *plan.Plan) []*pipeline.Module {
	var out []*pipeline.Module
	subdirs, err := fsutil.ListSubdirs(dir, s.cfg.ExcludePrefixes)
	if err != nil {
		p.Problems = append(p.Problems, plan.Problem{ModuleDir: dir, Err: err.Error()})
		return out
	}
	for _, sub := range subdirs {
		if !s.resolver.IsModuleDir(sub) {
			continue
		}
		m, err := s.resolver.Resolve(ctx, sub)
		if err != nil {
			p.Problems = append(p.Problems, plan.Problem{ModuleDir: sub, Err: err.Error()})
			continue
		}
		out = append(out, m)
		out = append(out, s.collect(ctx, sub, p)...)
	}
	return out
}

// pruneBlocked removes scheduled targets that transitively depend on a
// missing direct target: building them is guaranteed to fail, so the plan
// reports them as blocked instead.
func (s *Scheduler) pruneBlocked(p *plan.Plan, scheduled []*target.Target, missingDirect map[string]bool) []*target.Target {
	blockedBy := map[string]string{}

	var blocker func(t *target.Target) string
	blocker = func(t *target.Target) string {
		if by, ok := blockedBy[t.ID()]; ok {
			return by
		}
		blockedBy[t.ID()] = "" // cycle guard; cycles are rejected at resolve time
		for _, dep := range t.Depends {
			if missingDirect[dep.ID()] {
				blockedBy[t.ID()] = dep.ID()
				return dep.ID()
			}
			if by := blocker(dep); by != "" {
				blockedBy[t.ID()] = by
				return by
			}
		}
		return ""
	}

	var runnable []*target.Target
	for _, t := range scheduled {
		if by := blocker(t); by != "" {
			p.Blocked = append(p.Blocked, plan.SkippedTarget{
				ID:     t.ID(),
				Reason: "blocked by missing direct target " + by,
			})
			continue
		}
		runnable = append(runnable, t)
	}
	return runnable
}

// bucket splits the runnable targets into depth layers and class batches,
// in deterministic order.
func (s *Scheduler) bucket(p *plan.Plan, runnable []*target.Target, force bool) {
	byDepth := map[int]map[string][]plan.Invocation{}
	for _, t := range runnable {
		classes, ok := byDepth[t.Depth]
		if !ok {
			classes = map[string][]plan.Invocation{}
			byDepth[t.Depth] = classes
		}
		classes[t.Class] = append(classes[t.Class], plan.Invocation{
			ModuleDir: t.ModuleDir,
			Target:    t.Name,
			Force:     force,
		})
	}

	depths := make([]int, 0, len(byDepth))
	for d := range byDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)

	for _, d := range depths {
		classes := byDepth[d]
		keys := make([]string, 0, len(classes))
		for c := range classes {
			keys = append(keys, c)
		}
		sort.Strings(keys)

		layer := plan.Layer{Depth: d}
		for _, class := range keys {
			invs := classes[class]
			sort.Slice(invs, func(i, j int) bool {
				if invs[i].ModuleDir != invs[j].ModuleDir {
					return invs[i].ModuleDir < invs[j].ModuleDir
				}
				return invs[i].Target < invs[j].Target
			})
			layer.Batches = append(layer.Batches, plan.Batch{
				Class:       class,
				Limit:       s.cfg.Jobs(class),
				JobsArg:     s.jobsArg(class),
				Invocations: invs,
			})
		}
		p.Layers = append(p.Layers, layer)
	}
}

// jobsArg picks the parallel runner's -j argument for a class: an explicit
// configured ceiling wins, a class key that is itself a valid jobs spec
// passes through, anything else falls back to the effective ceiling.
func (s *Scheduler) jobsArg(class string) string {
	if n, ok := s.cfg.Classes[class]; ok {
		return strconv.Itoa(n)
	}
	if jobsSpecRe.MatchString(class) {
		return class
	}
	return strconv.Itoa(s.cfg.Jobs(class))
}
