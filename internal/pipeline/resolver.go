package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/vk/pipeforge/internal/config"
	"github.com/vk/pipeforge/internal/ctxlog"
	"github.com/vk/pipeforge/internal/fsutil"
	"github.com/vk/pipeforge/internal/genmark"
	"github.com/vk/pipeforge/internal/loader"
	"github.com/vk/pipeforge/internal/model"
	"github.com/vk/pipeforge/internal/target"
)

// Resolver maps filesystem paths to loaded Module instances. Resolutions
// are cached by canonical path for the process lifetime (or until an
// explicit invalidation), so repeated calls with filesystem-equivalent path
// strings return the same instance.
type Resolver struct {
	cfg    config.Config
	loader *loader.Loader
	marks  *genmark.Store

	mu    sync.Mutex
	cache map[string]*Module

	// outputs maps each claimed artifact path to its owning target ID.
	// Output paths are process-wide identity; a second claimant is a
	// load-time error.
	outputs map[string]string
}

// NewResolver builds a Resolver over the given configuration and marker
// store. Each Resolver is independent; nothing is shared through globals.
func NewResolver(cfg config.Config, marks *genmark.Store) *Resolver {
	return &Resolver{
		cfg:     cfg,
		loader:  loader.New(cfg),
		marks:   marks,
		cache:   make(map[string]*Module),
		outputs: make(map[string]string),
	}
}

// Marks exposes the generation marker store the resolver's targets share.
func (r *Resolver) Marks() *genmark.Store {
	return r.marks
}

// Resolve maps a path to its module: the nearest directory at or above the
// path that carries a module declaration. Loading a module transitively
// resolves and caches its ancestors up to the pipeline root and links every
// dependency target, then recomputes topological depths across the loaded
// graph. Graph-structural problems (missing module, unknown target, cycle)
// abort the whole resolution.
func (r *Resolver) Resolve(ctx context.Context, path string) (*Module, error) {
	canon, err := fsutil.Canonicalize(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir, err := r.findModuleDir(canon)
	if err != nil {
		return nil, err
	}

	// A failed load may leave half-linked modules behind; restore the
	// cache and output registry to their pre-call state so later
	// resolutions start clean.
	snapshot := make(map[string]*Module, len(r.cache))
	for k, v := range r.cache {
		snapshot[k] = v
	}
	outSnapshot := make(map[string]string, len(r.outputs))
	for k, v := range r.outputs {
		outSnapshot[k] = v
	}

	m, err := r.resolveDir(ctx, dir)
	if err != nil {
		r.cache = snapshot
		r.outputs = outSnapshot
		return nil, err
	}

	// Depths must be acyclic-consistent after every load, and a newly
	// linked module can deepen targets loaded earlier.
	var all []*target.Target
	for _, cached := range r.cache {
		all = append(all, cached.Targets()...)
	}
	if err := target.ComputeDepths(all); err != nil {
		r.cache = snapshot
		r.outputs = outSnapshot
		return nil, err
	}
	return m, nil
}

// Invalidate drops a module from the cache along with every cached module
// that references it (through ancestry or dependency links), so the next
// resolution reloads them from disk.
func (r *Resolver) Invalidate(path string) {
	canon, err := fsutil.Canonicalize(path)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doomed := map[string]bool{canon: true}
	for changed := true; changed; {
		changed = false
		for dir, m := range r.cache {
			if doomed[dir] {
				continue
			}
			if r.references(m, doomed) {
				doomed[dir] = true
				changed = true
			}
		}
	}
	for dir := range doomed {
		if m, ok := r.cache[dir]; ok {
			for _, t := range m.Targets() {
				delete(r.outputs, t.OutputPath)
			}
		}
		delete(r.cache, dir)
	}
}

// InvalidateAll empties the cache and the output-path registry.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]*Module)
	r.outputs = make(map[string]string)
}

// IsModuleDir reports whether the exact directory carries a declaration.
func (r *Resolver) IsModuleDir(dir string) bool {
	return r.loader.Exists(dir)
}

// references reports whether m links to any module in the doomed set.
func (r *Resolver) references(m *Module, doomed map[string]bool) bool {
	for _, a := range m.ancestors {
		if doomed[a.Dir] {
			return true
		}
	}
	for _, t := range m.Targets() {
		for _, dep := range t.Depends {
			if doomed[dep.ModuleDir] {
				return true
			}
		}
	}
	return false
}

// findModuleDir walks up from path to the nearest directory carrying a
// declaration, stopping at the configured boundary. Caller holds r.mu.
func (r *Resolver) findModuleDir(path string) (string, error) {
	dir := path
	if !fsutil.IsDir(dir) {
		dir = filepath.Dir(dir)
	}

	for {
		if r.loader.Exists(dir) {
			return dir, nil
		}
		if r.atBoundary(dir) {
			return "", &ModuleNotFoundError{Path: path, Reason: "no module declaration at or above the path"}
		}
		dir = filepath.Dir(dir)
	}
}

// atBoundary reports whether upward search must stop at dir.
func (r *Resolver) atBoundary(dir string) bool {
	if dir == filepath.Dir(dir) {
		return true
	}
	return r.cfg.Boundary != "" && dir == r.cfg.Boundary
}

// resolveDir loads and links the module at the exact directory, or returns
// the cached instance. Caller holds r.mu.
func (r *Resolver) resolveDir(ctx context.Context, dir string) (*Module, error) {
	if m, ok := r.cache[dir]; ok {
		return m, nil
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("resolving module", "dir", dir)

	decl, err := r.loader.Load(ctx, dir)
	if err != nil {
		return nil, err
	}

	m := &Module{
		Dir:     dir,
		Name:    decl.Name,
		Label:   decl.Label,
		Root:    decl.Root,
		decl:    decl,
		targets: make(map[string]*target.Target, len(decl.Targets)),
	}
	for _, td := range decl.Targets {
		m.order = append(m.order, td.Name)
		t := target.New(td, dir, r.marks)
		if existing, claimed := r.outputs[t.OutputPath]; claimed && existing != t.ID() {
			return nil, &DuplicateOutputError{Path: t.OutputPath, Target: t.ID(), Existing: existing}
		}
		r.outputs[t.OutputPath] = t.ID()
		m.targets[td.Name] = t
	}

	// Cache before linking so mutually referencing modules terminate.
	r.cache[dir] = m

	if err := r.attachAncestors(ctx, m); err != nil {
		return nil, err
	}
	if err := r.linkDependencies(ctx, m, decl); err != nil {
		return nil, err
	}

	logger.Debug("module resolved", "dir", dir, "targets", len(m.order), "ancestors", len(m.ancestors))
	return m, nil
}

// attachAncestors resolves the nearest enclosing module and reuses its
// already-computed chain; the chain ends at a root-declaring module.
func (r *Resolver) attachAncestors(ctx context.Context, m *Module) error {
	if m.Root {
		return nil
	}

	dir := m.Dir
	for {
		if r.atBoundary(dir) {
			return &ModuleNotFoundError{Path: m.Dir, Reason: "no pipeline root declared above the module"}
		}
		dir = filepath.Dir(dir)
		if r.loader.Exists(dir) {
			break
		}
	}

	parent, err := r.resolveDir(ctx, dir)
	if err != nil {
		return err
	}
	m.ancestors = append(parent.Ancestors(), parent)
	return nil
}

// linkDependencies resolves every declared dependency reference to its
// target instance, loading referenced modules as needed.
func (r *Resolver) linkDependencies(ctx context.Context, m *Module, decl *model.ModuleDecl) error {
	for _, td := range decl.Targets {
		t := m.targets[td.Name]
		for _, ref := range td.DependsOn {
			dep, err := r.lookupRef(ctx, m, ref.ModulePath, ref.Name)
			if err != nil {
				return fmt.Errorf("module %s: target %q: dependency %q: %w", m.Dir, td.Name, ref.String(), err)
			}
			t.Depends = append(t.Depends, dep)
		}
	}
	return nil
}

// lookupRef resolves one dependency reference relative to the owning module.
func (r *Resolver) lookupRef(ctx context.Context, m *Module, modulePath, name string) (*target.Target, error) {
	owner := m
	if modulePath != "" {
		depDir, err := fsutil.Canonicalize(filepath.Join(m.Dir, modulePath))
		if err != nil {
			return nil, err
		}
		if !r.loader.Exists(depDir) {
			return nil, &ModuleNotFoundError{Path: depDir, Reason: "referenced directory carries no module declaration"}
		}
		owner, err = r.resolveDir(ctx, depDir)
		if err != nil {
			return nil, err
		}
	}
	return owner.Target(name)
}
