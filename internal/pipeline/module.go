// Package pipeline maps the directory tree onto loaded modules. A Module is
// one directory owning named targets; the Resolver lazily loads and caches
// modules by canonical path, walking parent directories to attach each
// module's ancestor chain up to the pipeline root.
package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/vk/pipeforge/internal/model"
	"github.com/vk/pipeforge/internal/target"
)

// Module is a node bound to one directory. It is immutable after loading.
type Module struct {
	// Dir is the canonical module directory, the cache key.
	Dir string

	// Name and Label come from the directory base name ("NN.big" is module
	// "NN" labelled "big").
	Name  string
	Label string

	// Root marks the pipeline root; ancestor search stops here.
	Root bool

	decl      *model.ModuleDecl
	order     []string
	targets   map[string]*target.Target
	ancestors []*Module
}

// Target returns the named target or an UnknownTargetError.
func (m *Module) Target(name string) (*target.Target, error) {
	t, ok := m.targets[name]
	if !ok {
		return nil, &UnknownTargetError{ModuleDir: m.Dir, Name: name}
	}
	return t, nil
}

// Targets returns every declared target in declaration order.
func (m *Module) Targets() []*target.Target {
	out := make([]*target.Target, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.targets[name])
	}
	return out
}

// TargetNames returns the declared target names in declaration order.
func (m *Module) TargetNames() []string {
	return append([]string(nil), m.order...)
}

// PrimaryTargetNames returns the names flagged primary, in declaration
// order. The subset is used purely for presentation and selection.
func (m *Module) PrimaryTargetNames() []string {
	var names []string
	for _, name := range m.order {
		if m.targets[name].Primary {
			names = append(names, name)
		}
	}
	return names
}

// Ancestors returns the chain of ancestor modules, root first, excluding m.
func (m *Module) Ancestors() []*Module {
	return append([]*Module(nil), m.ancestors...)
}

// Pipeline returns the ancestor chain followed by m itself, root first. It
// describes provenance, not scheduling.
func (m *Module) Pipeline() []*Module {
	return append(m.Ancestors(), m)
}

// Codename is the module's directory base name.
func (m *Module) Codename() string {
	return filepath.Base(m.Dir)
}

// CodenamePipeline joins the codenames of the whole pipeline, root first.
func (m *Module) CodenamePipeline() string {
	parts := make([]string, 0, len(m.ancestors)+1)
	for _, a := range m.Pipeline() {
		parts = append(parts, a.Codename())
	}
	return strings.Join(parts, "-")
}

// ExtraGitignore returns the declaration's extra ignore patterns.
func (m *Module) ExtraGitignore() []string {
	return append([]string(nil), m.decl.ExtraGitignore...)
}
