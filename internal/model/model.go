// Package model defines the format-agnostic declaration model produced by
// the loader. A ModuleDecl is the single source of truth the pipeline and
// target packages are built from; nothing in this package touches the
// filesystem or HCL.
package model

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Kind distinguishes pre-existing artifacts from derived ones.
type Kind string

const (
	// KindDirect marks a pre-existing artifact. Direct targets are never
	// built and are up to date exactly when present.
	KindDirect Kind = "direct"

	// KindIndirect marks a derived artifact with a build action and a
	// dependency set.
	KindIndirect Kind = "indirect"
)

// ParseKind maps a declaration string to a Kind. The empty string defaults
// to indirect.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "indirect":
		return KindIndirect, nil
	case "direct":
		return KindDirect, nil
	default:
		return "", fmt.Errorf("unknown target kind %q (want direct or indirect)", s)
	}
}

// ModuleDecl is the declarative content of one module directory.
type ModuleDecl struct {
	// Dir is the canonical directory the declaration was loaded from.
	Dir string

	// Name is the module name: the directory base name with its label
	// suffix stripped ("NN.big" -> "NN").
	Name string

	// Label distinguishes sibling variants of the same module name
	// ("NN.big" -> "big"). Empty when the directory has no suffix.
	Label string

	// Root marks this module as the pipeline root; ancestor resolution
	// stops here.
	Root bool

	// ExtraGitignore lists additional patterns appended when the module's
	// .gitignore is regenerated from its targets.
	ExtraGitignore []string

	// Targets preserves declaration order.
	Targets []*TargetDecl
}

// TargetDecl is one declared target before graph linking.
type TargetDecl struct {
	Name           string
	Kind           Kind
	Output         string // artifact path, relative to the module dir
	Command        string // build action, empty for direct targets
	DependsOn      []TargetRef
	Parallelizable string // opaque scheduling class key
	Primary        bool
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate checks declaration-level invariants that do not need the graph:
// unique well-formed names, direct targets carry no command or dependencies,
// indirect targets carry a command.
func (d *ModuleDecl) Validate() error {
	if err := validation.ValidateStruct(d,
		validation.Field(&d.Dir, validation.Required),
		validation.Field(&d.Name, validation.Required),
	); err != nil {
		return err
	}

	seen := make(map[string]bool, len(d.Targets))
	for _, t := range d.Targets {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("module %s: target %q: %w", d.Dir, t.Name, err)
		}
		if seen[t.Name] {
			return fmt.Errorf("module %s: duplicate target name %q", d.Dir, t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// Validate checks a single target declaration.
func (t *TargetDecl) Validate() error {
	if err := validation.ValidateStruct(t,
		validation.Field(&t.Name, validation.Required, validation.Match(nameRe)),
		validation.Field(&t.Kind, validation.Required, validation.In(KindDirect, KindIndirect)),
		validation.Field(&t.Output, validation.Required),
		validation.Field(&t.Parallelizable, validation.Required),
	); err != nil {
		return err
	}

	switch t.Kind {
	case KindDirect:
		if t.Command != "" {
			return fmt.Errorf("direct target cannot declare a command")
		}
		if len(t.DependsOn) > 0 {
			return fmt.Errorf("direct target cannot declare dependencies")
		}
	case KindIndirect:
		if t.Command == "" {
			return fmt.Errorf("indirect target must declare a command")
		}
	}
	return nil
}
