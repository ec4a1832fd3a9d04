// Package schema defines the HCL shapes of a module declaration file. The
// loader decodes into these structs and translates them into the
// format-agnostic model; nothing else imports this package.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// PipelineBlock is the optional `pipeline` block of a declaration file. Its
// presence with root = true marks the directory as the pipeline root.
type PipelineBlock struct {
	Root           bool     `hcl:"root,optional"`
	ExtraGitignore []string `hcl:"extra_gitignore,optional"`
}

// TargetBlock is one `target "<name>" { ... }` block.
//
// Output and Command stay as expressions so the loader can evaluate them
// against the module-scoped variables (module.dir, module.name,
// module.label, target.name).
type TargetBlock struct {
	Name           string         `hcl:"name,label"`
	Kind           string         `hcl:"kind,optional"`
	Output         hcl.Expression `hcl:"output,optional"`
	Command        hcl.Expression `hcl:"command,optional"`
	DependsOn      []string       `hcl:"depends_on,optional"`
	Parallelizable string         `hcl:"parallelizable,optional"`
	Primary        bool           `hcl:"primary,optional"`
}

// ModuleFile is the top-level structure of a module declaration file.
type ModuleFile struct {
	Pipeline *PipelineBlock `hcl:"pipeline,block"`
	Targets  []*TargetBlock `hcl:"target,block"`
	Body     hcl.Body       `hcl:",remain"`
}
