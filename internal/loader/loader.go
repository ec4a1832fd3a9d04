// Package loader parses module declaration files and translates them into
// the format-agnostic model. It is the only package that knows the
// declarations are HCL.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/pipeforge/internal/config"
	"github.com/vk/pipeforge/internal/ctxlog"
	"github.com/vk/pipeforge/internal/fsutil"
	"github.com/vk/pipeforge/internal/model"
	"github.com/vk/pipeforge/internal/schema"
)

// Loader reads module declaration files.
type Loader struct {
	cfg    config.Config
	parser *hclparse.Parser
}

// New returns a Loader for the given engine configuration.
func New(cfg config.Config) *Loader {
	return &Loader{
		cfg:    cfg,
		parser: hclparse.NewParser(),
	}
}

// DeclPath returns the declaration file path for a module directory.
func (l *Loader) DeclPath(dir string) string {
	return filepath.Join(dir, l.cfg.DeclFile)
}

// Exists reports whether dir carries a module declaration.
func (l *Loader) Exists(dir string) bool {
	return fsutil.FileExists(l.DeclPath(dir))
}

// Load parses the declaration in dir and returns the validated module
// declaration. Loading never triggers a build and has no side effects
// beyond parsing.
func (l *Loader) Load(ctx context.Context, dir string) (*model.ModuleDecl, error) {
	logger := ctxlog.FromContext(ctx)
	declPath := l.DeclPath(dir)
	logger.Debug("loading module declaration", "path", declPath)

	file, diags := l.parser.ParseHCLFile(declPath)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse %s: %w", declPath, diags)
	}

	var mf schema.ModuleFile
	if diags := gohcl.DecodeBody(file.Body, nil, &mf); diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode %s: %w", declPath, diags)
	}

	decl, err := l.translate(dir, &mf)
	if err != nil {
		return nil, err
	}
	if err := decl.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("module declaration loaded", "module", decl.Dir, "targets", len(decl.Targets))
	return decl, nil
}

// translate converts the HCL-specific schema into the agnostic model,
// evaluating output/command expressions against module-scoped variables.
func (l *Loader) translate(dir string, mf *schema.ModuleFile) (*model.ModuleDecl, error) {
	name, label := SplitLabel(filepath.Base(dir))

	decl := &model.ModuleDecl{
		Dir:   dir,
		Name:  name,
		Label: label,
	}
	if mf.Pipeline != nil {
		decl.Root = mf.Pipeline.Root
		decl.ExtraGitignore = mf.Pipeline.ExtraGitignore
	}

	for _, tb := range mf.Targets {
		td, err := l.translateTarget(dir, name, label, tb)
		if err != nil {
			return nil, fmt.Errorf("module %s: target %q: %w", dir, tb.Name, err)
		}
		decl.Targets = append(decl.Targets, td)
	}
	return decl, nil
}

func (l *Loader) translateTarget(dir, modName, modLabel string, tb *schema.TargetBlock) (*model.TargetDecl, error) {
	kind, err := model.ParseKind(tb.Kind)
	if err != nil {
		return nil, err
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"module": cty.ObjectVal(map[string]cty.Value{
				"dir":   cty.StringVal(dir),
				"name":  cty.StringVal(modName),
				"label": cty.StringVal(modLabel),
			}),
			"target": cty.ObjectVal(map[string]cty.Value{
				"name": cty.StringVal(tb.Name),
			}),
		},
	}

	output, err := evalString(tb.Output, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	if output == "" {
		output = tb.Name
	}

	command, err := evalString(tb.Command, evalCtx)
	if err != nil {
		return nil, fmt.Errorf("command: %w", err)
	}

	class := tb.Parallelizable
	if class == "" {
		class = l.cfg.DefaultClass
	}

	td := &model.TargetDecl{
		Name:           tb.Name,
		Kind:           kind,
		Output:         output,
		Command:        command,
		Parallelizable: class,
		Primary:        tb.Primary,
	}
	for _, ref := range tb.DependsOn {
		parsed, err := model.ParseTargetRef(ref)
		if err != nil {
			return nil, err
		}
		td.DependsOn = append(td.DependsOn, parsed)
	}
	return td, nil
}

// evalString evaluates an optional string expression. A missing or null
// expression yields "".
func evalString(expr hcl.Expression, evalCtx *hcl.EvalContext) (string, error) {
	if expr == nil {
		return "", nil
	}
	val, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return "", diags
	}
	if val.IsNull() {
		return "", nil
	}
	if val.Type() != cty.String {
		return "", fmt.Errorf("expected a string, got %s", val.Type().FriendlyName())
	}
	return val.AsString(), nil
}

// SplitLabel splits a module directory base name into module name and
// label: "NN.big" yields ("NN", "big"), "NN" yields ("NN", "").
func SplitLabel(base string) (name, label string) {
	if idx := strings.Index(base, "."); idx > 0 {
		return base[:idx], base[idx+1:]
	}
	return base, ""
}
