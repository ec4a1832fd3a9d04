package pipeline

import "fmt"

// ModuleNotFoundError reports that a path resolves to no module
// declaration within the configured search boundary.
type ModuleNotFoundError struct {
	Path   string
	Reason string
}

// Error implements the error interface.
func (e *ModuleNotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("no module found for path %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("no module found for path %s", e.Path)
}

// DuplicateOutputError reports two distinct targets claiming the same
// artifact path. Output paths are process-wide target identity: the build
// engine serializes builds per output path, so a collision would let one
// target's build silently satisfy the other's.
type DuplicateOutputError struct {
	Path     string
	Target   string
	Existing string
}

// Error implements the error interface.
func (e *DuplicateOutputError) Error() string {
	return fmt.Sprintf("output path %s is declared by both %s and %s", e.Path, e.Existing, e.Target)
}

// UnknownTargetError reports a target name not declared on a resolved
// module.
type UnknownTargetError struct {
	ModuleDir string
	Name      string
}

// Error implements the error interface.
func (e *UnknownTargetError) Error() string {
	return fmt.Sprintf("module %s declares no target %q", e.ModuleDir, e.Name)
}
