package build

import "fmt"

// MissingPrerequisiteError reports a non-recursive build attempted while a
// prerequisite is stale or missing. Recursion into prerequisites is opt-in,
// never implicit.
type MissingPrerequisiteError struct {
	ModuleDir    string
	Target       string
	Prerequisite string
}

// Error implements the error interface.
func (e *MissingPrerequisiteError) Error() string {
	return fmt.Sprintf("module %s: target %q: prerequisite %s is not up to date (build it first or pass recurse)",
		e.ModuleDir, e.Target, e.Prerequisite)
}

// DirectTargetNotBuildableError reports a build invoked on a direct target
// whose artifact is missing. Direct targets have no build action.
type DirectTargetNotBuildableError struct {
	ModuleDir string
	Target    string
	Path      string
}

// Error implements the error interface.
func (e *DirectTargetNotBuildableError) Error() string {
	return fmt.Sprintf("module %s: direct target %q is missing at %s and cannot be built",
		e.ModuleDir, e.Target, e.Path)
}

// BuildActionFailedError wraps a failure of the declared build action.
type BuildActionFailedError struct {
	ModuleDir string
	Target    string
	Err       error
}

// Error implements the error interface.
func (e *BuildActionFailedError) Error() string {
	return fmt.Sprintf("module %s: target %q: build action failed: %v", e.ModuleDir, e.Target, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *BuildActionFailedError) Unwrap() error {
	return e.Err
}

// DirectTargetNotCleanableError reports a clean request aimed at a direct
// target. Direct artifacts are inputs the engine cannot regenerate, so it
// refuses to delete them.
type DirectTargetNotCleanableError struct {
	ModuleDir string
	Target    string
}

// Error implements the error interface.
func (e *DirectTargetNotCleanableError) Error() string {
	return fmt.Sprintf("module %s: direct target %q is not engine-managed and will not be removed",
		e.ModuleDir, e.Target)
}
