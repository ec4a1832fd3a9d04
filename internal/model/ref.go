package model

import (
	"fmt"
	"strings"
)

// TargetRef names a dependency target, possibly in another module.
//
// The textual form is "<relative-module-path>:<target-name>" where the path
// is relative to the referencing module's directory. A bare name refers to a
// target in the same module.
type TargetRef struct {
	// ModulePath is the referenced module's directory relative to the
	// referencing module. Empty means the same module.
	ModulePath string

	// Name is the target name within the referenced module.
	Name string
}

// ParseTargetRef parses the textual reference form.
func ParseTargetRef(s string) (TargetRef, error) {
	if s == "" {
		return TargetRef{}, fmt.Errorf("empty target reference")
	}

	idx := strings.LastIndex(s, ":")
	if idx == -1 {
		return TargetRef{Name: s}, nil
	}

	ref := TargetRef{ModulePath: s[:idx], Name: s[idx+1:]}
	if ref.Name == "" {
		return TargetRef{}, fmt.Errorf("target reference %q has no target name", s)
	}
	return ref, nil
}

// String renders the canonical textual form.
func (r TargetRef) String() string {
	if r.ModulePath == "" {
		return r.Name
	}
	return r.ModulePath + ":" + r.Name
}
