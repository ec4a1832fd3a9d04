package target

import "strings"

// CyclicDependencyError reports a dependency declaration with no finite
// depth. It is detected eagerly at link time and aborts the whole requested
// operation.
type CyclicDependencyError struct {
	// Chain lists target IDs from the first node of the cycle back to
	// itself.
	Chain []string
}

// Error implements the error interface.
func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Chain, " -> ")
}
