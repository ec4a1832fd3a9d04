package target

// State is the derived, per-invocation state of a target. It is recomputed
// from filesystem and marker comparison on every query and never persisted.
type State int

const (
	StateUnknown State = iota
	StateUpToDate
	StateStale
	StateBuilding
	StateTouched
)

// String renders the state for logs and status output.
func (s State) String() string {
	switch s {
	case StateUpToDate:
		return "up_to_date"
	case StateStale:
		return "stale"
	case StateBuilding:
		return "building"
	case StateTouched:
		return "touched"
	default:
		return "unknown"
	}
}
