package target

// ComputeDepths assigns topological depths to the given targets and
// everything reachable through their dependency edges. It uses a classic
// depth-first search with three node colors: white (unvisited), grey (on
// the current recursion stack) and black (finished, depth assigned).
// Hitting a grey node means the dependency relation has no finite depth,
// which is reported as a CyclicDependencyError naming the cycle.
//
// The computation is idempotent: depths are recomputed from scratch on each
// call, so it can be rerun whenever new modules are linked into the graph.
func ComputeDepths(targets []*Target) error {
	const (
		white = iota
		grey
		black
	)

	color := make(map[*Target]int)
	var stack []string

	var visit func(t *Target) error
	visit = func(t *Target) error {
		switch color[t] {
		case black:
			return nil
		case grey:
			return &CyclicDependencyError{Chain: append(append([]string{}, stack...), t.ID())}
		}

		color[t] = grey
		stack = append(stack, t.ID())

		depth := 0
		for _, dep := range t.Depends {
			if err := visit(dep); err != nil {
				return err
			}
			if dep.Depth+1 > depth {
				depth = dep.Depth + 1
			}
		}

		stack = stack[:len(stack)-1]
		color[t] = black
		t.Depth = depth
		return nil
	}

	for _, t := range targets {
		if err := visit(t); err != nil {
			return err
		}
	}
	return nil
}
