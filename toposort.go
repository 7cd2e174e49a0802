package armorch

// sortDependenciesFirst orders nodes so that every node comes after its
// dependencies, visiting roots in the given order. A cycle is reported with
// the path that closes it.
func sortDependenciesFirst[T comparable](nodes []T, deps func(T) []T, name func(T) string) ([]T, error) {
	const (
		stateNew uint8 = iota
		stateVisiting
		stateDone
	)

	state := make(map[T]uint8, len(nodes))
	stack := make([]T, 0, len(nodes))
	stackPos := make(map[T]int, len(nodes))
	sorted := make([]T, 0, len(nodes))

	cycleFrom := func(n T) error {
		pos := stackPos[n]
		path := make([]string, 0, len(stack)-pos+1)
		for _, s := range stack[pos:] {
			path = append(path, name(s))
		}
		path = append(path, name(n))
		return &CyclicDependencyError{Path: path}
	}

	var dfs func(n T) error
	dfs = func(n T) error {
		state[n] = stateVisiting
		stackPos[n] = len(stack)
		stack = append(stack, n)

		for _, dep := range deps(n) {
			switch state[dep] {
			case stateVisiting:
				return cycleFrom(dep)
			case stateNew:
				if err := dfs(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		delete(stackPos, n)
		state[n] = stateDone
		sorted = append(sorted, n)
		return nil
	}

	for _, n := range nodes {
		if state[n] == stateDone {
			continue
		}
		if err := dfs(n); err != nil {
			return nil, err
		}
	}
	return sorted, nil
}
