package armorch

import "errors"

// State is the lifecycle state of a node within one Create call.
type State int

const (
	StatePending State = iota
	StateResolving
	StateResolved
	StateFailed
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateFailed:
		return "failed"
	case StateSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the terminal state of one node.
type Outcome struct {
	Key    string
	Name   string
	State  State
	Result any
	Err    error
}

// Report holds the outcome of every node touched by a Create call, in
// topological order.
type Report struct {
	outcomes []Outcome
	index    map[string]int
	roots    []int
}

// Outcomes returns all outcomes, dependencies first.
func (r *Report) Outcomes() []Outcome {
	return append([]Outcome(nil), r.outcomes...)
}

// Root returns the outcome of the first root node.
func (r *Report) Root() Outcome {
	if len(r.roots) == 0 {
		return Outcome{}
	}
	return r.outcomes[r.roots[0]]
}

func (r *Report) Roots() []Outcome {
	out := make([]Outcome, 0, len(r.roots))
	for _, i := range r.roots {
		out = append(out, r.outcomes[i])
	}
	return out
}

// Outcome returns the outcome for key. Keys of nodes merged by equivalence
// return the outcome of the node they were merged into.
func (r *Report) Outcome(key string) (Outcome, bool) {
	i, ok := r.index[key]
	if !ok {
		return Outcome{}, false
	}
	return r.outcomes[i], true
}

// Result returns the result of a resolved node.
func (r *Report) Result(key string) (any, bool) {
	o, ok := r.Outcome(key)
	if !ok || o.State != StateResolved {
		return nil, false
	}
	return o.Result, true
}

func (r *Report) Failed() []Outcome {
	return r.filter(StateFailed)
}

func (r *Report) Skipped() []Outcome {
	return r.filter(StateSkipped)
}

// Succeeded reports whether every node resolved.
func (r *Report) Succeeded() bool {
	for _, o := range r.outcomes {
		if o.State != StateResolved {
			return false
		}
	}
	return true
}

// Err joins the errors of failed nodes, followed by those of skipped nodes
// that were not skipped because of a failure.
func (r *Report) Err() error {
	var errs []error
	for _, o := range r.outcomes {
		if o.State == StateFailed {
			errs = append(errs, o.Err)
		}
	}
	for _, o := range r.outcomes {
		var skipped *SkippedError
		if o.State == StateSkipped && errors.As(o.Err, &skipped) && skipped.Upstream == "" {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}

func (r *Report) filter(state State) []Outcome {
	var out []Outcome
	for _, o := range r.outcomes {
		if o.State == state {
			out = append(out, o)
		}
	}
	return out
}
