package armorch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"
)

// entry is the canonical occurrence of a node inside one resolution graph.
type entry struct {
	node  *Node
	index int
	deps  []*entry
	layer int

	// guarded by resolutionGraph.mu
	state    State
	result   any
	err      error
	upstream string

	closure map[*entry]struct{}
}

func (e *entry) key() string  { return e.node.key }
func (e *entry) name() string { return e.node.name }

// resolutionGraph is the flattened, validated graph built for a single Create call.
type resolutionGraph struct {
	roots   []*entry
	entries []*entry
	byKey   map[string]*entry
	byEquiv map[string]*entry
	layers  [][]*entry

	mu sync.Mutex
}

func buildGraph(ctx context.Context, roots []*Node) (*resolutionGraph, error) {
	g := &resolutionGraph{
		byKey:   make(map[string]*entry),
		byEquiv: make(map[string]*entry),
	}
	seen := make(map[*Node]struct{})
	for _, root := range roots {
		if root == nil {
			return nil, errors.New("create: root node is nil")
		}
		e, err := g.visit(ctx, root, seen)
		if err != nil {
			return nil, err
		}
		if !containsEntry(g.roots, e) {
			g.roots = append(g.roots, e)
		}
	}
	if err := g.detectCycle(); err != nil {
		return nil, err
	}
	g.assignLayers()
	return g, nil
}

// visit flattens n and everything reachable from it. Nodes sharing an
// equivalence key collapse into the first one discovered; the dependencies of
// later aliases are merged into it.
func (g *resolutionGraph) visit(ctx context.Context, n *Node, seen map[*Node]struct{}) (*entry, error) {
	if _, ok := seen[n]; ok {
		return g.byKey[n.key], nil
	}
	seen[n] = struct{}{}

	canonical := g.canonicalFor(n)
	if canonical == nil {
		canonical = &entry{node: n, index: len(g.entries)}
		g.entries = append(g.entries, canonical)
		if eq := n.EquivalenceKey(); eq != "" {
			g.byEquiv[eq] = canonical
		}
		if p, ok := n.task.(Preparer); ok {
			if err := p.Prepare(ctx, n); err != nil {
				return nil, &PrepareError{Name: n.name, Err: err}
			}
		}
	}
	g.byKey[n.key] = canonical

	deps, postRun := n.snapshot()
	for _, dep := range deps {
		de, err := g.visit(ctx, dep, seen)
		if err != nil {
			return nil, err
		}
		if !containsEntry(canonical.deps, de) {
			canonical.deps = append(canonical.deps, de)
		}
	}
	for _, dependent := range postRun {
		if _, err := g.visit(ctx, dependent, seen); err != nil {
			return nil, err
		}
	}
	return canonical, nil
}

func (g *resolutionGraph) canonicalFor(n *Node) *entry {
	if e, ok := g.byKey[n.key]; ok {
		return e
	}
	if eq := n.EquivalenceKey(); eq != "" {
		return g.byEquiv[eq]
	}
	return nil
}

func (g *resolutionGraph) detectCycle() error {
	_, err := sortDependenciesFirst(g.entries, func(e *entry) []*entry { return e.deps }, (*entry).name)
	return err
}

func (g *resolutionGraph) assignLayers() {
	done := make(map[*entry]bool, len(g.entries))
	var layerOf func(e *entry) int
	layerOf = func(e *entry) int {
		if done[e] {
			return e.layer
		}
		layer := 0
		for _, dep := range e.deps {
			if l := layerOf(dep) + 1; l > layer {
				layer = l
			}
		}
		e.layer = layer
		done[e] = true
		return layer
	}

	depth := 0
	for _, e := range g.entries {
		if l := layerOf(e); l+1 > depth {
			depth = l + 1
		}
	}
	g.layers = make([][]*entry, depth)
	for _, e := range g.entries {
		g.layers[e.layer] = append(g.layers[e.layer], e)
	}
	for _, layer := range g.layers {
		sort.SliceStable(layer, func(i, j int) bool { return layer[i].index < layer[j].index })
	}
}

// layerNames groups node names by dependency depth: every node depends only on
// nodes of earlier layers.
func (g *resolutionGraph) layerNames() [][]string {
	out := make([][]string, len(g.layers))
	for i, layer := range g.layers {
		for _, e := range layer {
			out[i] = append(out[i], e.name())
		}
	}
	return out
}

func (g *resolutionGraph) resolve(ctx context.Context, cfg createConfig) {
	log := slogcontext.FromCtx(ctx)
	terminated := false

	for i, layer := range g.layers {
		runnable := make([]*entry, 0, len(layer))
		for _, e := range layer {
			if skip := g.skipReason(ctx, e, terminated); skip != nil {
				g.finish(e, StateSkipped, nil, skip)
				log.DebugContext(ctx, "node skipped", "node", e.name(), "reason", skip.Error())
				continue
			}
			runnable = append(runnable, e)
		}

		if cfg.async {
			var eg errgroup.Group
			if cfg.concurrency > 0 {
				eg.SetLimit(cfg.concurrency)
			}
			for _, e := range runnable {
				eg.Go(func() error {
					g.execute(ctx, e)
					return nil
				})
			}
			_ = eg.Wait()
		} else {
			for _, e := range runnable {
				g.execute(ctx, e)
			}
		}

		if cfg.strategy == TerminateOnInProgressTasksCompletion && !terminated && g.anyFailed(layer) {
			terminated = true
			log.InfoContext(ctx, "terminating after failure", "layer", i)
		}
	}
}

func (g *resolutionGraph) skipReason(ctx context.Context, e *entry, terminated bool) *SkippedError {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, dep := range e.deps {
		switch dep.state {
		case StateResolved:
			continue
		case StateFailed:
			return &SkippedError{Key: e.key(), Name: e.name(), Upstream: dep.name(), Cause: dep.err}
		default:
			upstream := dep.upstream
			var cause error
			var skipped *SkippedError
			if errors.As(dep.err, &skipped) {
				cause = skipped.Cause
			}
			return &SkippedError{Key: e.key(), Name: e.name(), Upstream: upstream, Cause: cause}
		}
	}
	if err := ctx.Err(); err != nil {
		return &SkippedError{Key: e.key(), Name: e.name(), Cause: context.Cause(ctx)}
	}
	if terminated {
		return &SkippedError{Key: e.key(), Name: e.name(), Cause: ErrCancelled}
	}
	return nil
}

func (g *resolutionGraph) execute(ctx context.Context, e *entry) {
	log := slogcontext.FromCtx(ctx).With("node", e.name())

	if !g.advance(e, StateResolving) {
		return
	}
	log.DebugContext(ctx, "node resolving")

	result, err := g.invoke(ctx, e)
	if err != nil {
		log.WarnContext(ctx, "node failed", "error", err)
		g.finish(e, StateFailed, nil, &NodeExecutionError{Key: e.key(), Name: e.name(), Err: err})
		return
	}
	log.DebugContext(ctx, "node resolved")
	g.finish(e, StateResolved, result, nil)
}

func (g *resolutionGraph) invoke(ctx context.Context, e *entry) (result any, err error) {
	if e.node.task == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.node.task.Create(ctx, &lookup{graph: g, from: e})
}

// advance moves e to next. Only Pending -> Resolving is accepted, which
// guarantees a task is entered at most once per call.
func (g *resolutionGraph) advance(e *entry, next State) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e.state != StatePending || next != StateResolving {
		return false
	}
	e.state = next
	return true
}

func (g *resolutionGraph) finish(e *entry, state State, result any, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case state == StateSkipped && e.state == StatePending:
	case (state == StateResolved || state == StateFailed) && e.state == StateResolving:
	default:
		panic(fmt.Sprintf("armorch: invalid transition of %s from %s to %s", e.name(), e.state, state))
	}
	e.state = state
	e.result = result
	e.err = err
	switch state {
	case StateFailed:
		e.upstream = e.name()
	case StateSkipped:
		var skipped *SkippedError
		if errors.As(err, &skipped) {
			e.upstream = skipped.Upstream
		}
	}
}

func (g *resolutionGraph) anyFailed(layer []*entry) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range layer {
		if e.state == StateFailed {
			return true
		}
	}
	return false
}

func (g *resolutionGraph) report() *Report {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := &Report{index: make(map[string]int, len(g.byKey))}
	for _, layer := range g.layers {
		for _, e := range layer {
			r.index[e.key()] = len(r.outcomes)
			r.outcomes = append(r.outcomes, Outcome{
				Key:    e.key(),
				Name:   e.name(),
				State:  e.state,
				Result: e.result,
				Err:    e.err,
			})
		}
	}
	for key, e := range g.byKey {
		r.index[key] = r.index[e.key()]
	}
	for _, root := range g.roots {
		r.roots = append(r.roots, r.index[root.key()])
	}
	return r
}

// transitive returns every entry e depends on, directly or not.
func (g *resolutionGraph) transitive(e *entry) map[*entry]struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e.closure != nil {
		return e.closure
	}
	closure := make(map[*entry]struct{})
	stack := append([]*entry(nil), e.deps...)
	for len(stack) > 0 {
		last := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := closure[last]; ok {
			continue
		}
		closure[last] = struct{}{}
		stack = append(stack, last.deps...)
	}
	e.closure = closure
	return closure
}

type lookup struct {
	graph *resolutionGraph
	from  *entry
}

func (l *lookup) Result(key string) (any, error) {
	target, ok := l.graph.byKey[key]
	if !ok {
		return nil, DependencyNotFoundError{From: l.from.name(), To: key}
	}
	if _, ok := l.graph.transitive(l.from)[target]; !ok {
		return nil, DependencyNotFoundError{From: l.from.name(), To: target.name()}
	}

	l.graph.mu.Lock()
	defer l.graph.mu.Unlock()
	if target.state != StateResolved {
		return nil, fmt.Errorf("dependency %s is %s", target.name(), target.state)
	}
	return target.result, nil
}

// ResultAs is a typed wrapper around Lookup.Result.
func ResultAs[T any](l Lookup, key string) (T, error) {
	var zero T
	v, err := l.Result(key)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, TypeMismatchError{
			Key:      key,
			Expected: reflect.TypeOf((*T)(nil)).Elem().String(),
			Actual:   fmt.Sprintf("%T", v),
		}
	}
	return typed, nil
}

func containsEntry(entries []*entry, target *entry) bool {
	for _, e := range entries {
		if e == target {
			return true
		}
	}
	return false
}
