package armorch

import (
	"context"
	"fmt"

	slogcontext "github.com/veqryn/slog-context"
)

// TerminateStrategy decides what happens to not-yet-started nodes after a
// node fails.
type TerminateStrategy int

const (
	// TerminateOnHittingLCATask skips only the nodes that depend, directly or
	// transitively, on a failed node. Independent branches keep running.
	TerminateOnHittingLCATask TerminateStrategy = iota
	// TerminateOnInProgressTasksCompletion lets nodes already running finish,
	// then skips everything that has not started.
	TerminateOnInProgressTasksCompletion
)

func (s TerminateStrategy) String() string {
	switch s {
	case TerminateOnHittingLCATask:
		return "lca"
	case TerminateOnInProgressTasksCompletion:
		return "in-progress"
	default:
		return "unknown"
	}
}

// ParseTerminateStrategy is the inverse of TerminateStrategy.String.
func ParseTerminateStrategy(s string) (TerminateStrategy, error) {
	switch s {
	case "", "lca":
		return TerminateOnHittingLCATask, nil
	case "in-progress":
		return TerminateOnInProgressTasksCompletion, nil
	default:
		return 0, fmt.Errorf("unknown terminate strategy %q", s)
	}
}

type createConfig struct {
	async       bool
	concurrency int
	strategy    TerminateStrategy
}

// CreateOption configures a Create call.
type CreateOption func(*createConfig)

// WithConcurrency caps the number of tasks running at once in async mode.
// n <= 0 means unlimited.
func WithConcurrency(n int) CreateOption {
	return func(c *createConfig) {
		c.concurrency = n
	}
}

func WithTerminateStrategy(s TerminateStrategy) CreateOption {
	return func(c *createConfig) {
		c.strategy = s
	}
}

// AsyncResult is delivered once by CreateAsync.
type AsyncResult struct {
	Report *Report
	Err    error
}

// Create resolves root and all of its transitive dependencies, one node at a
// time, dependencies first. Each node's task runs at most once.
//
// The returned error is non-nil only when the graph itself is invalid (cycle,
// nil root, failed prepare), in which case no task has run. Node failures are
// reported in the Report.
func Create(ctx context.Context, root *Node, opts ...CreateOption) (*Report, error) {
	return CreateAll(ctx, []*Node{root}, opts...)
}

// CreateAll is Create for several roots sharing one graph.
func CreateAll(ctx context.Context, roots []*Node, opts ...CreateOption) (*Report, error) {
	return run(ctx, roots, false, opts)
}

// CreateAsync is Create with the independent nodes of every layer running
// concurrently. The channel receives exactly one result and is then closed.
func CreateAsync(ctx context.Context, root *Node, opts ...CreateOption) <-chan AsyncResult {
	return CreateAllAsync(ctx, []*Node{root}, opts...)
}

func CreateAllAsync(ctx context.Context, roots []*Node, opts ...CreateOption) <-chan AsyncResult {
	ch := make(chan AsyncResult, 1)
	go func() {
		defer close(ch)
		report, err := run(ctx, roots, true, opts)
		ch <- AsyncResult{Report: report, Err: err}
	}()
	return ch
}

// Plan flattens and validates the graph of root without running any task and
// returns node names grouped by execution layer.
func Plan(ctx context.Context, root *Node) ([][]string, error) {
	g, err := buildGraph(ctx, []*Node{root})
	if err != nil {
		return nil, err
	}
	return g.layerNames(), nil
}

func run(ctx context.Context, roots []*Node, async bool, opts []CreateOption) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := createConfig{async: async}
	for _, opt := range opts {
		opt(&cfg)
	}

	log := slogcontext.FromCtx(ctx)
	g, err := buildGraph(ctx, roots)
	if err != nil {
		log.ErrorContext(ctx, "invalid resource graph", "error", err)
		return nil, err
	}
	log.DebugContext(ctx, "resolving resource graph",
		"nodes", len(g.entries), "layers", len(g.layers), "async", async, "strategy", cfg.strategy.String())

	g.resolve(ctx, cfg)

	report := g.report()
	if failed := len(report.Failed()); failed > 0 {
		log.WarnContext(ctx, "resource graph finished with failures",
			"failed", failed, "skipped", len(report.Skipped()))
	}
	return report, nil
}
