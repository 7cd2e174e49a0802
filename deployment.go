package armorch

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	slogcontext "github.com/veqryn/slog-context"
)

type compiledNode struct {
	id   ID
	opt  any
	deps []ID
	def  compiledDefinition
}

// Deployment is a compiled set of declared resources.
// It provides:
// 1) eager dependency graph compilation and validation
// 2) apply: one resolver run creating every declared resource at most once
// 3) reverse-topological destroy
//
// A Deployment holds no resource instances; every Apply returns its own report.
type Deployment struct {
	registry *Registry

	nodes map[string]*compiledNode
	order []ID
	topo  []ID
	graph Graph
}

func NewDeployment(registry *Registry, specs []NodeSpec) (*Deployment, error) {
	if registry == nil {
		return nil, fmt.Errorf("new deployment: registry is nil")
	}

	d := &Deployment{
		registry: registry,
		nodes:    make(map[string]*compiledNode, len(specs)),
	}
	if err := d.compile(specs); err != nil {
		return nil, err
	}
	return d, nil
}

// Graph returns a compiled dependency graph snapshot.
func (d *Deployment) Graph() Graph {
	return d.graph.clone()
}

// TopoOrder returns a topological order snapshot (dependencies first).
func (d *Deployment) TopoOrder() []ID {
	order := make([]ID, len(d.topo))
	copy(order, d.topo)
	return order
}

// Has reports whether id is declared.
func (d *Deployment) Has(id ID) bool {
	_, ok := d.nodes[id.String()]
	return ok
}

// DependenciesOf returns the declared dependencies of id.
func (d *Deployment) DependenciesOf(id ID) []ID {
	n, ok := d.nodes[id.String()]
	if !ok {
		return nil
	}
	return append([]ID(nil), n.deps...)
}

type applyConfig struct {
	async   bool
	create  []CreateOption
	reuse   map[ID]any
	targets []ID
}

// ApplyOption configures Apply.
type ApplyOption func(*applyConfig)

// WithAsync runs independent resources concurrently.
func WithAsync() ApplyOption {
	return func(c *applyConfig) {
		c.async = true
	}
}

func WithCreateOptions(opts ...CreateOption) ApplyOption {
	return func(c *applyConfig) {
		c.create = append(c.create, opts...)
	}
}

// WithReuse injects results of a previous apply. Their Build is not called.
func WithReuse(results map[ID]any) ApplyOption {
	return func(c *applyConfig) {
		c.reuse = results
	}
}

// WithTargets limits the apply to ids and their dependencies.
func WithTargets(ids ...ID) ApplyOption {
	return func(c *applyConfig) {
		c.targets = append(c.targets, ids...)
	}
}

// DeploymentReport is a Report addressed by resource ID.
type DeploymentReport struct {
	*Report
	keys map[ID]string
	topo []ID
}

func (r *DeploymentReport) OutcomeOf(id ID) (Outcome, bool) {
	key, ok := r.keys[id]
	if !ok {
		return Outcome{}, false
	}
	return r.Outcome(key)
}

func (r *DeploymentReport) ResultOf(id ID) (any, bool) {
	key, ok := r.keys[id]
	if !ok {
		return nil, false
	}
	return r.Result(key)
}

// Resolved returns the results of every resolved resource.
func (r *DeploymentReport) Resolved() map[ID]any {
	out := make(map[ID]any, len(r.keys))
	for id, key := range r.keys {
		if v, ok := r.Result(key); ok {
			out[id] = v
		}
	}
	return out
}

// Apply creates all declared resources (or the targets and their dependencies).
//
// The returned error is non-nil only when no resource could be attempted.
// Per-resource failures are in the report.
func (d *Deployment) Apply(ctx context.Context, opts ...ApplyOption) (*DeploymentReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var cfg applyConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	roots := d.order
	if len(cfg.targets) > 0 {
		for _, id := range cfg.targets {
			if !d.Has(id) {
				return nil, NodeNotFoundError{ID: id}
			}
		}
		roots = cfg.targets
	}

	nodes := make(map[ID]*Node, len(d.nodes))
	keys := make(map[ID]string, len(d.nodes))
	var build func(id ID) *Node
	build = func(id ID) *Node {
		if n, ok := nodes[id]; ok {
			return n
		}
		cn := d.nodes[id.String()]
		n := NewNode(id.String(), d.taskFor(cn, keys, cfg.reuse), WithEquivalenceKey(id.String()))
		nodes[id] = n
		keys[id] = n.Key()
		for _, dep := range cn.deps {
			n.AddDependency(build(dep))
		}
		if _, reused := cfg.reuse[id]; !reused && cn.def.postRun != nil {
			n.AddPostRunDependent(postRunNode(cn, n.Key()))
		}
		return n
	}
	rootNodes := make([]*Node, 0, len(roots))
	for _, id := range roots {
		rootNodes = append(rootNodes, build(id))
	}

	log := slogcontext.FromCtx(ctx)
	log.InfoContext(ctx, "applying deployment", "resources", len(nodes), "reused", len(cfg.reuse), "async", cfg.async)

	var (
		report *Report
		err    error
	)
	if cfg.async {
		res := <-CreateAllAsync(ctx, rootNodes, cfg.create...)
		report, err = res.Report, res.Err
	} else {
		report, err = CreateAll(ctx, rootNodes, cfg.create...)
	}
	if err != nil {
		return nil, fmt.Errorf("apply deployment: %w", err)
	}

	topo := make([]ID, 0, len(keys))
	for _, id := range d.topo {
		if _, ok := keys[id]; ok {
			topo = append(topo, id)
		}
	}
	return &DeploymentReport{Report: report, keys: keys, topo: topo}, nil
}

func (d *Deployment) taskFor(cn *compiledNode, keys map[ID]string, reuse map[ID]any) Task {
	if v, ok := reuse[cn.id]; ok {
		return TaskFunc(func(context.Context, Lookup) (any, error) {
			return v, nil
		})
	}
	return TaskFunc(func(ctx context.Context, l Lookup) (any, error) {
		ctx = context.WithValue(ctx, idKey{}, cn.id)
		r := &deploymentResolver{from: cn.id, lookup: l, keys: keys}
		instance, err := cn.def.build(ctx, r, cn.opt)
		if err != nil {
			return nil, fmt.Errorf("build resource %s: %w", cn.id.String(), err)
		}
		return instance, nil
	})
}

// postRunNode runs the definition's PostRun on the result of the node keyed
// by key. Its failure does not change that node's outcome.
func postRunNode(cn *compiledNode, key string) *Node {
	return NewNode(cn.id.String()+"/post-run", TaskFunc(func(ctx context.Context, l Lookup) (any, error) {
		out, err := l.Result(key)
		if err != nil {
			return nil, err
		}
		ctx = context.WithValue(ctx, idKey{}, cn.id)
		if err := cn.def.postRun(ctx, cn.opt, out); err != nil {
			return nil, fmt.Errorf("post-run resource %s: %w", cn.id.String(), err)
		}
		return nil, nil
	}))
}

type idKey struct{}

// IDFromContext returns the ID of the declared resource being built.
// It is set on the context passed to Definition.Build and Definition.PostRun.
func IDFromContext(ctx context.Context) (ID, bool) {
	id, ok := ctx.Value(idKey{}).(ID)
	return id, ok
}

type deploymentResolver struct {
	from   ID
	lookup Lookup
	keys   map[ID]string
}

func (r *deploymentResolver) Resolve(_ context.Context, id ID) (any, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	key, ok := r.keys[id]
	if !ok {
		return nil, DependencyNotFoundError{From: r.from.String(), To: id.String()}
	}
	return r.lookup.Result(key)
}

// ResolveAs is a typed wrapper around Resolve.
func ResolveAs[T any](ctx context.Context, r Resolver, id ID) (T, error) {
	var zero T
	v, err := r.Resolve(ctx, id)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, TypeMismatchError{
			Key:      id.String(),
			Expected: reflect.TypeOf((*T)(nil)).Elem().String(),
			Actual:   fmt.Sprintf("%T", v),
		}
	}
	return typed, nil
}

type deleter interface {
	Delete(ctx context.Context) error
}

// Destroy deletes every resource resolved in report, in reverse topological order.
func (d *Deployment) Destroy(ctx context.Context, report *DeploymentReport) error {
	return d.destroy(ctx, report, nil)
}

// DestroyIDs deletes the selected resources of report in reverse topological order.
func (d *Deployment) DestroyIDs(ctx context.Context, report *DeploymentReport, ids []ID) error {
	if len(ids) == 0 {
		return nil
	}
	selected := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		if err := validateID(id); err != nil {
			return err
		}
		selected[id] = struct{}{}
	}
	return d.destroy(ctx, report, selected)
}

func (d *Deployment) destroy(ctx context.Context, report *DeploymentReport, selected map[ID]struct{}) error {
	if report == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log := slogcontext.FromCtx(ctx)

	var errs []error
	for i := len(report.topo) - 1; i >= 0; i-- {
		id := report.topo[i]
		if selected != nil {
			if _, ok := selected[id]; !ok {
				continue
			}
		}
		instance, ok := report.ResultOf(id)
		if !ok {
			continue
		}
		node := d.nodes[id.String()]
		if node == nil {
			continue
		}

		var err error
		switch {
		case node.def.deleteFn != nil:
			err = node.def.deleteFn(ctx, instance)
		default:
			if del, ok := instance.(deleter); ok {
				err = del.Delete(ctx)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("delete resource %s: %w", id.String(), err))
			continue
		}
		log.DebugContext(ctx, "resource deleted", "id", id.String())
	}
	return errors.Join(errs...)
}

func (d *Deployment) compile(specs []NodeSpec) error {
	order := make([]ID, 0, len(specs))
	for _, spec := range specs {
		id := spec.ID()
		if err := validateID(id); err != nil {
			return fmt.Errorf("compile resource %s/%s: %w", spec.Kind, spec.Name, err)
		}

		key := id.String()
		if _, exists := d.nodes[key]; exists {
			return DuplicateNodeError{ID: id}
		}

		def, ok := d.registry.get(spec.Kind)
		if !ok {
			return DefinitionNotFoundError{Kind: spec.Kind}
		}

		opt, err := def.decode(spec.Options)
		if err != nil {
			return fmt.Errorf("decode options for %s: %w", key, err)
		}
		deps, err := def.deps(opt)
		if err != nil {
			return fmt.Errorf("list deps for %s: %w", key, err)
		}
		for _, dep := range deps {
			if err := validateID(dep); err != nil {
				return fmt.Errorf("invalid dependency for %s: %w", key, err)
			}
		}

		d.nodes[key] = &compiledNode{
			id:   id,
			opt:  opt,
			deps: append([]ID(nil), deps...),
			def:  def,
		}
		order = append(order, id)
	}

	edges := make([]GraphEdge, 0, len(specs))
	for _, id := range order {
		node := d.nodes[id.String()]
		for _, dep := range node.deps {
			if _, ok := d.nodes[dep.String()]; !ok {
				return DependencyNotFoundError{From: id.String(), To: dep.String()}
			}
			edges = append(edges, GraphEdge{From: id, To: dep})
		}
	}

	topo, err := d.topoSort(order)
	if err != nil {
		return err
	}
	d.order = order
	d.topo = topo

	nodes := make([]GraphNode, 0, len(order))
	for _, id := range order {
		nodes = append(nodes, GraphNode{ID: id})
	}
	d.graph = Graph{
		Nodes:     nodes,
		Edges:     edges,
		TopoOrder: append([]ID(nil), topo...),
	}
	return nil
}

func (d *Deployment) topoSort(order []ID) ([]ID, error) {
	return sortDependenciesFirst(order,
		func(id ID) []ID { return d.nodes[id.String()].deps },
		ID.String)
}

func validateID(id ID) error {
	if strings.TrimSpace(id.Kind) == "" {
		return fmt.Errorf("id.kind is empty")
	}
	if strings.TrimSpace(id.Name) == "" {
		return fmt.Errorf("id.name is empty")
	}
	return nil
}
