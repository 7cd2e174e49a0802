package reload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	slogcontext "github.com/veqryn/slog-context"

	"github.com/chenyanchen/armorch"
)

type snapshotNode struct {
	id   armorch.ID
	hash string
	deps []armorch.ID
}

// Result describes the resource changes of one reconciliation.
type Result struct {
	Added     []armorch.ID // Resource exists only in the new specs.
	Removed   []armorch.ID // Resource exists only in the old specs.
	Reused    []armorch.ID // Unchanged, dependencies unchanged, and resolved by the previous apply.
	Reapplied []armorch.ID // Added, changed, depending on a reapplied resource, or not resolved before.
	Deleted   []armorch.ID // Removed resources that were deleted remotely.
}

// Reconciler keeps the active deployment and applies incremental changes.
//
// Semantics:
// 1. compile the next deployment from new specs
// 2. reuse the results of unchanged resources
// 3. apply the next deployment; reapplied resources are created or replaced in place
// 4. on success, swap current
// 5. delete removed resources in reverse-topological order
//
// A failed apply keeps the current deployment. Resources it already wrote are
// left in place and reapplied by the next Reconcile.
type Reconciler struct {
	registry *armorch.Registry
	opts     []armorch.ApplyOption

	reconcileMu sync.Mutex

	mu       sync.RWMutex
	current  *armorch.Deployment
	report   *armorch.DeploymentReport
	snapshot map[string]snapshotNode
}

func New(registry *armorch.Registry, opts ...armorch.ApplyOption) (*Reconciler, error) {
	if registry == nil {
		return nil, fmt.Errorf("new reconciler: registry is nil")
	}
	return &Reconciler{registry: registry, opts: opts}, nil
}

// Current returns the active deployment and the report of its last apply.
// Both are nil before the first successful Reconcile.
func (r *Reconciler) Current() (*armorch.Deployment, *armorch.DeploymentReport) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.report
}

// Reconcile switches the reconciler to new specs.
func (r *Reconciler) Reconcile(ctx context.Context, specs []armorch.NodeSpec) (Result, error) {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	next, err := armorch.NewDeployment(r.registry, specs)
	if err != nil {
		return Result{}, fmt.Errorf("compile next deployment: %w", err)
	}
	nextSnapshot, err := buildSnapshot(specs, next.Graph())
	if err != nil {
		return Result{}, err
	}

	old, oldReport := r.Current()
	r.mu.RLock()
	oldSnapshot := cloneSnapshot(r.snapshot)
	r.mu.RUnlock()

	var oldTopo []armorch.ID
	resolved := map[armorch.ID]any{}
	if old != nil {
		oldTopo = old.TopoOrder()
		resolved = oldReport.Resolved()
	}
	diff := diffSnapshots(oldSnapshot, nextSnapshot, oldTopo, next.TopoOrder(), resolved)

	reuse := make(map[armorch.ID]any, len(diff.Reused))
	for _, id := range diff.Reused {
		reuse[id] = resolved[id]
	}
	log := slogcontext.FromCtx(ctx)
	log.InfoContext(ctx, "reconciling deployment",
		"added", len(diff.Added), "removed", len(diff.Removed), "reused", len(diff.Reused), "reapplied", len(diff.Reapplied))

	opts := append(append([]armorch.ApplyOption(nil), r.opts...), armorch.WithReuse(reuse))
	report, err := next.Apply(ctx, opts...)
	if err != nil {
		return Result{}, fmt.Errorf("apply next deployment: %w", err)
	}
	if err := report.Err(); err != nil {
		return diff, fmt.Errorf("apply next deployment: %w", err)
	}

	r.mu.Lock()
	r.current = next
	r.report = report
	r.snapshot = nextSnapshot
	r.mu.Unlock()

	if old == nil || len(diff.Removed) == 0 {
		return diff, nil
	}
	for _, id := range diff.Removed {
		if _, ok := resolved[id]; ok {
			diff.Deleted = append(diff.Deleted, id)
		}
	}
	if err := old.DestroyIDs(ctx, oldReport, diff.Removed); err != nil {
		return diff, fmt.Errorf("switch success but delete removed failed: %w", err)
	}
	return diff, nil
}

// Destroy deletes every resource of the current deployment in reverse
// topological order and resets the reconciler.
func (r *Reconciler) Destroy(ctx context.Context) error {
	r.reconcileMu.Lock()
	defer r.reconcileMu.Unlock()

	current, report := r.Current()
	if current == nil {
		return nil
	}
	if err := current.Destroy(ctx, report); err != nil {
		return err
	}
	r.mu.Lock()
	r.current, r.report, r.snapshot = nil, nil, nil
	r.mu.Unlock()
	return nil
}

func buildSnapshot(specs []armorch.NodeSpec, graph armorch.Graph) (map[string]snapshotNode, error) {
	specByKey := make(map[string]armorch.NodeSpec, len(specs))
	for _, spec := range specs {
		id := spec.ID()
		specByKey[id.String()] = spec
	}
	depsByKey := make(map[string][]armorch.ID, len(graph.Nodes))
	for _, edge := range graph.Edges {
		key := edge.From.String()
		depsByKey[key] = append(depsByKey[key], edge.To)
	}

	out := make(map[string]snapshotNode, len(graph.Nodes))
	for _, node := range graph.Nodes {
		key := node.ID.String()
		spec, ok := specByKey[key]
		if !ok {
			return nil, fmt.Errorf("build snapshot: missing spec for %s", key)
		}
		deps := append([]armorch.ID(nil), depsByKey[key]...)
		sort.Slice(deps, func(i, j int) bool {
			return deps[i].String() < deps[j].String()
		})
		hash, err := hashSpec(spec, deps)
		if err != nil {
			return nil, fmt.Errorf("build snapshot hash for %s: %w", key, err)
		}
		out[key] = snapshotNode{
			id:   node.ID,
			hash: hash,
			deps: deps,
		}
	}
	return out, nil
}

func hashSpec(spec armorch.NodeSpec, deps []armorch.ID) (string, error) {
	options, err := normalizeJSON(spec.Options)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(spec.Kind)
	b.WriteByte('\n')
	b.WriteString(spec.Name)
	b.WriteByte('\n')
	b.Write(options)
	b.WriteByte('\n')
	for _, dep := range deps {
		b.WriteString(dep.String())
		b.WriteByte('\n')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:]), nil
}

func normalizeJSON(raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return []byte("null"), nil
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		// Options decoded by a custom Decode need not be JSON.
		return trimmed, nil
	}
	return json.Marshal(v)
}

func cloneSnapshot(in map[string]snapshotNode) map[string]snapshotNode {
	out := make(map[string]snapshotNode, len(in))
	for k, v := range in {
		out[k] = snapshotNode{
			id:   v.id,
			hash: v.hash,
			deps: append([]armorch.ID(nil), v.deps...),
		}
	}
	return out
}

func diffSnapshots(
	oldSnap map[string]snapshotNode,
	newSnap map[string]snapshotNode,
	oldTopo []armorch.ID,
	newTopo []armorch.ID,
	resolved map[armorch.ID]any,
) Result {
	addedSet := make(map[string]struct{})
	removedSet := make(map[string]struct{})
	changedSet := make(map[string]struct{})

	for key, newNode := range newSnap {
		oldNode, ok := oldSnap[key]
		if !ok {
			addedSet[key] = struct{}{}
			continue
		}
		if _, ok := resolved[newNode.id]; newNode.hash != oldNode.hash || !ok {
			changedSet[key] = struct{}{}
		}
	}
	for key := range oldSnap {
		if _, ok := newSnap[key]; !ok {
			removedSet[key] = struct{}{}
		}
	}

	// A dependent sees its dependency's new result only if it is reapplied too.
	reapplySet := make(map[string]struct{}, len(newSnap))
	for key := range addedSet {
		reapplySet[key] = struct{}{}
	}
	for key := range changedSet {
		reapplySet[key] = struct{}{}
	}
	for _, id := range newTopo {
		key := id.String()
		if _, already := reapplySet[key]; already {
			continue
		}
		for _, dep := range newSnap[key].deps {
			if _, changed := reapplySet[dep.String()]; changed {
				reapplySet[key] = struct{}{}
				break
			}
		}
	}

	result := Result{
		Added:     make([]armorch.ID, 0, len(addedSet)),
		Removed:   make([]armorch.ID, 0, len(removedSet)),
		Reused:    make([]armorch.ID, 0, len(newSnap)),
		Reapplied: make([]armorch.ID, 0, len(reapplySet)),
	}
	for _, id := range newTopo {
		key := id.String()
		if _, ok := addedSet[key]; ok {
			result.Added = append(result.Added, id)
		}
		if _, ok := reapplySet[key]; ok {
			result.Reapplied = append(result.Reapplied, id)
		} else {
			result.Reused = append(result.Reused, id)
		}
	}
	for _, id := range oldTopo {
		if _, ok := removedSet[id.String()]; ok {
			result.Removed = append(result.Removed, id)
		}
	}
	return result
}
