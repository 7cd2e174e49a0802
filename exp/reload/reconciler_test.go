package reload

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyanchen/armorch"
)

type leafOpt struct {
	Value string `json:"value"`
}

type parentOpt struct {
	Leaf string `json:"leaf"`
}

type leafRes struct {
	Value string
}

type parentRes struct {
	Leaf *leafRes
}

type deleteLog struct {
	mu  sync.Mutex
	ids []string
}

func (l *deleteLog) add(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
}

func (l *deleteLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ids...)
}

type counters struct {
	leafBuilds   int32
	parentBuilds int32
	deletes      deleteLog
}

func newRegistry(t *testing.T, c *counters) *armorch.Registry {
	t.Helper()
	reg := armorch.NewRegistry()
	armorch.MustRegister(reg, "leaf", armorch.Definition[leafOpt, *leafRes]{
		Build: func(_ context.Context, _ armorch.Resolver, opt leafOpt) (*leafRes, error) {
			if opt.Value == "bad" {
				return nil, assert.AnError
			}
			atomic.AddInt32(&c.leafBuilds, 1)
			return &leafRes{Value: opt.Value}, nil
		},
		Delete: func(_ context.Context, res *leafRes) error {
			c.deletes.add("leaf:" + res.Value)
			return nil
		},
	})
	armorch.MustRegister(reg, "parent", armorch.Definition[parentOpt, *parentRes]{
		Deps: func(opt parentOpt) ([]armorch.ID, error) {
			return []armorch.ID{{Kind: "leaf", Name: opt.Leaf}}, nil
		},
		Build: func(ctx context.Context, r armorch.Resolver, opt parentOpt) (*parentRes, error) {
			atomic.AddInt32(&c.parentBuilds, 1)
			leaf, err := armorch.ResolveAs[*leafRes](ctx, r, armorch.ID{Kind: "leaf", Name: opt.Leaf})
			if err != nil {
				return nil, err
			}
			return &parentRes{Leaf: leaf}, nil
		},
		Delete: func(_ context.Context, res *parentRes) error {
			c.deletes.add("parent:" + res.Leaf.Value)
			return nil
		},
	})
	return reg
}

func TestReconcile_ReuseAndReapply(t *testing.T) {
	var c counters
	reconciler, err := New(newRegistry(t, &c))
	require.NoError(t, err)

	initial := []armorch.NodeSpec{
		{Kind: "leaf", Name: "main", Options: rawJSON(t, leafOpt{Value: "v1"})},
		{Kind: "parent", Name: "svc", Options: rawJSON(t, parentOpt{Leaf: "main"})},
	}
	first, err := reconciler.Reconcile(context.Background(), initial)
	require.NoError(t, err)
	assert.Len(t, first.Added, 2)
	assert.Len(t, first.Reapplied, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&c.leafBuilds))
	assert.Equal(t, int32(1), atomic.LoadInt32(&c.parentBuilds))

	// Same config: everything is reused.
	same, err := reconciler.Reconcile(context.Background(), initial)
	require.NoError(t, err)
	assert.Empty(t, same.Reapplied)
	assert.Len(t, same.Reused, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&c.leafBuilds))
	assert.Equal(t, int32(1), atomic.LoadInt32(&c.parentBuilds))

	// Leaf change reapplies the leaf and its dependents in place.
	updated := []armorch.NodeSpec{
		{Kind: "leaf", Name: "main", Options: rawJSON(t, leafOpt{Value: "v2"})},
		{Kind: "parent", Name: "svc", Options: rawJSON(t, parentOpt{Leaf: "main"})},
	}
	changed, err := reconciler.Reconcile(context.Background(), updated)
	require.NoError(t, err)
	assert.Equal(t, []armorch.ID{{Kind: "leaf", Name: "main"}, {Kind: "parent", Name: "svc"}}, changed.Reapplied)
	assert.Empty(t, changed.Reused)
	assert.Equal(t, int32(2), atomic.LoadInt32(&c.leafBuilds))
	assert.Equal(t, int32(2), atomic.LoadInt32(&c.parentBuilds))
	assert.Empty(t, c.deletes.list(), "reapplied resources are replaced, not deleted")

	_, report := reconciler.Current()
	v, ok := report.ResultOf(armorch.ID{Kind: "parent", Name: "svc"})
	require.True(t, ok)
	assert.Equal(t, "v2", v.(*parentRes).Leaf.Value)
}

func TestReconcile_DeletesRemovedInReverseOrder(t *testing.T) {
	var c counters
	reconciler, err := New(newRegistry(t, &c), armorch.WithAsync())
	require.NoError(t, err)

	_, err = reconciler.Reconcile(context.Background(), []armorch.NodeSpec{
		{Kind: "leaf", Name: "a", Options: rawJSON(t, leafOpt{Value: "a"})},
		{Kind: "parent", Name: "p", Options: rawJSON(t, parentOpt{Leaf: "a"})},
		{Kind: "leaf", Name: "b", Options: rawJSON(t, leafOpt{Value: "b"})},
	})
	require.NoError(t, err)

	result, err := reconciler.Reconcile(context.Background(), []armorch.NodeSpec{
		{Kind: "leaf", Name: "b", Options: rawJSON(t, leafOpt{Value: "b"})},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []armorch.ID{{Kind: "leaf", Name: "a"}, {Kind: "parent", Name: "p"}}, result.Removed)
	assert.ElementsMatch(t, result.Removed, result.Deleted)
	assert.Equal(t, []armorch.ID{{Kind: "leaf", Name: "b"}}, result.Reused)
	assert.Equal(t, []string{"parent:a", "leaf:a"}, c.deletes.list())

	require.NoError(t, reconciler.Destroy(context.Background()))
	assert.Equal(t, []string{"parent:a", "leaf:a", "leaf:b"}, c.deletes.list())
	d, report := reconciler.Current()
	assert.Nil(t, d)
	assert.Nil(t, report)
}

func TestReconcile_FailedApplyKeepsCurrent(t *testing.T) {
	var c counters
	reconciler, err := New(newRegistry(t, &c))
	require.NoError(t, err)

	_, err = reconciler.Reconcile(context.Background(), []armorch.NodeSpec{
		{Kind: "leaf", Name: "main", Options: rawJSON(t, leafOpt{Value: "v1"})},
	})
	require.NoError(t, err)
	oldDeployment, oldReport := reconciler.Current()

	result, err := reconciler.Reconcile(context.Background(), []armorch.NodeSpec{
		{Kind: "leaf", Name: "main", Options: rawJSON(t, leafOpt{Value: "bad"})},
		{Kind: "leaf", Name: "extra", Options: rawJSON(t, leafOpt{Value: "x"})},
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Len(t, result.Added, 1)

	current, report := reconciler.Current()
	assert.Same(t, oldDeployment, current)
	assert.Same(t, oldReport, report)
	assert.Empty(t, c.deletes.list())

	_, err = reconciler.Reconcile(context.Background(), []armorch.NodeSpec{
		{Kind: "leaf", Name: "missing", Options: rawJSON(t, parentOpt{})},
		{Kind: "parent", Name: "p", Options: rawJSON(t, parentOpt{Leaf: "nope"})},
	})
	var notFound armorch.DependencyNotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestNewRequiresRegistry(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func rawJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
