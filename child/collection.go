package child

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	slogcontext "github.com/veqryn/slog-context"
	"golang.org/x/sync/errgroup"

	"github.com/chenyanchen/armorch"
)

// PendingOperation is the operation queued for a child until the next Flush.
type PendingOperation int

const (
	None PendingOperation = iota
	ToBeCreated
	ToBeUpdated
	ToBeRemoved
)

func (p PendingOperation) String() string {
	switch p {
	case None:
		return "none"
	case ToBeCreated:
		return "create"
	case ToBeUpdated:
		return "update"
	case ToBeRemoved:
		return "remove"
	default:
		return "unknown"
	}
}

func (p PendingOperation) verb() string {
	switch p {
	case ToBeCreated:
		return "create"
	case ToBeUpdated:
		return "update"
	case ToBeRemoved:
		return "delete"
	default:
		return "flush"
	}
}

// Operations issues the remote calls for children of one parent.
type Operations[T any] interface {
	CreateChild(ctx context.Context, name string, desired T) (T, error)
	UpdateChild(ctx context.Context, name string, current, desired T) (T, error)
	DeleteChild(ctx context.Context, name string, current T) error
}

// Cloner is implemented by child states that hold references, so an update
// can start from a private copy of the current state.
type Cloner[T any] interface {
	Clone() T
}

// Child is the tracked state of one sub-resource. Its state is guarded by
// the lock of the collection that owns it.
type Child[T any] struct {
	mu           *sync.Mutex
	name         string
	pending      PendingOperation
	materialized bool
	inner        T
	desired      T
}

func (c *Child[T]) Name() string {
	return c.name
}

func (c *Child[T]) PendingOperation() PendingOperation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Inner returns the last state returned by the server, and false if the child
// was never materialized.
func (c *Child[T]) Inner() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner, c.materialized
}

// Desired returns the state that the pending create or update will send.
// It is read by Flush under the collection lock, so it must be filled in
// before Flush is called and not touched while one is running.
func (c *Child[T]) Desired() *T {
	return &c.desired
}

type options struct {
	concurrency int
}

type Option func(*options)

// WithConcurrency caps the number of child operations a Flush issues at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// Collection tracks the children of one parent. Names are case-insensitive.
type Collection[T any] struct {
	ops  Operations[T]
	opts options

	mu       sync.Mutex
	children map[string]*Child[T]
}

func NewCollection[T any](ops Operations[T], opts ...Option) *Collection[T] {
	c := &Collection[T]{
		ops:      ops,
		children: make(map[string]*Child[T]),
	}
	for _, opt := range opts {
		opt(&c.opts)
	}
	return c
}

// Load records children that already exist server-side. Existing entries
// with the same name are replaced and lose their pending operation.
func (c *Collection[T]) Load(existing map[string]T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, inner := range existing {
		c.children[keyOf(name)] = &Child[T]{mu: &c.mu, name: name, inner: inner, materialized: true}
	}
}

// Define queues the creation of a new child.
func (c *Collection[T]) Define(name string) (*Child[T], error) {
	if name == "" {
		return nil, errors.New("define child: name is empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.children[keyOf(name)]; ok {
		return nil, &DuplicateChildError{Name: existing.name, Pending: existing.pending}
	}
	ch := &Child[T]{mu: &c.mu, name: name, pending: ToBeCreated}
	c.children[keyOf(name)] = ch
	return ch, nil
}

// Update queues an update of an existing child, starting from a copy of its
// current state. Updating a child pending creation returns the same child so
// the changes are folded into the create.
func (c *Collection[T]) Update(name string) (*Child[T], error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.children[keyOf(name)]
	if !ok {
		return nil, &UnknownChildError{Name: name}
	}
	switch ch.pending {
	case ToBeCreated, ToBeUpdated:
		return ch, nil
	case ToBeRemoved:
		return nil, &UnknownChildError{Name: name}
	}
	ch.pending = ToBeUpdated
	ch.desired = cloneOf(ch.inner)
	return ch, nil
}

// Remove queues the deletion of a child. Removing a child that is still
// pending creation drops it without any remote call.
func (c *Collection[T]) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := keyOf(name)
	ch, ok := c.children[key]
	if !ok {
		return &UnknownChildError{Name: name}
	}
	if ch.pending == ToBeCreated {
		delete(c.children, key)
		return nil
	}
	var zero T
	ch.pending = ToBeRemoved
	ch.desired = zero
	return nil
}

func (c *Collection[T]) Get(name string) (*Child[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.children[keyOf(name)]
	return ch, ok
}

// List returns all tracked children sorted by name.
func (c *Collection[T]) List() []*Child[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sorted(func(*Child[T]) bool { return true })
}

// Pending returns the children with a queued operation, sorted by name.
func (c *Collection[T]) Pending() []*Child[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sorted(func(ch *Child[T]) bool { return ch.pending != None })
}

// Clear discards every pending operation.
func (c *Collection[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero T
	for key, ch := range c.children {
		if ch.pending == ToBeCreated {
			delete(c.children, key)
			continue
		}
		ch.pending = None
		ch.desired = zero
	}
}

type flushJob[T any] struct {
	child   *Child[T]
	op      PendingOperation
	inner   T
	desired T

	out T
	err error
}

// Flush issues the queued operation of every pending child concurrently.
// A failing child does not stop the others. On success the pending operation
// is cleared and the server state recorded; a removed child leaves the
// collection. A failed create drops the child, a failed update or remove
// keeps its pending operation so it can be retried.
func (c *Collection[T]) Flush(ctx context.Context) *FlushReport {
	log := slogcontext.FromCtx(ctx)

	c.mu.Lock()
	pending := c.sorted(func(ch *Child[T]) bool { return ch.pending != None })
	jobs := make([]*flushJob[T], 0, len(pending))
	for _, ch := range pending {
		jobs = append(jobs, &flushJob[T]{child: ch, op: ch.pending, inner: ch.inner, desired: ch.desired})
	}
	c.mu.Unlock()

	if len(jobs) == 0 {
		return &FlushReport{}
	}

	var eg errgroup.Group
	if c.opts.concurrency > 0 {
		eg.SetLimit(c.opts.concurrency)
	}
	for _, job := range jobs {
		eg.Go(func() error {
			name := job.child.name
			switch job.op {
			case ToBeCreated:
				job.out, job.err = c.ops.CreateChild(ctx, name, job.desired)
			case ToBeUpdated:
				job.out, job.err = c.ops.UpdateChild(ctx, name, job.inner, job.desired)
			case ToBeRemoved:
				job.err = c.ops.DeleteChild(ctx, name, job.inner)
			}
			if job.err != nil {
				log.WarnContext(ctx, "child operation failed", "child", name, "operation", job.op.String(), "error", job.err)
			} else {
				log.DebugContext(ctx, "child operation succeeded", "child", name, "operation", job.op.String())
			}
			return nil
		})
	}
	_ = eg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	report := &FlushReport{Results: make([]Result, 0, len(jobs))}
	for _, job := range jobs {
		res := Result{Name: job.child.name, Operation: job.op}
		if job.err != nil {
			res.Err = &ChildOperationError{Name: job.child.name, Operation: job.op, Err: job.err}
		}
		report.Results = append(report.Results, res)
		c.apply(job)
	}
	return report
}

func (c *Collection[T]) apply(job *flushJob[T]) {
	key := keyOf(job.child.name)
	if c.children[key] != job.child {
		return
	}
	var zero T
	ch := job.child
	switch {
	case job.err == nil && job.op == ToBeRemoved:
		delete(c.children, key)
	case job.err == nil:
		ch.inner = job.out
		ch.materialized = true
		ch.pending = None
		ch.desired = zero
	case job.op == ToBeCreated:
		delete(c.children, key)
	}
}

// PostRun registers a node that flushes the collection right after parent
// is created. The node fails when any child operation fails.
func (c *Collection[T]) PostRun(parent *armorch.Node) *armorch.Node {
	n := armorch.NewNode(parent.Name()+"/children", armorch.TaskFunc(func(ctx context.Context, _ armorch.Lookup) (any, error) {
		report := c.Flush(ctx)
		return report, report.Err()
	}))
	parent.AddPostRunDependent(n)
	return n
}

func (c *Collection[T]) sorted(keep func(*Child[T]) bool) []*Child[T] {
	out := make([]*Child[T], 0, len(c.children))
	for _, ch := range c.children {
		if keep(ch) {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return keyOf(out[i].name) < keyOf(out[j].name) })
	return out
}

func cloneOf[T any](v T) T {
	if c, ok := any(v).(Cloner[T]); ok {
		return c.Clone()
	}
	return v
}

func keyOf(name string) string {
	return strings.ToLower(name)
}
