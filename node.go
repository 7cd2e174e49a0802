package armorch

import (
	"sync"

	"github.com/google/uuid"
)

// Node is a creatable resource definition in a dependency graph.
//
// The key is assigned at construction and never changes, so dependents can
// reference a node before it has been created. Nodes are reusable: every
// Create call builds a fresh resolution graph and no result is cached on the node.
type Node struct {
	key         string
	name        string
	task        Task
	equivalence func() string

	mu      sync.Mutex
	deps    []*Node
	postRun []*Node
}

// NodeOption configures a Node.
type NodeOption func(*Node)

// WithEquivalenceKey sets the key used to collapse equivalent definitions
// (for example a resource id) into one graph node.
func WithEquivalenceKey(key string) NodeOption {
	return func(n *Node) {
		n.equivalence = func() string { return key }
	}
}

// WithEquivalenceFunc is WithEquivalenceKey for definitions whose identity is
// only complete once they are fully configured. fn is evaluated on every
// comparison.
func WithEquivalenceFunc(fn func() string) NodeOption {
	return func(n *Node) {
		n.equivalence = fn
	}
}

// NewNode creates a node. A nil task resolves to a nil result, which is useful
// for grouping nodes.
func NewNode(name string, task Task, opts ...NodeOption) *Node {
	n := &Node{
		key:  uuid.NewString(),
		name: name,
		task: task,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.name == "" {
		n.name = n.key
	}
	return n
}

func (n *Node) Key() string {
	return n.key
}

func (n *Node) Name() string {
	return n.name
}

// EquivalenceKey returns the caller supplied equivalence key, or "".
func (n *Node) EquivalenceKey() string {
	if n.equivalence == nil {
		return ""
	}
	return n.equivalence()
}

// Dependencies returns a snapshot of the declared dependencies.
func (n *Node) Dependencies() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Node(nil), n.deps...)
}

// AddDependency registers dep as a prerequisite of n and returns the key the
// task must use to look up its result. Registering the same node, or a node
// with the same equivalence key, again returns the key of the existing
// dependency instead of adding a second one.
func (n *Node) AddDependency(dep *Node) string {
	if dep == nil {
		panic("armorch: nil dependency")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if existing := findEquivalent(n.deps, dep); existing != nil {
		return existing.key
	}
	n.deps = append(n.deps, dep)
	return dep.key
}

// AddPostRunDependent registers dep to run right after n: dep depends on n and
// is part of every graph that contains n.
func (n *Node) AddPostRunDependent(dep *Node) {
	if dep == nil {
		panic("armorch: nil post-run dependent")
	}
	dep.AddDependency(n)

	n.mu.Lock()
	defer n.mu.Unlock()
	if findEquivalent(n.postRun, dep) != nil {
		return
	}
	n.postRun = append(n.postRun, dep)
}

// DependsOn reports whether n directly depends on dep.
func (n *Node) DependsOn(dep *Node) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return findEquivalent(n.deps, dep) != nil
}

func (n *Node) snapshot() (deps []*Node, postRun []*Node) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*Node(nil), n.deps...), append([]*Node(nil), n.postRun...)
}

func findEquivalent(nodes []*Node, target *Node) *Node {
	targetKey := target.EquivalenceKey()
	for _, n := range nodes {
		if n == target {
			return n
		}
		if targetKey != "" && n.EquivalenceKey() == targetKey {
			return n
		}
	}
	return nil
}
