package armorch

import (
	"context"
	"encoding/json"
)

// ID is the unique identifier of a declared resource.
// Kind identifies the resource type (for example, storageAccount or registry).
// Name identifies one resource within the same kind.
type ID struct {
	Kind string `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
}

func (id ID) String() string {
	return id.Kind + "/" + id.Name
}

// NodeSpec is the framework-agnostic declaration of a resource.
// Any config layer that can map into this struct can integrate with armorch.
type NodeSpec struct {
	Kind    string          `json:"kind" yaml:"kind"`
	Name    string          `json:"name" yaml:"name"`
	Options json.RawMessage `json:"options,omitempty" yaml:"options,omitempty"`
}

func (s NodeSpec) ID() ID {
	return ID{Kind: s.Kind, Name: s.Name}
}

// Lookup returns the results of resolved dependencies by node key.
type Lookup interface {
	Result(key string) (any, error)
}

// Task is the creation step of a node. It is invoked once, after every
// dependency of the node is resolved.
type Task interface {
	Create(ctx context.Context, l Lookup) (any, error)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context, l Lookup) (any, error)

func (f TaskFunc) Create(ctx context.Context, l Lookup) (any, error) {
	return f(ctx, l)
}

// Preparer is implemented by tasks that need to inspect or extend their node
// before the graph is validated, for example to add late dependencies or to
// check required fields.
type Preparer interface {
	Prepare(ctx context.Context, n *Node) error
}

// Resolver provides dependency resolution by ID while a deployment is applied.
type Resolver interface {
	Resolve(ctx context.Context, id ID) (any, error)
}

// Definition describes the lifecycle of one resource kind.
//
// Decode converts raw options into Opt. Defaults to JSON decoding.
// Deps declares static dependencies for graph validation/building.
// Build creates the resource and must be provided.
// Delete is an optional destroy hook. If omitted, a Delete(ctx) error method on Out is used when present.
// PostRun is optional work done right after Build succeeded, such as creating
// sub-resources. It runs as its own node: a failing PostRun leaves the
// resource resolved.
type Definition[Opt any, Out any] struct {
	Decode  func(raw json.RawMessage) (Opt, error)
	Deps    func(opt Opt) ([]ID, error)
	Build   func(ctx context.Context, r Resolver, opt Opt) (Out, error)
	Delete  func(ctx context.Context, out Out) error
	PostRun func(ctx context.Context, opt Opt, out Out) error
}
