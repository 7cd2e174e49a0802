// Package transport defines the remote create/update/get/delete contract the
// resource definitions are built on, and the errors it reports.
package transport

import (
	"context"
	"errors"
	"fmt"
	"maps"
)

// SKU is the pricing tier of a resource.
type SKU struct {
	Name string `json:"name" yaml:"name"`
	Tier string `json:"tier,omitempty" yaml:"tier,omitempty"`
}

// Resource is the server-side representation of any resource.
// ID addresses the resource; Properties holds the type specific payload.
type Resource struct {
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Type       string            `json:"type,omitempty"`
	Kind       string            `json:"kind,omitempty"`
	Location   string            `json:"location,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	SKU        *SKU              `json:"sku,omitempty"`
	Properties map[string]any    `json:"properties,omitempty"`
}

// Clone returns a deep copy of r.
func (r Resource) Clone() Resource {
	out := r
	if r.Tags != nil {
		out.Tags = maps.Clone(r.Tags)
	}
	if r.SKU != nil {
		sku := *r.SKU
		out.SKU = &sku
	}
	if r.Properties != nil {
		out.Properties = cloneMap(r.Properties)
	}
	return out
}

// Property returns the value at the dotted path in Properties, such as
// "storageAccount.id".
func (r Resource) Property(path ...string) (any, bool) {
	var cur any = r.Properties
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// StringProperty is Property for string values.
func (r Resource) StringProperty(path ...string) string {
	v, _ := r.Property(path...)
	s, _ := v.(string)
	return s
}

// SetProperty sets the value at the path, creating intermediate objects.
func (r *Resource) SetProperty(value any, path ...string) {
	if len(path) == 0 {
		return
	}
	if r.Properties == nil {
		r.Properties = make(map[string]any)
	}
	cur := r.Properties
	for _, p := range path[:len(path)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

// ProvisioningState returns properties.provisioningState.
func (r Resource) ProvisioningState() string {
	return r.StringProperty("provisioningState")
}

// Client issues remote operations. Create and Update are addressed by
// Resource.ID. Create is a create-or-replace; Update merges the given fields.
type Client interface {
	Create(ctx context.Context, r Resource) (Resource, error)
	Update(ctx context.Context, r Resource) (Resource, error)
	Get(ctx context.Context, id string) (Resource, error)
	Delete(ctx context.Context, id string) error
}

// Lister is implemented by clients that can enumerate child resources.
type Lister interface {
	List(ctx context.Context, parentID string, childType string) ([]Resource, error)
}

// Kind classifies transport failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindConflict
	KindInvalid
	KindThrottled
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindInvalid:
		return "invalid request"
	case KindThrottled:
		return "throttled"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Retryable reports whether an operation failing with k may succeed later.
func (k Kind) Retryable() bool {
	return k == KindThrottled || k == KindUnavailable
}

// Error is a failed remote operation.
type Error struct {
	Kind Kind
	Op   string
	ID   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %s", e.Op, e.ID, e.Kind)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.ID, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var terr *Error
	if errors.As(err, &terr) {
		return terr.Kind
	}
	return KindUnknown
}

// IsNotFound reports whether err is a KindNotFound transport error.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
