// Package memory is an in-process transport.Client backed by a map. It
// enforces parent existence the way Resource Manager does and records every
// call, which makes it suitable for tests, dry runs and the CLI's default mode.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/chenyanchen/armorch/resourceid"
	"github.com/chenyanchen/armorch/transport"
)

const (
	OpCreate = "create"
	OpUpdate = "update"
	OpGet    = "get"
	OpDelete = "delete"
	OpList   = "list"
)

// Call is one recorded operation.
type Call struct {
	Op string
	ID string
}

type failure struct {
	op  string
	key string
	err error
}

// Client stores resources by case-insensitive id.
type Client struct {
	mu        sync.Mutex
	resources map[string]transport.Resource
	calls     []Call
	failures  []failure
}

var (
	_ transport.Client = (*Client)(nil)
	_ transport.Lister = (*Client)(nil)
)

func New() *Client {
	return &Client{resources: make(map[string]transport.Resource)}
}

// Seed stores resources as if they had been created earlier. Seeded
// resources are not recorded as calls.
func (c *Client) Seed(resources ...transport.Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range resources {
		c.resources[resourceid.Key(r.ID)] = withDefaults(r.Clone())
	}
}

// FailOn makes every op on id fail with err. An empty op matches any operation.
func (c *Client) FailOn(op, id string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, failure{op: op, key: resourceid.Key(id), err: err})
}

// ClearFailures removes all injected failures.
func (c *Client) ClearFailures() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = nil
}

// Calls returns a snapshot of all recorded calls in order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// Resources returns every stored resource sorted by id.
func (c *Client) Resources() []transport.Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transport.Resource, 0, len(c.resources))
	for _, r := range c.resources {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return resourceid.Key(out[i].ID) < resourceid.Key(out[j].ID) })
	return out
}

func (c *Client) Create(ctx context.Context, r transport.Resource) (transport.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, OpCreate, r.ID); err != nil {
		return transport.Resource{}, err
	}
	if err := c.checkParent(OpCreate, r.ID); err != nil {
		return transport.Resource{}, err
	}
	stored := withDefaults(r.Clone())
	c.resources[resourceid.Key(r.ID)] = stored
	return stored.Clone(), nil
}

func (c *Client) Update(ctx context.Context, r transport.Resource) (transport.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, OpUpdate, r.ID); err != nil {
		return transport.Resource{}, err
	}
	current, ok := c.resources[resourceid.Key(r.ID)]
	if !ok {
		return transport.Resource{}, &transport.Error{Kind: transport.KindNotFound, Op: OpUpdate, ID: r.ID}
	}
	merged := merge(current, r)
	c.resources[resourceid.Key(r.ID)] = merged
	return merged.Clone(), nil
}

func (c *Client) Get(ctx context.Context, id string) (transport.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, OpGet, id); err != nil {
		return transport.Resource{}, err
	}
	r, ok := c.resources[resourceid.Key(id)]
	if !ok {
		return transport.Resource{}, &transport.Error{Kind: transport.KindNotFound, Op: OpGet, ID: id}
	}
	return r.Clone(), nil
}

// Delete removes id and everything nested under it. Deleting a missing
// resource succeeds, as Resource Manager answers 204.
func (c *Client) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, OpDelete, id); err != nil {
		return err
	}
	prefix := resourceid.Key(id)
	for key := range c.resources {
		if key == prefix || strings.HasPrefix(key, prefix+"/") {
			delete(c.resources, key)
		}
	}
	return nil
}

// List returns the direct children of parentID whose last type segment is childType.
func (c *Client) List(ctx context.Context, parentID string, childType string) ([]transport.Resource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin(ctx, OpList, parentID); err != nil {
		return nil, err
	}
	prefix := resourceid.Key(parentID) + "/" + strings.ToLower(childType) + "/"
	var out []transport.Resource
	for key, r := range c.resources {
		if strings.HasPrefix(key, prefix) && !strings.Contains(strings.TrimPrefix(key, prefix), "/") {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return resourceid.Key(out[i].ID) < resourceid.Key(out[j].ID) })
	return out, nil
}

// begin records the call and returns context or injected errors.
// Callers must hold c.mu.
func (c *Client) begin(ctx context.Context, op, id string) error {
	c.calls = append(c.calls, Call{Op: op, ID: id})
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := resourceid.Parse(id); err != nil {
		return &transport.Error{Kind: transport.KindInvalid, Op: op, ID: id, Err: err}
	}
	key := resourceid.Key(id)
	for _, f := range c.failures {
		if f.key == key && (f.op == "" || f.op == op) {
			return &transport.Error{Kind: transport.KindOf(f.err), Op: op, ID: id, Err: f.err}
		}
	}
	return nil
}

func (c *Client) checkParent(op, id string) error {
	parent, err := resourceid.Parent(id)
	if err != nil {
		return &transport.Error{Kind: transport.KindInvalid, Op: op, ID: id, Err: err}
	}
	if resourceid.IsResourceGroup(id) {
		return nil
	}
	if _, ok := c.resources[resourceid.Key(parent)]; !ok {
		return &transport.Error{Kind: transport.KindNotFound, Op: op, ID: id, Err: fmt.Errorf("parent %s not found", parent)}
	}
	return nil
}

func withDefaults(r transport.Resource) transport.Resource {
	if r.Name == "" {
		r.Name = resourceid.Name(r.ID)
	}
	if r.Type == "" {
		r.Type = resourceid.Type(r.ID)
	}
	r.SetProperty("Succeeded", "provisioningState")
	return r
}

func merge(current, patch transport.Resource) transport.Resource {
	out := current.Clone()
	if patch.Location != "" {
		out.Location = patch.Location
	}
	if patch.Kind != "" {
		out.Kind = patch.Kind
	}
	if patch.Tags != nil {
		out.Tags = maps.Clone(patch.Tags)
	}
	if patch.SKU != nil {
		sku := *patch.SKU
		out.SKU = &sku
	}
	for k, v := range patch.Clone().Properties {
		if k == "provisioningState" {
			continue
		}
		out.SetProperty(v, k)
	}
	return out
}
