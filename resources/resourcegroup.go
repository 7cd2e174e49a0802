package resources

import (
	"context"
	"maps"

	"github.com/chenyanchen/armorch"
	"github.com/chenyanchen/armorch/resourceid"
	"github.com/chenyanchen/armorch/transport"
)

// ResourceGroupDefinition describes a resource group to create.
type ResourceGroupDefinition struct {
	scope  *Scope
	name   string
	region Region
	tags   map[string]string
	node   *armorch.Node
}

func DefineResourceGroup(scope *Scope, name string) *ResourceGroupDefinition {
	d := &ResourceGroupDefinition{scope: scope, name: name}
	d.node = armorch.NewNode("resourceGroup/"+name, NewTask(d.prepare, d.create),
		armorch.WithEquivalenceFunc(func() string { return resourceid.Key(d.ID()) }))
	return d
}

func (d *ResourceGroupDefinition) WithRegion(region Region) *ResourceGroupDefinition {
	d.region = region
	return d
}

func (d *ResourceGroupDefinition) WithTag(key, value string) *ResourceGroupDefinition {
	if d.tags == nil {
		d.tags = make(map[string]string)
	}
	d.tags[key] = value
	return d
}

func (d *ResourceGroupDefinition) WithTags(tags map[string]string) *ResourceGroupDefinition {
	d.tags = maps.Clone(tags)
	return d
}

func (d *ResourceGroupDefinition) Name() string {
	return d.name
}

func (d *ResourceGroupDefinition) Region() Region {
	return d.region
}

// ID returns the id the resource group will have once created.
func (d *ResourceGroupDefinition) ID() string {
	return resourceid.ResourceGroupID(d.scope.SubscriptionID, d.name)
}

// Node returns the graph node that creates this resource group.
func (d *ResourceGroupDefinition) Node() *armorch.Node {
	return d.node
}

func (d *ResourceGroupDefinition) Create(ctx context.Context, opts ...armorch.CreateOption) (*ResourceGroup, error) {
	return CreateRoot[*ResourceGroup](ctx, d.node, opts...)
}

func (d *ResourceGroupDefinition) prepare(context.Context, *armorch.Node) error {
	if d.name == "" {
		return &RequiredFieldError{Resource: "resource group", Field: "name"}
	}
	if d.region == "" {
		return &RequiredFieldError{Resource: "resource group " + d.name, Field: "region"}
	}
	return nil
}

func (d *ResourceGroupDefinition) create(ctx context.Context, _ armorch.Lookup) (any, error) {
	inner, err := d.scope.Client.Create(ctx, transport.Resource{
		ID:       d.ID(),
		Name:     d.name,
		Location: d.region.String(),
		Tags:     maps.Clone(d.tags),
	})
	if err != nil {
		return nil, err
	}
	return &ResourceGroup{scope: d.scope, inner: inner}, nil
}

// ResourceGroup is a created or fetched resource group.
type ResourceGroup struct {
	scope *Scope
	inner transport.Resource
}

// GetResourceGroup fetches an existing resource group.
func GetResourceGroup(ctx context.Context, scope *Scope, name string) (*ResourceGroup, error) {
	inner, err := scope.Client.Get(ctx, resourceid.ResourceGroupID(scope.SubscriptionID, name))
	if err != nil {
		return nil, err
	}
	return &ResourceGroup{scope: scope, inner: inner}, nil
}

func (g *ResourceGroup) ID() string                { return g.inner.ID }
func (g *ResourceGroup) Name() string              { return g.inner.Name }
func (g *ResourceGroup) Region() Region            { return ParseRegion(g.inner.Location) }
func (g *ResourceGroup) Tags() map[string]string   { return maps.Clone(g.inner.Tags) }
func (g *ResourceGroup) ProvisioningState() string { return g.inner.ProvisioningState() }
func (g *ResourceGroup) Inner() transport.Resource { return g.inner.Clone() }

func (g *ResourceGroup) Refresh(ctx context.Context) error {
	inner, err := g.scope.Client.Get(ctx, g.inner.ID)
	if err != nil {
		return err
	}
	g.inner = inner
	return nil
}

func (g *ResourceGroup) Delete(ctx context.Context) error {
	return g.scope.Client.Delete(ctx, g.inner.ID)
}

// Update starts an update of the group's tags.
func (g *ResourceGroup) Update() *ResourceGroupUpdate {
	return &ResourceGroupUpdate{group: g, tags: maps.Clone(g.inner.Tags)}
}

type ResourceGroupUpdate struct {
	group *ResourceGroup
	tags  map[string]string
}

func (u *ResourceGroupUpdate) WithTag(key, value string) *ResourceGroupUpdate {
	if u.tags == nil {
		u.tags = make(map[string]string)
	}
	u.tags[key] = value
	return u
}

func (u *ResourceGroupUpdate) WithoutTag(key string) *ResourceGroupUpdate {
	delete(u.tags, key)
	return u
}

func (u *ResourceGroupUpdate) Apply(ctx context.Context) (*ResourceGroup, error) {
	tags := u.tags
	if tags == nil {
		tags = map[string]string{}
	}
	inner, err := u.group.scope.Client.Update(ctx, transport.Resource{ID: u.group.inner.ID, Tags: tags})
	if err != nil {
		return nil, err
	}
	u.group.inner = inner
	return u.group, nil
}

// GroupRef places a resource in a new or an existing resource group.
type GroupRef struct {
	name       string
	definition *ResourceGroupDefinition
}

func NewGroupRef(def *ResourceGroupDefinition) GroupRef {
	return GroupRef{name: def.Name(), definition: def}
}

func ExistingGroupRef(name string) GroupRef {
	return GroupRef{name: name}
}

func (r GroupRef) Name() string {
	return r.name
}

func (r GroupRef) IsSet() bool {
	return r.name != ""
}

// Attach makes n depend on the resource group when it is created in the same graph.
func (r GroupRef) Attach(n *armorch.Node) {
	if r.definition != nil {
		n.AddDependency(r.definition.Node())
	}
}

// DefaultRegion returns the region of a new resource group, if any.
func (r GroupRef) DefaultRegion() Region {
	if r.definition == nil {
		return ""
	}
	return r.definition.Region()
}
