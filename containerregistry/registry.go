package containerregistry

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/chenyanchen/armorch"
	"github.com/chenyanchen/armorch/child"
	"github.com/chenyanchen/armorch/resourceid"
	"github.com/chenyanchen/armorch/resources"
	"github.com/chenyanchen/armorch/storage"
	"github.com/chenyanchen/armorch/transport"
)

// Registries is the entry point for container registries of one scope.
type Registries struct {
	scope *resources.Scope
	opts  []child.Option
}

// NewRegistries returns the registries of scope. opts tune webhook flushes.
func NewRegistries(scope *resources.Scope, opts ...child.Option) *Registries {
	return &Registries{scope: scope, opts: opts}
}

// Define starts the definition of a new registry. The sku defaults to Basic.
func (r *Registries) Define(name string) *RegistryDefinition {
	d := &RegistryDefinition{
		scope: r.scope,
		name:  name,
		sku:   SkuBasic,
	}
	d.webhooks = child.NewCollection[transport.Resource](&webhookOperations{
		client:     r.scope.Client,
		registryID: d.ID,
		location:   func() string { return d.region.String() },
	}, r.opts...)
	d.node = armorch.NewNode("registry/"+name, resources.NewTask(d.prepare, d.create),
		armorch.WithEquivalenceFunc(func() string {
			if !d.group.IsSet() {
				return ""
			}
			return resourceid.Key(d.ID())
		}))
	d.webhooks.PostRun(d.node)
	return d
}

// GetByID fetches an existing registry and the webhooks it has.
func (r *Registries) GetByID(ctx context.Context, id string) (*Registry, error) {
	inner, err := r.scope.Client.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	reg := &Registry{scope: r.scope, inner: inner}
	reg.webhooks = child.NewCollection[transport.Resource](&webhookOperations{
		client:     r.scope.Client,
		registryID: reg.ID,
		location:   func() string { return reg.inner.Location },
	}, r.opts...)
	if err := reg.loadWebhooks(ctx); err != nil {
		return nil, err
	}
	return reg, nil
}

// RegistryDefinition describes a registry to create.
type RegistryDefinition struct {
	scope     *resources.Scope
	name      string
	region    resources.Region
	group     resources.GroupRef
	sku       SkuName
	adminUser bool
	tags      map[string]string

	storage    *storage.AccountDefinition
	storageKey string
	storageID  string

	webhooks *child.Collection[transport.Resource]
	errs     []error
	node     *armorch.Node
}

func (d *RegistryDefinition) WithRegion(region resources.Region) *RegistryDefinition {
	d.region = region
	return d
}

func (d *RegistryDefinition) WithNewResourceGroup(group *resources.ResourceGroupDefinition) *RegistryDefinition {
	d.group = resources.NewGroupRef(group)
	return d
}

func (d *RegistryDefinition) WithExistingResourceGroup(name string) *RegistryDefinition {
	d.group = resources.ExistingGroupRef(name)
	return d
}

func (d *RegistryDefinition) WithSku(sku SkuName) *RegistryDefinition {
	d.sku = sku
	return d
}

func (d *RegistryDefinition) WithAdminUserEnabled() *RegistryDefinition {
	d.adminUser = true
	return d
}

// WithNewStorageAccount backs the registry with an account created first in
// the same graph.
func (d *RegistryDefinition) WithNewStorageAccount(account *storage.AccountDefinition) *RegistryDefinition {
	d.storage = account
	d.storageID = ""
	return d
}

func (d *RegistryDefinition) WithExistingStorageAccount(id string) *RegistryDefinition {
	d.storage = nil
	d.storageID = id
	return d
}

func (d *RegistryDefinition) WithTag(key, value string) *RegistryDefinition {
	if d.tags == nil {
		d.tags = make(map[string]string)
	}
	d.tags[key] = value
	return d
}

// DefineWebhook queues a webhook that is created right after the registry.
func (d *RegistryDefinition) DefineWebhook(name string) *WebhookBuilder {
	ch, err := d.webhooks.Define(name)
	if err != nil {
		d.errs = append(d.errs, err)
	}
	return &WebhookBuilder{child: ch}
}

func (d *RegistryDefinition) Name() string {
	return d.name
}

func (d *RegistryDefinition) ID() string {
	return resourceid.ForResource(d.scope.SubscriptionID, d.group.Name(), ResourceType, d.name)
}

func (d *RegistryDefinition) Node() *armorch.Node {
	return d.node
}

func (d *RegistryDefinition) Create(ctx context.Context, opts ...armorch.CreateOption) (*Registry, error) {
	return resources.CreateRoot[*Registry](ctx, d.node, opts...)
}

func (d *RegistryDefinition) prepare(_ context.Context, n *armorch.Node) error {
	if err := errors.Join(d.errs...); err != nil {
		return err
	}
	if d.region == "" {
		d.region = d.group.DefaultRegion()
	}
	switch {
	case d.name == "":
		return &resources.RequiredFieldError{Resource: "registry", Field: "name"}
	case !d.group.IsSet():
		return &resources.RequiredFieldError{Resource: "registry " + d.name, Field: "resource group"}
	case d.region == "":
		return &resources.RequiredFieldError{Resource: "registry " + d.name, Field: "region"}
	case d.sku == SkuClassic && d.storage == nil && d.storageID == "":
		return &resources.RequiredFieldError{Resource: "registry " + d.name, Field: "storage account"}
	}
	d.group.Attach(n)
	if d.storage != nil {
		d.storageKey = n.AddDependency(d.storage.Node())
	}
	return nil
}

func (d *RegistryDefinition) create(ctx context.Context, l armorch.Lookup) (any, error) {
	storageID := d.storageID
	if d.storage != nil {
		account, err := armorch.ResultAs[*storage.Account](l, d.storageKey)
		if err != nil {
			return nil, fmt.Errorf("registry %s: %w", d.name, err)
		}
		storageID = account.ID()
	}
	inner, err := d.scope.Client.Create(ctx, createRequest(d, storageID))
	if err != nil {
		return nil, err
	}
	return &Registry{scope: d.scope, inner: inner, webhooks: d.webhooks}, nil
}

func createRequest(d *RegistryDefinition, storageID string) transport.Resource {
	r := transport.Resource{
		ID:       d.ID(),
		Name:     d.name,
		Type:     ResourceType,
		Location: d.region.String(),
		Tags:     maps.Clone(d.tags),
		SKU:      &transport.SKU{Name: string(d.sku), Tier: string(d.sku)},
	}
	r.SetProperty(d.adminUser, "adminUserEnabled")
	if storageID != "" {
		r.SetProperty(storageID, "storageAccount", "id")
	}
	return r
}

// Registry is a created or fetched container registry.
type Registry struct {
	scope    *resources.Scope
	inner    transport.Resource
	webhooks *child.Collection[transport.Resource]
}

func (r *Registry) ID() string                { return r.inner.ID }
func (r *Registry) Name() string              { return r.inner.Name }
func (r *Registry) Region() resources.Region  { return resources.ParseRegion(r.inner.Location) }
func (r *Registry) ResourceGroup() string     { return resourceid.ResourceGroup(r.inner.ID) }
func (r *Registry) Tags() map[string]string   { return maps.Clone(r.inner.Tags) }
func (r *Registry) ProvisioningState() string { return r.inner.ProvisioningState() }
func (r *Registry) LoginServer() string       { return r.inner.StringProperty("loginServer") }
func (r *Registry) StorageAccountID() string  { return r.inner.StringProperty("storageAccount", "id") }
func (r *Registry) Inner() transport.Resource { return r.inner.Clone() }

func (r *Registry) Sku() SkuName {
	if r.inner.SKU == nil {
		return ""
	}
	return SkuName(r.inner.SKU.Name)
}

func (r *Registry) AdminUserEnabled() bool {
	v, _ := r.inner.Property("adminUserEnabled")
	b, _ := v.(bool)
	return b
}

// Webhooks returns the materialized webhooks sorted by name.
func (r *Registry) Webhooks() []*Webhook {
	var out []*Webhook
	for _, ch := range r.webhooks.List() {
		if inner, ok := ch.Inner(); ok {
			out = append(out, &Webhook{inner: inner})
		}
	}
	return out
}

func (r *Registry) Webhook(name string) (*Webhook, bool) {
	ch, ok := r.webhooks.Get(name)
	if !ok {
		return nil, false
	}
	inner, ok := ch.Inner()
	if !ok {
		return nil, false
	}
	return &Webhook{inner: inner}, true
}

// Refresh reloads the registry and its webhooks. Pending webhook changes are dropped.
func (r *Registry) Refresh(ctx context.Context) error {
	inner, err := r.scope.Client.Get(ctx, r.inner.ID)
	if err != nil {
		return err
	}
	r.inner = inner
	r.webhooks.Clear()
	return r.loadWebhooks(ctx)
}

func (r *Registry) Delete(ctx context.Context) error {
	return r.scope.Client.Delete(ctx, r.inner.ID)
}

func (r *Registry) Update() *RegistryUpdate {
	return &RegistryUpdate{registry: r}
}

// loadWebhooks is a no-op for clients that cannot list children.
func (r *Registry) loadWebhooks(ctx context.Context) error {
	lister, ok := r.scope.Client.(transport.Lister)
	if !ok {
		return nil
	}
	hooks, err := lister.List(ctx, r.inner.ID, webhookType)
	if err != nil {
		return fmt.Errorf("list webhooks of %s: %w", r.inner.Name, err)
	}
	existing := make(map[string]transport.Resource, len(hooks))
	for _, h := range hooks {
		existing[h.Name] = h
	}
	r.webhooks.Load(existing)
	return nil
}

// RegistryUpdate collects changes to a registry and its webhooks. Apply sends
// the registry update first and then flushes the webhook changes.
type RegistryUpdate struct {
	registry  *Registry
	sku       SkuName
	adminUser *bool
	tags      map[string]string
	hooks     []webhookChange
}

// webhookChange is a webhook operation recorded by a RegistryUpdate.
type webhookChange struct {
	op      child.PendingOperation
	name    string
	builder *WebhookBuilder
}

func (u *RegistryUpdate) WithSku(sku SkuName) *RegistryUpdate {
	u.sku = sku
	return u
}

func (u *RegistryUpdate) WithAdminUserEnabled() *RegistryUpdate {
	enabled := true
	u.adminUser = &enabled
	return u
}

func (u *RegistryUpdate) WithAdminUserDisabled() *RegistryUpdate {
	disabled := false
	u.adminUser = &disabled
	return u
}

func (u *RegistryUpdate) WithTag(key, value string) *RegistryUpdate {
	if u.tags == nil {
		u.tags = u.registry.Tags()
		if u.tags == nil {
			u.tags = make(map[string]string)
		}
	}
	u.tags[key] = value
	return u
}

func (u *RegistryUpdate) DefineWebhook(name string) *WebhookBuilder {
	b := &WebhookBuilder{}
	u.hooks = append(u.hooks, webhookChange{op: child.ToBeCreated, name: name, builder: b})
	return b
}

func (u *RegistryUpdate) UpdateWebhook(name string) *WebhookBuilder {
	b := &WebhookBuilder{}
	u.hooks = append(u.hooks, webhookChange{op: child.ToBeUpdated, name: name, builder: b})
	return b
}

func (u *RegistryUpdate) WithoutWebhook(name string) *RegistryUpdate {
	u.hooks = append(u.hooks, webhookChange{op: child.ToBeRemoved, name: name})
	return u
}

// Apply commits the update. The registry itself is only updated when one of
// its own settings changed. Webhook changes are queued when Apply runs; if
// they are invalid or the registry update fails, every queued webhook change
// is discarded and Apply can be called again.
func (u *RegistryUpdate) Apply(ctx context.Context) (*Registry, error) {
	webhooks := u.registry.webhooks
	if err := u.stage(webhooks); err != nil {
		webhooks.Clear()
		return nil, err
	}
	if u.changesRegistry() {
		inner, err := u.registry.scope.Client.Update(ctx, updateRequest(u))
		if err != nil {
			webhooks.Clear()
			return nil, err
		}
		u.registry.inner = inner
	}
	if err := webhooks.Flush(ctx).Err(); err != nil {
		return u.registry, err
	}
	return u.registry, nil
}

func (u *RegistryUpdate) stage(webhooks *child.Collection[transport.Resource]) error {
	var errs []error
	for _, h := range u.hooks {
		var (
			ch  *child.Child[transport.Resource]
			err error
		)
		switch h.op {
		case child.ToBeCreated:
			ch, err = webhooks.Define(h.name)
		case child.ToBeUpdated:
			ch, err = webhooks.Update(h.name)
		case child.ToBeRemoved:
			err = webhooks.Remove(h.name)
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ch != nil {
			h.builder.applyTo(ch.Desired())
		}
	}
	return errors.Join(errs...)
}

func (u *RegistryUpdate) changesRegistry() bool {
	return u.sku != "" || u.adminUser != nil || u.tags != nil
}

func updateRequest(u *RegistryUpdate) transport.Resource {
	r := transport.Resource{ID: u.registry.inner.ID, Tags: u.tags}
	if u.sku != "" {
		r.SKU = &transport.SKU{Name: string(u.sku), Tier: string(u.sku)}
	}
	if u.adminUser != nil {
		r.SetProperty(*u.adminUser, "adminUserEnabled")
	}
	return r
}
