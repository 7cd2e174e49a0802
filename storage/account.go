// Package storage defines storage accounts.
package storage

import (
	"context"
	"maps"

	"github.com/chenyanchen/armorch"
	"github.com/chenyanchen/armorch/resourceid"
	"github.com/chenyanchen/armorch/resources"
	"github.com/chenyanchen/armorch/transport"
)

const ResourceType = "Microsoft.Storage/storageAccounts"

type SkuName string

const (
	SkuStandardLRS   SkuName = "Standard_LRS"
	SkuStandardGRS   SkuName = "Standard_GRS"
	SkuStandardRAGRS SkuName = "Standard_RAGRS"
	SkuStandardZRS   SkuName = "Standard_ZRS"
	SkuPremiumLRS    SkuName = "Premium_LRS"
)

func PossibleSkuNameValues() []SkuName {
	return []SkuName{SkuStandardLRS, SkuStandardGRS, SkuStandardRAGRS, SkuStandardZRS, SkuPremiumLRS}
}

func (s SkuName) IsKnown() bool {
	for _, v := range PossibleSkuNameValues() {
		if v == s {
			return true
		}
	}
	return false
}

type Kind string

const (
	KindStorage          Kind = "Storage"
	KindStorageV2        Kind = "StorageV2"
	KindBlobStorage      Kind = "BlobStorage"
	KindBlockBlobStorage Kind = "BlockBlobStorage"
	KindFileStorage      Kind = "FileStorage"
)

func PossibleKindValues() []Kind {
	return []Kind{KindStorage, KindStorageV2, KindBlobStorage, KindBlockBlobStorage, KindFileStorage}
}

func (k Kind) IsKnown() bool {
	for _, v := range PossibleKindValues() {
		if v == k {
			return true
		}
	}
	return false
}

// Accounts is the entry point for storage accounts of one scope.
type Accounts struct {
	scope *resources.Scope
}

func NewAccounts(scope *resources.Scope) *Accounts {
	return &Accounts{scope: scope}
}

// Define starts the definition of a new storage account.
func (a *Accounts) Define(name string) *AccountDefinition {
	d := &AccountDefinition{
		scope: a.scope,
		name:  name,
		sku:   SkuStandardLRS,
		kind:  KindStorageV2,
		https: true,
	}
	d.node = armorch.NewNode("storageAccount/"+name, resources.NewTask(d.prepare, d.create),
		armorch.WithEquivalenceFunc(func() string {
			if !d.group.IsSet() {
				return ""
			}
			return resourceid.Key(d.ID())
		}))
	return d
}

// GetByID fetches an existing storage account.
func (a *Accounts) GetByID(ctx context.Context, id string) (*Account, error) {
	inner, err := a.scope.Client.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Account{scope: a.scope, inner: inner}, nil
}

// AccountDefinition describes a storage account to create.
type AccountDefinition struct {
	scope  *resources.Scope
	name   string
	region resources.Region
	group  resources.GroupRef
	sku    SkuName
	kind   Kind
	https  bool
	tags   map[string]string
	node   *armorch.Node
}

func (d *AccountDefinition) WithRegion(region resources.Region) *AccountDefinition {
	d.region = region
	return d
}

// WithNewResourceGroup places the account in a resource group created in the same graph.
func (d *AccountDefinition) WithNewResourceGroup(group *resources.ResourceGroupDefinition) *AccountDefinition {
	d.group = resources.NewGroupRef(group)
	return d
}

func (d *AccountDefinition) WithExistingResourceGroup(name string) *AccountDefinition {
	d.group = resources.ExistingGroupRef(name)
	return d
}

func (d *AccountDefinition) WithSku(sku SkuName) *AccountDefinition {
	d.sku = sku
	return d
}

func (d *AccountDefinition) WithKind(kind Kind) *AccountDefinition {
	d.kind = kind
	return d
}

func (d *AccountDefinition) WithHTTPSOnly(enabled bool) *AccountDefinition {
	d.https = enabled
	return d
}

func (d *AccountDefinition) WithTag(key, value string) *AccountDefinition {
	if d.tags == nil {
		d.tags = make(map[string]string)
	}
	d.tags[key] = value
	return d
}

func (d *AccountDefinition) Name() string {
	return d.name
}

func (d *AccountDefinition) ID() string {
	return resourceid.ForResource(d.scope.SubscriptionID, d.group.Name(), ResourceType, d.name)
}

func (d *AccountDefinition) Node() *armorch.Node {
	return d.node
}

func (d *AccountDefinition) Create(ctx context.Context, opts ...armorch.CreateOption) (*Account, error) {
	return resources.CreateRoot[*Account](ctx, d.node, opts...)
}

func (d *AccountDefinition) prepare(_ context.Context, n *armorch.Node) error {
	if d.region == "" {
		d.region = d.group.DefaultRegion()
	}
	switch {
	case d.name == "":
		return &resources.RequiredFieldError{Resource: "storage account", Field: "name"}
	case !d.group.IsSet():
		return &resources.RequiredFieldError{Resource: "storage account " + d.name, Field: "resource group"}
	case d.region == "":
		return &resources.RequiredFieldError{Resource: "storage account " + d.name, Field: "region"}
	}
	d.group.Attach(n)
	return nil
}

func (d *AccountDefinition) create(ctx context.Context, _ armorch.Lookup) (any, error) {
	inner, err := d.scope.Client.Create(ctx, createRequest(d))
	if err != nil {
		return nil, err
	}
	return &Account{scope: d.scope, inner: inner}, nil
}

func createRequest(d *AccountDefinition) transport.Resource {
	r := transport.Resource{
		ID:       d.ID(),
		Name:     d.name,
		Type:     ResourceType,
		Kind:     string(d.kind),
		Location: d.region.String(),
		Tags:     maps.Clone(d.tags),
		SKU:      &transport.SKU{Name: string(d.sku)},
	}
	r.SetProperty(d.https, "supportsHttpsTrafficOnly")
	return r
}

// Account is a created or fetched storage account.
type Account struct {
	scope *resources.Scope
	inner transport.Resource
}

func (a *Account) ID() string                { return a.inner.ID }
func (a *Account) Name() string              { return a.inner.Name }
func (a *Account) Region() resources.Region  { return resources.ParseRegion(a.inner.Location) }
func (a *Account) ResourceGroup() string     { return resourceid.ResourceGroup(a.inner.ID) }
func (a *Account) Kind() Kind                { return Kind(a.inner.Kind) }
func (a *Account) Tags() map[string]string   { return maps.Clone(a.inner.Tags) }
func (a *Account) ProvisioningState() string { return a.inner.ProvisioningState() }
func (a *Account) Inner() transport.Resource { return a.inner.Clone() }

func (a *Account) Sku() SkuName {
	if a.inner.SKU == nil {
		return ""
	}
	return SkuName(a.inner.SKU.Name)
}

func (a *Account) HTTPSOnly() bool {
	v, _ := a.inner.Property("supportsHttpsTrafficOnly")
	b, _ := v.(bool)
	return b
}

func (a *Account) Refresh(ctx context.Context) error {
	inner, err := a.scope.Client.Get(ctx, a.inner.ID)
	if err != nil {
		return err
	}
	a.inner = inner
	return nil
}

func (a *Account) Delete(ctx context.Context) error {
	return a.scope.Client.Delete(ctx, a.inner.ID)
}

func (a *Account) Update() *AccountUpdate {
	return &AccountUpdate{account: a}
}

// AccountUpdate collects changes to an existing account. Only fields that
// were set are sent.
type AccountUpdate struct {
	account *Account
	sku     SkuName
	https   *bool
	tags    map[string]string
}

func (u *AccountUpdate) WithSku(sku SkuName) *AccountUpdate {
	u.sku = sku
	return u
}

func (u *AccountUpdate) WithHTTPSOnly(enabled bool) *AccountUpdate {
	u.https = &enabled
	return u
}

func (u *AccountUpdate) WithTag(key, value string) *AccountUpdate {
	if u.tags == nil {
		u.tags = u.account.Tags()
		if u.tags == nil {
			u.tags = make(map[string]string)
		}
	}
	u.tags[key] = value
	return u
}

func (u *AccountUpdate) Apply(ctx context.Context) (*Account, error) {
	inner, err := u.account.scope.Client.Update(ctx, updateRequest(u))
	if err != nil {
		return nil, err
	}
	u.account.inner = inner
	return u.account, nil
}

func updateRequest(u *AccountUpdate) transport.Resource {
	r := transport.Resource{ID: u.account.inner.ID, Tags: u.tags}
	if u.sku != "" {
		r.SKU = &transport.SKU{Name: string(u.sku)}
	}
	if u.https != nil {
		r.SetProperty(*u.https, "supportsHttpsTrafficOnly")
	}
	return r
}
