// Package catalog registers the built-in resource kinds so they can be
// declared as armorch.NodeSpec values, for example from a config file.
//
// Declared dependencies are named by the options of each kind:
//   - storageAccount.resourceGroup and registry.resourceGroup name a declared resourceGroup
//   - registry.storageAccount names a declared storageAccount
//
// Resources that already exist are referenced with existingResourceGroup and
// storageAccountId instead, and add no dependency.
package catalog

import (
	"context"
	"fmt"

	"github.com/chenyanchen/armorch"
	"github.com/chenyanchen/armorch/child"
	"github.com/chenyanchen/armorch/containerregistry"
	"github.com/chenyanchen/armorch/resources"
	"github.com/chenyanchen/armorch/storage"
)

const (
	KindResourceGroup  = "resourceGroup"
	KindStorageAccount = "storageAccount"
	KindRegistry       = "registry"
)

type ResourceGroupOptions struct {
	Region string            `json:"region" yaml:"region"`
	Tags   map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type StorageAccountOptions struct {
	ResourceGroup         string            `json:"resourceGroup,omitempty" yaml:"resourceGroup,omitempty"`
	ExistingResourceGroup string            `json:"existingResourceGroup,omitempty" yaml:"existingResourceGroup,omitempty"`
	Region                string            `json:"region,omitempty" yaml:"region,omitempty"`
	Sku                   string            `json:"sku,omitempty" yaml:"sku,omitempty"`
	Kind                  string            `json:"kind,omitempty" yaml:"kind,omitempty"`
	HTTPSOnly             *bool             `json:"httpsOnly,omitempty" yaml:"httpsOnly,omitempty"`
	Tags                  map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type RegistryOptions struct {
	ResourceGroup         string            `json:"resourceGroup,omitempty" yaml:"resourceGroup,omitempty"`
	ExistingResourceGroup string            `json:"existingResourceGroup,omitempty" yaml:"existingResourceGroup,omitempty"`
	Region                string            `json:"region,omitempty" yaml:"region,omitempty"`
	Sku                   string            `json:"sku,omitempty" yaml:"sku,omitempty"`
	AdminUserEnabled      bool              `json:"adminUserEnabled,omitempty" yaml:"adminUserEnabled,omitempty"`
	StorageAccount        string            `json:"storageAccount,omitempty" yaml:"storageAccount,omitempty"`
	StorageAccountID      string            `json:"storageAccountId,omitempty" yaml:"storageAccountId,omitempty"`
	Webhooks              []WebhookOptions  `json:"webhooks,omitempty" yaml:"webhooks,omitempty"`
	Tags                  map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

type WebhookOptions struct {
	Name          string            `json:"name" yaml:"name"`
	ServiceURI    string            `json:"serviceUri" yaml:"serviceUri"`
	Actions       []string          `json:"actions,omitempty" yaml:"actions,omitempty"`
	Status        string            `json:"status,omitempty" yaml:"status,omitempty"`
	Scope         string            `json:"scope,omitempty" yaml:"scope,omitempty"`
	CustomHeaders map[string]string `json:"customHeaders,omitempty" yaml:"customHeaders,omitempty"`
}

// Register adds the built-in kinds to reg. Every resource is created in scope.
func Register(reg *armorch.Registry, scope *resources.Scope, opts ...child.Option) error {
	if scope == nil {
		return fmt.Errorf("register catalog: scope is nil")
	}
	if err := armorch.Register(reg, KindResourceGroup, resourceGroupDefinition(scope)); err != nil {
		return err
	}
	if err := armorch.Register(reg, KindStorageAccount, storageAccountDefinition(scope)); err != nil {
		return err
	}
	return armorch.Register(reg, KindRegistry, registryDefinition(scope, opts...))
}

func resourceGroupDefinition(scope *resources.Scope) armorch.Definition[ResourceGroupOptions, *resources.ResourceGroup] {
	return armorch.Definition[ResourceGroupOptions, *resources.ResourceGroup]{
		Build: func(ctx context.Context, _ armorch.Resolver, opt ResourceGroupOptions) (*resources.ResourceGroup, error) {
			name, err := nameFrom(ctx)
			if err != nil {
				return nil, err
			}
			return resources.DefineResourceGroup(scope, name).
				WithRegion(resources.ParseRegion(opt.Region)).
				WithTags(opt.Tags).
				Create(ctx)
		},
	}
}

func storageAccountDefinition(scope *resources.Scope) armorch.Definition[StorageAccountOptions, *storage.Account] {
	return armorch.Definition[StorageAccountOptions, *storage.Account]{
		Deps: func(opt StorageAccountOptions) ([]armorch.ID, error) {
			return groupDeps(opt.ResourceGroup, opt.ExistingResourceGroup)
		},
		Build: func(ctx context.Context, r armorch.Resolver, opt StorageAccountOptions) (*storage.Account, error) {
			name, err := nameFrom(ctx)
			if err != nil {
				return nil, err
			}
			group, region, err := resolveGroup(ctx, r, opt.ResourceGroup, opt.ExistingResourceGroup, opt.Region)
			if err != nil {
				return nil, err
			}
			def := storage.NewAccounts(scope).Define(name).
				WithExistingResourceGroup(group).
				WithRegion(region)
			if opt.Sku != "" {
				def.WithSku(storage.SkuName(opt.Sku))
			}
			if opt.Kind != "" {
				def.WithKind(storage.Kind(opt.Kind))
			}
			if opt.HTTPSOnly != nil {
				def.WithHTTPSOnly(*opt.HTTPSOnly)
			}
			for k, v := range opt.Tags {
				def.WithTag(k, v)
			}
			return def.Create(ctx)
		},
	}
}

func registryDefinition(scope *resources.Scope, opts ...child.Option) armorch.Definition[RegistryOptions, *containerregistry.Registry] {
	registries := containerregistry.NewRegistries(scope, opts...)
	return armorch.Definition[RegistryOptions, *containerregistry.Registry]{
		Deps: func(opt RegistryOptions) ([]armorch.ID, error) {
			deps, err := groupDeps(opt.ResourceGroup, opt.ExistingResourceGroup)
			if err != nil {
				return nil, err
			}
			if opt.StorageAccount != "" && opt.StorageAccountID != "" {
				return nil, fmt.Errorf("registry: storageAccount and storageAccountId are mutually exclusive")
			}
			if opt.StorageAccount != "" {
				deps = append(deps, armorch.ID{Kind: KindStorageAccount, Name: opt.StorageAccount})
			}
			return deps, nil
		},
		Build: func(ctx context.Context, r armorch.Resolver, opt RegistryOptions) (*containerregistry.Registry, error) {
			name, err := nameFrom(ctx)
			if err != nil {
				return nil, err
			}
			group, region, err := resolveGroup(ctx, r, opt.ResourceGroup, opt.ExistingResourceGroup, opt.Region)
			if err != nil {
				return nil, err
			}
			def := registries.Define(name).
				WithExistingResourceGroup(group).
				WithRegion(region)
			if opt.Sku != "" {
				def.WithSku(containerregistry.SkuName(opt.Sku))
			}
			if opt.AdminUserEnabled {
				def.WithAdminUserEnabled()
			}
			switch {
			case opt.StorageAccount != "":
				account, err := armorch.ResolveAs[*storage.Account](ctx, r, armorch.ID{Kind: KindStorageAccount, Name: opt.StorageAccount})
				if err != nil {
					return nil, err
				}
				def.WithExistingStorageAccount(account.ID())
			case opt.StorageAccountID != "":
				def.WithExistingStorageAccount(opt.StorageAccountID)
			}
			for k, v := range opt.Tags {
				def.WithTag(k, v)
			}
			return def.Create(ctx)
		},
		// Webhooks are created after the registry resolved, so a failing
		// webhook does not fail the registry or its dependents.
		PostRun: func(ctx context.Context, opt RegistryOptions, reg *containerregistry.Registry) error {
			if len(opt.Webhooks) == 0 {
				return nil
			}
			update := reg.Update()
			for _, hook := range opt.Webhooks {
				defineWebhook(update.DefineWebhook(hook.Name), hook)
			}
			_, err := update.Apply(ctx)
			return err
		},
	}
}

func defineWebhook(b *containerregistry.WebhookBuilder, opt WebhookOptions) {
	b.WithServiceURI(opt.ServiceURI)
	if len(opt.Actions) > 0 {
		actions := make([]containerregistry.WebhookAction, 0, len(opt.Actions))
		for _, a := range opt.Actions {
			actions = append(actions, containerregistry.WebhookAction(a))
		}
		b.WithActions(actions...)
	}
	status := containerregistry.WebhookStatusEnabled
	if opt.Status != "" {
		status = containerregistry.WebhookStatus(opt.Status)
	}
	b.WithStatus(status)
	if opt.Scope != "" {
		b.WithRepositoryScope(opt.Scope)
	}
	for k, v := range opt.CustomHeaders {
		b.WithCustomHeader(k, v)
	}
}

func groupDeps(declared, existing string) ([]armorch.ID, error) {
	switch {
	case declared != "" && existing != "":
		return nil, fmt.Errorf("resourceGroup and existingResourceGroup are mutually exclusive")
	case declared != "":
		return []armorch.ID{{Kind: KindResourceGroup, Name: declared}}, nil
	}
	return nil, nil
}

// resolveGroup returns the resource group name and the region to use,
// defaulting the region to the declared group's.
func resolveGroup(ctx context.Context, r armorch.Resolver, declared, existing, region string) (string, resources.Region, error) {
	if declared == "" {
		return existing, resources.ParseRegion(region), nil
	}
	group, err := armorch.ResolveAs[*resources.ResourceGroup](ctx, r, armorch.ID{Kind: KindResourceGroup, Name: declared})
	if err != nil {
		return "", "", err
	}
	if region == "" {
		return group.Name(), group.Region(), nil
	}
	return group.Name(), resources.ParseRegion(region), nil
}

func nameFrom(ctx context.Context) (string, error) {
	id, ok := armorch.IDFromContext(ctx)
	if !ok {
		return "", fmt.Errorf("catalog: build called outside of a deployment")
	}
	return id.Name, nil
}
