// Package resourceid builds and inspects Azure Resource Manager resource ids.
package resourceid

import (
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
)

const ResourceGroupType = "Microsoft.Resources/resourceGroups"

// Parse parses an ARM resource id.
func Parse(id string) (*arm.ResourceID, error) {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return nil, fmt.Errorf("parse resource id %q: %w", id, err)
	}
	return rid, nil
}

func SubscriptionID(sub string) string {
	return "/subscriptions/" + sub
}

func ResourceGroupID(sub, rg string) string {
	return SubscriptionID(sub) + "/resourceGroups/" + rg
}

// ForResource returns the id of a top level resource, resourceType being
// "Namespace/type", for example Microsoft.Storage/storageAccounts.
func ForResource(sub, rg, resourceType, name string) string {
	return ResourceGroupID(sub, rg) + "/providers/" + resourceType + "/" + name
}

// Child returns the id of a nested resource, for example the webhook of a registry.
func Child(parentID, childType, name string) string {
	return strings.TrimSuffix(parentID, "/") + "/" + childType + "/" + name
}

// Name returns the last segment of id.
func Name(id string) string {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return ""
	}
	return rid.Name
}

// ResourceGroup returns the resource group name of id.
func ResourceGroup(id string) string {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return ""
	}
	return rid.ResourceGroupName
}

// Subscription returns the subscription id of id.
func Subscription(id string) string {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return ""
	}
	return rid.SubscriptionID
}

// Type returns the full resource type of id, such as
// Microsoft.ContainerRegistry/registries/webhooks.
func Type(id string) string {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return ""
	}
	return rid.ResourceType.String()
}

// IsResourceGroup reports whether id addresses a resource group.
func IsResourceGroup(id string) bool {
	return strings.EqualFold(Type(id), ResourceGroupType)
}

// Parent returns the id of the resource that contains id: the parent resource
// for nested resources, the resource group for top level resources and the
// subscription for resource groups.
func Parent(id string) (string, error) {
	rid, err := Parse(id)
	if err != nil {
		return "", err
	}
	if rid.Parent == nil {
		return "", fmt.Errorf("resource id %q has no parent", id)
	}
	return rid.Parent.String(), nil
}

// Namespace returns the provider namespace of id, such as Microsoft.Storage.
func Namespace(id string) string {
	rid, err := arm.ParseResourceID(id)
	if err != nil {
		return ""
	}
	return rid.ResourceType.Namespace
}

// Key returns the canonical comparison form of id. Resource ids are
// case-insensitive.
func Key(id string) string {
	return strings.ToLower(strings.TrimSuffix(id, "/"))
}

func Equal(a, b string) bool {
	return Key(a) == Key(b)
}
