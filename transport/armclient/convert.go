package armclient

import (
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"

	"github.com/chenyanchen/armorch/resourceid"
	"github.com/chenyanchen/armorch/transport"
)

func toGeneric(r transport.Resource) armresources.GenericResource {
	g := armresources.GenericResource{
		Tags: toPtrMap(r.Tags),
	}
	if r.Location != "" {
		g.Location = to.Ptr(r.Location)
	}
	if r.Kind != "" {
		g.Kind = to.Ptr(r.Kind)
	}
	if r.SKU != nil {
		g.SKU = &armresources.SKU{Name: to.Ptr(r.SKU.Name)}
		if r.SKU.Tier != "" {
			g.SKU.Tier = to.Ptr(r.SKU.Tier)
		}
	}
	if len(r.Properties) > 0 {
		props := r.Clone().Properties
		delete(props, "provisioningState")
		g.Properties = props
	}
	return g
}

func fromGeneric(g armresources.GenericResource) transport.Resource {
	r := transport.Resource{
		ID:       deref(g.ID),
		Name:     deref(g.Name),
		Type:     deref(g.Type),
		Kind:     deref(g.Kind),
		Location: deref(g.Location),
		Tags:     fromPtrMap(g.Tags),
	}
	if g.SKU != nil {
		r.SKU = &transport.SKU{Name: deref(g.SKU.Name), Tier: deref(g.SKU.Tier)}
	}
	r.Properties = propertiesOf(g.Properties)
	return r
}

func toGroup(r transport.Resource) armresources.ResourceGroup {
	return armresources.ResourceGroup{
		Location: to.Ptr(r.Location),
		Tags:     toPtrMap(r.Tags),
	}
}

func fromGroup(g armresources.ResourceGroup) transport.Resource {
	r := transport.Resource{
		ID:       deref(g.ID),
		Name:     deref(g.Name),
		Type:     deref(g.Type),
		Location: deref(g.Location),
		Tags:     fromPtrMap(g.Tags),
	}
	if r.Type == "" {
		r.Type = resourceid.ResourceGroupType
	}
	if g.Properties != nil && g.Properties.ProvisioningState != nil {
		r.SetProperty(*g.Properties.ProvisioningState, "provisioningState")
	}
	return r
}

// propertiesOf turns the loosely typed properties of a generic resource into
// a JSON object map.
func propertiesOf(v any) map[string]any {
	switch p := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return p
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil
		}
		var out map[string]any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil
		}
		return out
	}
}

func toPtrMap(m map[string]string) map[string]*string {
	if m == nil {
		return nil
	}
	out := make(map[string]*string, len(m))
	for k, v := range m {
		out[k] = to.Ptr(v)
	}
	return out
}

func fromPtrMap(m map[string]*string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = deref(v)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
