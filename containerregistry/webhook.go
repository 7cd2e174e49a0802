package containerregistry

import (
	"context"

	"github.com/chenyanchen/armorch/child"
	"github.com/chenyanchen/armorch/resourceid"
	"github.com/chenyanchen/armorch/transport"
)

// webhookOperations issues webhook calls under one registry.
type webhookOperations struct {
	client     transport.Client
	registryID func() string
	location   func() string
}

var _ child.Operations[transport.Resource] = (*webhookOperations)(nil)

func (o *webhookOperations) id(name string) string {
	return resourceid.Child(o.registryID(), webhookType, name)
}

func (o *webhookOperations) CreateChild(ctx context.Context, name string, desired transport.Resource) (transport.Resource, error) {
	req := desired.Clone()
	req.ID = o.id(name)
	req.Name = name
	if req.Location == "" {
		req.Location = o.location()
	}
	return o.client.Create(ctx, req)
}

func (o *webhookOperations) UpdateChild(ctx context.Context, name string, current, desired transport.Resource) (transport.Resource, error) {
	req := transport.Resource{ID: current.ID, Tags: desired.Tags}
	if req.ID == "" {
		req.ID = o.id(name)
	}
	for k, v := range desired.Clone().Properties {
		if k == "provisioningState" {
			continue
		}
		req.SetProperty(v, k)
	}
	return o.client.Update(ctx, req)
}

func (o *webhookOperations) DeleteChild(ctx context.Context, name string, current transport.Resource) error {
	id := current.ID
	if id == "" {
		id = o.id(name)
	}
	return o.client.Delete(ctx, id)
}

// WebhookBuilder sets the desired state of a webhook being defined or updated.
// Builders of a registry definition write to the queued webhook right away.
// Builders of a registry update record their changes until Apply stages them.
type WebhookBuilder struct {
	child *child.Child[transport.Resource]
	edits []func(*transport.Resource)
}

func (b *WebhookBuilder) edit(fn func(*transport.Resource)) *WebhookBuilder {
	b.edits = append(b.edits, fn)
	if b.child != nil {
		fn(b.child.Desired())
	}
	return b
}

func (b *WebhookBuilder) applyTo(r *transport.Resource) {
	for _, fn := range b.edits {
		fn(r)
	}
}

func (b *WebhookBuilder) set(value any, path ...string) *WebhookBuilder {
	return b.edit(func(r *transport.Resource) {
		r.SetProperty(value, path...)
	})
}

func (b *WebhookBuilder) WithServiceURI(uri string) *WebhookBuilder {
	return b.set(uri, "serviceUri")
}

func (b *WebhookBuilder) WithActions(actions ...WebhookAction) *WebhookBuilder {
	values := make([]string, 0, len(actions))
	for _, a := range actions {
		values = append(values, string(a))
	}
	return b.set(values, "actions")
}

func (b *WebhookBuilder) WithStatus(status WebhookStatus) *WebhookBuilder {
	return b.set(string(status), "status")
}

// WithRepositoryScope limits the webhook to matching repositories, such as "foo:*".
func (b *WebhookBuilder) WithRepositoryScope(scope string) *WebhookBuilder {
	return b.set(scope, "scope")
}

func (b *WebhookBuilder) WithCustomHeader(name, value string) *WebhookBuilder {
	return b.edit(func(r *transport.Resource) {
		headers, _ := r.Property("customHeaders")
		m, ok := headers.(map[string]any)
		if !ok {
			m = make(map[string]any)
		}
		m[name] = value
		r.SetProperty(m, "customHeaders")
	})
}

func (b *WebhookBuilder) WithTag(key, value string) *WebhookBuilder {
	return b.edit(func(r *transport.Resource) {
		if r.Tags == nil {
			r.Tags = make(map[string]string)
		}
		r.Tags[key] = value
	})
}

// Webhook is a materialized webhook.
type Webhook struct {
	inner transport.Resource
}

func (w *Webhook) ID() string                { return w.inner.ID }
func (w *Webhook) Name() string              { return w.inner.Name }
func (w *Webhook) ServiceURI() string        { return w.inner.StringProperty("serviceUri") }
func (w *Webhook) RepositoryScope() string   { return w.inner.StringProperty("scope") }
func (w *Webhook) Status() WebhookStatus     { return WebhookStatus(w.inner.StringProperty("status")) }
func (w *Webhook) ProvisioningState() string { return w.inner.ProvisioningState() }
func (w *Webhook) Inner() transport.Resource { return w.inner.Clone() }

func (w *Webhook) Actions() []WebhookAction {
	v, _ := w.inner.Property("actions")
	var out []WebhookAction
	switch actions := v.(type) {
	case []string:
		for _, a := range actions {
			out = append(out, WebhookAction(a))
		}
	case []any:
		for _, a := range actions {
			if s, ok := a.(string); ok {
				out = append(out, WebhookAction(s))
			}
		}
	}
	return out
}
