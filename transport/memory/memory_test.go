package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyanchen/armorch/resourceid"
	"github.com/chenyanchen/armorch/transport"
)

func TestCreateRequiresParent(t *testing.T) {
	ctx := context.Background()
	c := New()

	rg := resourceid.ResourceGroupID("sub", "rg")
	account := resourceid.ForResource("sub", "rg", "Microsoft.Storage/storageAccounts", "logs")

	_, err := c.Create(ctx, transport.Resource{ID: account, Location: "westus"})
	require.Error(t, err)
	assert.Equal(t, transport.KindNotFound, transport.KindOf(err))

	created, err := c.Create(ctx, transport.Resource{ID: rg, Location: "westus"})
	require.NoError(t, err)
	assert.Equal(t, "rg", created.Name)
	assert.Equal(t, "Succeeded", created.ProvisioningState())

	created, err = c.Create(ctx, transport.Resource{ID: account, Location: "westus"})
	require.NoError(t, err)
	assert.Equal(t, "Microsoft.Storage/storageAccounts", created.Type)

	got, err := c.Get(ctx, account)
	require.NoError(t, err)
	assert.Equal(t, "logs", got.Name)

	assert.Equal(t, []Call{
		{Op: OpCreate, ID: account},
		{Op: OpCreate, ID: rg},
		{Op: OpCreate, ID: account},
		{Op: OpGet, ID: account},
	}, c.Calls())
}

func TestUpdateMergesAndDeleteCascades(t *testing.T) {
	ctx := context.Background()
	c := New()
	rg := resourceid.ResourceGroupID("sub", "rg")
	reg := resourceid.ForResource("sub", "rg", "Microsoft.ContainerRegistry/registries", "acr")
	hook := resourceid.Child(reg, "webhooks", "h1")

	c.Seed(transport.Resource{ID: rg, Location: "westus"})
	_, err := c.Create(ctx, transport.Resource{
		ID:         reg,
		Location:   "westus",
		SKU:        &transport.SKU{Name: "Basic"},
		Properties: map[string]any{"adminUserEnabled": false},
	})
	require.NoError(t, err)
	_, err = c.Create(ctx, transport.Resource{ID: hook, Properties: map[string]any{"serviceUri": "https://a"}})
	require.NoError(t, err)

	_, err = c.Update(ctx, transport.Resource{ID: resourceid.Child(reg, "webhooks", "missing")})
	assert.True(t, transport.IsNotFound(err))

	updated, err := c.Update(ctx, transport.Resource{ID: reg, Properties: map[string]any{"adminUserEnabled": true}})
	require.NoError(t, err)
	assert.Equal(t, true, updated.Properties["adminUserEnabled"])
	assert.Equal(t, "Basic", updated.SKU.Name)

	hooks, err := c.List(ctx, reg, "webhooks")
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, "h1", hooks[0].Name)

	require.NoError(t, c.Delete(ctx, reg))
	_, err = c.Get(ctx, hook)
	assert.True(t, transport.IsNotFound(err))
	assert.Len(t, c.Resources(), 1)
}

func TestFailOn(t *testing.T) {
	ctx := context.Background()
	c := New()
	rg := resourceid.ResourceGroupID("sub", "rg")
	boom := &transport.Error{Kind: transport.KindThrottled, Err: errors.New("slow down")}
	c.FailOn(OpCreate, rg, boom)

	_, err := c.Create(ctx, transport.Resource{ID: rg})
	require.Error(t, err)
	assert.Equal(t, transport.KindThrottled, transport.KindOf(err))

	c.ClearFailures()
	_, err = c.Create(ctx, transport.Resource{ID: rg})
	require.NoError(t, err)

	_, err = c.Get(ctx, "bogus")
	assert.Equal(t, transport.KindInvalid, transport.KindOf(err))
}
