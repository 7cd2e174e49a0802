package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyanchen/armorch/resources"
	"github.com/chenyanchen/armorch/transport"
	"github.com/chenyanchen/armorch/transport/memory"
)

func TestCreateAccountWithNewResourceGroup(t *testing.T) {
	ctx := context.Background()
	client := memory.New()
	scope := resources.NewScope("sub", client)

	rg := resources.DefineResourceGroup(scope, "rg1").WithRegion(resources.RegionWestEurope)
	account, err := NewAccounts(scope).Define("logs").
		WithNewResourceGroup(rg).
		WithSku(SkuStandardGRS).
		WithTag("env", "dev").
		Create(ctx)
	require.NoError(t, err)

	assert.Equal(t, "/subscriptions/sub/resourceGroups/rg1/providers/Microsoft.Storage/storageAccounts/logs", account.ID())
	assert.Equal(t, resources.RegionWestEurope, account.Region(), "region defaults to the new group's")
	assert.Equal(t, SkuStandardGRS, account.Sku())
	assert.Equal(t, KindStorageV2, account.Kind())
	assert.True(t, account.HTTPSOnly())
	assert.Equal(t, "rg1", account.ResourceGroup())

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, memory.Call{Op: memory.OpCreate, ID: rg.ID()}, calls[0])
	assert.Equal(t, memory.Call{Op: memory.OpCreate, ID: account.ID()}, calls[1])
}

func TestCreateAccountInExistingGroup(t *testing.T) {
	ctx := context.Background()
	client := memory.New()
	scope := resources.NewScope("sub", client)

	_, err := NewAccounts(scope).Define("logs").
		WithExistingResourceGroup("missing").
		WithRegion(resources.RegionEastUS).
		Create(ctx)
	require.Error(t, err)
	assert.True(t, transport.IsNotFound(err))

	client.Seed(transport.Resource{ID: "/subscriptions/sub/resourceGroups/existing", Location: "eastus"})
	account, err := NewAccounts(scope).Define("logs").
		WithExistingResourceGroup("existing").
		WithRegion(resources.RegionEastUS).
		Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, "existing", account.ResourceGroup())
}

func TestAccountRequiredFields(t *testing.T) {
	scope := resources.NewScope("sub", memory.New())

	_, err := NewAccounts(scope).Define("logs").WithRegion(resources.RegionEastUS).Create(context.Background())
	var required *resources.RequiredFieldError
	require.True(t, errors.As(err, &required))
	assert.Equal(t, "resource group", required.Field)

	_, err = NewAccounts(scope).Define("logs").WithExistingResourceGroup("rg").Create(context.Background())
	require.True(t, errors.As(err, &required))
	assert.Equal(t, "region", required.Field)
}

func TestAccountUpdateSendsOnlyChanges(t *testing.T) {
	ctx := context.Background()
	client := memory.New()
	scope := resources.NewScope("sub", client)
	rg := resources.DefineResourceGroup(scope, "rg1").WithRegion(resources.RegionEastUS)

	account, err := NewAccounts(scope).Define("logs").WithNewResourceGroup(rg).WithTag("env", "dev").Create(ctx)
	require.NoError(t, err)

	account, err = account.Update().WithHTTPSOnly(false).WithTag("team", "infra").Apply(ctx)
	require.NoError(t, err)
	assert.False(t, account.HTTPSOnly())
	assert.Equal(t, SkuStandardLRS, account.Sku())
	assert.Equal(t, map[string]string{"env": "dev", "team": "infra"}, account.Tags())

	fetched, err := NewAccounts(scope).GetByID(ctx, account.ID())
	require.NoError(t, err)
	assert.False(t, fetched.HTTPSOnly())

	require.NoError(t, account.Delete(ctx))
	assert.Error(t, account.Refresh(ctx))
}

func TestExpandableValues(t *testing.T) {
	assert.True(t, SkuPremiumLRS.IsKnown())
	assert.False(t, SkuName("Exotic_LRS").IsKnown())
	assert.True(t, KindBlobStorage.IsKnown())
	assert.False(t, Kind("Tape").IsKnown())
}
