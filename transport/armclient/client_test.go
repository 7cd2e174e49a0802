package armclient

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	azfake "github.com/Azure/azure-sdk-for-go/sdk/azcore/fake"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyanchen/armorch/resourceid"
	"github.com/chenyanchen/armorch/transport"
)

const testSubscription = "00000000-0000-0000-0000-000000000000"

func newTestClient(t *testing.T, srv *fake.ServerFactory, opts Options) *Client {
	t.Helper()
	opts.ClientOptions = &arm.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: fake.NewServerFactoryTransport(srv),
			Retry:     policy.RetryOptions{MaxRetries: -1},
		},
	}
	c, err := New(testSubscription, &azfake.TokenCredential{}, opts)
	require.NoError(t, err)
	return c
}

func registryProvider(calls *int32) fake.ProvidersServer {
	return fake.ProvidersServer{
		Get: func(_ context.Context, namespace string, _ *armresources.ProvidersClientGetOptions) (resp azfake.Responder[armresources.ProvidersClientGetResponse], errResp azfake.ErrorResponder) {
			atomic.AddInt32(calls, 1)
			resp.SetResponse(http.StatusOK, armresources.ProvidersClientGetResponse{
				Provider: armresources.Provider{
					Namespace: to.Ptr(namespace),
					ResourceTypes: []*armresources.ProviderResourceType{
						{
							ResourceType: to.Ptr("registries"),
							APIVersions:  []*string{to.Ptr("2019-05-01"), to.Ptr("2023-07-01"), to.Ptr("2024-11-01-preview")},
						},
						{
							ResourceType: to.Ptr("registries/webhooks"),
							APIVersions:  []*string{to.Ptr("2023-07-01")},
						},
					},
				},
			}, nil)
			return
		},
	}
}

func TestCreateGenericResourceResolvesAPIVersionOnce(t *testing.T) {
	id := resourceid.ForResource(testSubscription, "rg", "Microsoft.ContainerRegistry/registries", "acr1")
	var providerCalls int32
	var gotVersion string
	var gotParams armresources.GenericResource

	srv := &fake.ServerFactory{
		ProvidersServer: registryProvider(&providerCalls),
		Server: fake.Server{
			BeginCreateOrUpdateByID: func(_ context.Context, resourceID string, apiVersion string, params armresources.GenericResource, _ *armresources.ClientBeginCreateOrUpdateByIDOptions) (resp azfake.PollerResponder[armresources.ClientCreateOrUpdateByIDResponse], errResp azfake.ErrorResponder) {
				gotVersion = apiVersion
				gotParams = params
				params.ID = to.Ptr(resourceID)
				params.Name = to.Ptr("acr1")
				resp.SetTerminalResponse(http.StatusOK, armresources.ClientCreateOrUpdateByIDResponse{GenericResource: params}, nil)
				return
			},
			GetByID: func(_ context.Context, resourceID string, apiVersion string, _ *armresources.ClientGetByIDOptions) (resp azfake.Responder[armresources.ClientGetByIDResponse], errResp azfake.ErrorResponder) {
				resp.SetResponse(http.StatusOK, armresources.ClientGetByIDResponse{GenericResource: armresources.GenericResource{
					ID:       to.Ptr(resourceID),
					Location: to.Ptr("westus"),
				}}, nil)
				return
			},
		},
	}
	c := newTestClient(t, srv, Options{})

	in := transport.Resource{
		ID:       id,
		Location: "westus",
		SKU:      &transport.SKU{Name: "Classic"},
	}
	in.SetProperty("/subscriptions/x/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/st", "storageAccount", "id")

	out, err := c.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "2023-07-01", gotVersion)
	require.NotNil(t, gotParams.SKU)
	assert.Equal(t, "Classic", *gotParams.SKU.Name)
	assert.Equal(t, id, out.ID)
	assert.Equal(t, "/subscriptions/x/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/st", out.StringProperty("storageAccount", "id"))

	_, err = c.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&providerCalls))
}

func TestPinnedAPIVersionSkipsProviderLookup(t *testing.T) {
	id := resourceid.Child(resourceid.ForResource(testSubscription, "rg", "Microsoft.ContainerRegistry/registries", "acr1"), "webhooks", "hook1")
	var gotVersion string
	srv := &fake.ServerFactory{
		Server: fake.Server{
			GetByID: func(_ context.Context, resourceID string, apiVersion string, _ *armresources.ClientGetByIDOptions) (resp azfake.Responder[armresources.ClientGetByIDResponse], errResp azfake.ErrorResponder) {
				gotVersion = apiVersion
				resp.SetResponse(http.StatusOK, armresources.ClientGetByIDResponse{GenericResource: armresources.GenericResource{ID: to.Ptr(resourceID)}}, nil)
				return
			},
		},
	}
	c := newTestClient(t, srv, Options{APIVersions: map[string]string{
		"Microsoft.ContainerRegistry/registries/webhooks": "2022-12-01",
	}})

	_, err := c.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "2022-12-01", gotVersion)
}

func TestResourceGroupsUseGroupsAPI(t *testing.T) {
	var gotName string
	srv := &fake.ServerFactory{
		ResourceGroupsServer: fake.ResourceGroupsServer{
			CreateOrUpdate: func(_ context.Context, name string, params armresources.ResourceGroup, _ *armresources.ResourceGroupsClientCreateOrUpdateOptions) (resp azfake.Responder[armresources.ResourceGroupsClientCreateOrUpdateResponse], errResp azfake.ErrorResponder) {
				gotName = name
				params.ID = to.Ptr(resourceid.ResourceGroupID(testSubscription, name))
				params.Name = to.Ptr(name)
				params.Properties = &armresources.ResourceGroupProperties{ProvisioningState: to.Ptr("Succeeded")}
				resp.SetResponse(http.StatusCreated, armresources.ResourceGroupsClientCreateOrUpdateResponse{ResourceGroup: params}, nil)
				return
			},
			Get: func(_ context.Context, name string, _ *armresources.ResourceGroupsClientGetOptions) (resp azfake.Responder[armresources.ResourceGroupsClientGetResponse], errResp azfake.ErrorResponder) {
				errResp.SetResponseError(http.StatusNotFound, "ResourceGroupNotFound")
				return
			},
		},
	}
	c := newTestClient(t, srv, Options{})

	rg := resourceid.ResourceGroupID(testSubscription, "rg1")
	out, err := c.Create(context.Background(), transport.Resource{ID: rg, Location: "eastus", Tags: map[string]string{"env": "dev"}})
	require.NoError(t, err)
	assert.Equal(t, "rg1", gotName)
	assert.Equal(t, "eastus", out.Location)
	assert.Equal(t, "dev", out.Tags["env"])
	assert.Equal(t, "Succeeded", out.ProvisioningState())

	_, err = c.Get(context.Background(), rg)
	require.Error(t, err)
	assert.True(t, transport.IsNotFound(err))
}

func TestCreateMapsConflict(t *testing.T) {
	id := resourceid.ForResource(testSubscription, "rg", "Microsoft.ContainerRegistry/registries", "acr1")
	srv := &fake.ServerFactory{
		Server: fake.Server{
			BeginCreateOrUpdateByID: func(_ context.Context, _ string, _ string, _ armresources.GenericResource, _ *armresources.ClientBeginCreateOrUpdateByIDOptions) (resp azfake.PollerResponder[armresources.ClientCreateOrUpdateByIDResponse], errResp azfake.ErrorResponder) {
				errResp.SetResponseError(http.StatusConflict, "AnotherOperationInProgress")
				return
			},
		},
	}
	c := newTestClient(t, srv, Options{APIVersions: map[string]string{"Microsoft.ContainerRegistry/registries": "2023-07-01"}})

	_, err := c.Create(context.Background(), transport.Resource{ID: id, Location: "westus"})
	require.Error(t, err)
	assert.Equal(t, transport.KindConflict, transport.KindOf(err))
	var respErr *azcore.ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, "AnotherOperationInProgress", respErr.ErrorCode)
}

func TestKindOfStatus(t *testing.T) {
	for status, want := range map[int]transport.Kind{
		400: transport.KindInvalid,
		404: transport.KindNotFound,
		409: transport.KindConflict,
		412: transport.KindConflict,
		422: transport.KindInvalid,
		429: transport.KindThrottled,
		503: transport.KindUnavailable,
		401: transport.KindUnknown,
	} {
		assert.Equal(t, want, kindOf(status), "status %d", status)
	}
	assert.Equal(t, transport.KindUnknown, transport.KindOf(mapError("get", "/x", errors.New("dial tcp"))))
}

func TestLatestVersion(t *testing.T) {
	assert.Equal(t, "2023-07-01", latestVersion([]*string{to.Ptr("2019-05-01"), to.Ptr("2023-07-01"), to.Ptr("2024-01-01-preview")}))
	assert.Equal(t, "2024-01-01-preview", latestVersion([]*string{to.Ptr("2023-01-01-preview"), to.Ptr("2024-01-01-preview")}))
	assert.Empty(t, latestVersion(nil))
}

func TestConversionRoundTrip(t *testing.T) {
	in := transport.Resource{
		ID:       "/subscriptions/s/resourceGroups/rg/providers/Microsoft.Storage/storageAccounts/st",
		Location: "westus",
		Kind:     "StorageV2",
		Tags:     map[string]string{"team": "infra"},
		SKU:      &transport.SKU{Name: "Standard_LRS"},
		Properties: map[string]any{
			"supportsHttpsTrafficOnly": true,
			"provisioningState":        "Succeeded",
		},
	}
	g := toGeneric(in)
	assert.Nil(t, g.ID, "the id travels in the request path")
	assert.Equal(t, "StorageV2", *g.Kind)
	props := g.Properties.(map[string]any)
	assert.NotContains(t, props, "provisioningState")
	assert.Contains(t, in.Properties, "provisioningState")

	g.ID = to.Ptr(in.ID)
	out := fromGeneric(g)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, "infra", out.Tags["team"])
	assert.Equal(t, "Standard_LRS", out.SKU.Name)
	assert.Equal(t, true, out.Properties["supportsHttpsTrafficOnly"])

	type typed struct {
		ServiceURI string `json:"serviceUri"`
	}
	assert.Equal(t, map[string]any{"serviceUri": "https://x"}, propertiesOf(typed{ServiceURI: "https://x"}))
}
