// Package armclient implements transport.Client against Azure Resource Manager
// with the generic resources API of armresources.
package armclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/arm"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/resourcemanager/resources/armresources"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/chenyanchen/armorch/resourceid"
	"github.com/chenyanchen/armorch/transport"
)

type ResourcesClient interface {
	BeginCreateOrUpdateByID(ctx context.Context, resourceID string, apiVersion string, parameters armresources.GenericResource,
		options *armresources.ClientBeginCreateOrUpdateByIDOptions) (
		*runtime.Poller[armresources.ClientCreateOrUpdateByIDResponse], error)
	BeginUpdateByID(ctx context.Context, resourceID string, apiVersion string, parameters armresources.GenericResource,
		options *armresources.ClientBeginUpdateByIDOptions) (
		*runtime.Poller[armresources.ClientUpdateByIDResponse], error)
	BeginDeleteByID(ctx context.Context, resourceID string, apiVersion string,
		options *armresources.ClientBeginDeleteByIDOptions) (
		*runtime.Poller[armresources.ClientDeleteByIDResponse], error)
	GetByID(ctx context.Context, resourceID string, apiVersion string, options *armresources.ClientGetByIDOptions) (
		armresources.ClientGetByIDResponse, error)
}

type ResourceGroupsClient interface {
	CreateOrUpdate(ctx context.Context, resourceGroupName string, parameters armresources.ResourceGroup,
		options *armresources.ResourceGroupsClientCreateOrUpdateOptions) (
		armresources.ResourceGroupsClientCreateOrUpdateResponse, error)
	Update(ctx context.Context, resourceGroupName string, parameters armresources.ResourceGroupPatchable,
		options *armresources.ResourceGroupsClientUpdateOptions) (
		armresources.ResourceGroupsClientUpdateResponse, error)
	BeginDelete(ctx context.Context, resourceGroupName string,
		options *armresources.ResourceGroupsClientBeginDeleteOptions) (
		*runtime.Poller[armresources.ResourceGroupsClientDeleteResponse], error)
	Get(ctx context.Context, resourceGroupName string, options *armresources.ResourceGroupsClientGetOptions) (
		armresources.ResourceGroupsClientGetResponse, error)
}

type ProvidersClient interface {
	Get(ctx context.Context, resourceProviderNamespace string, options *armresources.ProvidersClientGetOptions) (
		armresources.ProvidersClientGetResponse, error)
}

var (
	_ ResourcesClient      = (*armresources.Client)(nil)
	_ ResourceGroupsClient = (*armresources.ResourceGroupsClient)(nil)
	_ ProvidersClient      = (*armresources.ProvidersClient)(nil)

	_ transport.Client = (*Client)(nil)
)

// Options configures a Client.
type Options struct {
	// APIVersions pins the api-version per resource type, such as
	// "Microsoft.Storage/storageAccounts". Types not listed are looked up
	// from the resource provider.
	APIVersions map[string]string
	// PollFrequency is the interval between long-running operation polls.
	PollFrequency time.Duration
	ClientOptions *arm.ClientOptions
}

// Client issues generic resource operations. Resource groups go through the
// resource groups API, everything else through the by-id API.
type Client struct {
	resources ResourcesClient
	groups    ResourceGroupsClient
	versions  *apiVersions
	pollFreq  time.Duration
}

// New creates a Client for one subscription.
func New(subscriptionID string, cred azcore.TokenCredential, opts Options) (*Client, error) {
	if subscriptionID == "" {
		return nil, errors.New("new arm client: subscription id is empty")
	}
	factory, err := armresources.NewClientFactory(subscriptionID, cred, opts.ClientOptions)
	if err != nil {
		return nil, fmt.Errorf("new arm client: %w", err)
	}
	return NewWithClients(factory.NewClient(), factory.NewResourceGroupsClient(), factory.NewProvidersClient(), opts), nil
}

// NewWithClients creates a Client from already constructed SDK clients.
func NewWithClients(resources ResourcesClient, groups ResourceGroupsClient, providers ProvidersClient, opts Options) *Client {
	freq := opts.PollFrequency
	if freq <= 0 {
		freq = 5 * time.Second
	}
	return &Client{
		resources: resources,
		groups:    groups,
		versions:  newAPIVersions(providers, opts.APIVersions),
		pollFreq:  freq,
	}
}

func (c *Client) pollOptions() *runtime.PollUntilDoneOptions {
	return &runtime.PollUntilDoneOptions{Frequency: c.pollFreq}
}

func (c *Client) Create(ctx context.Context, r transport.Resource) (transport.Resource, error) {
	const op = "create"
	slogcontext.FromCtx(ctx).DebugContext(ctx, "arm request", "op", op, "id", r.ID)

	if resourceid.IsResourceGroup(r.ID) {
		resp, err := c.groups.CreateOrUpdate(ctx, resourceid.Name(r.ID), toGroup(r), nil)
		if err != nil {
			return transport.Resource{}, mapError(op, r.ID, err)
		}
		return fromGroup(resp.ResourceGroup), nil
	}

	version, err := c.versions.forID(ctx, r.ID)
	if err != nil {
		return transport.Resource{}, mapError(op, r.ID, err)
	}
	poller, err := c.resources.BeginCreateOrUpdateByID(ctx, r.ID, version, toGeneric(r), nil)
	if err != nil {
		return transport.Resource{}, mapError(op, r.ID, err)
	}
	resp, err := poller.PollUntilDone(ctx, c.pollOptions())
	if err != nil {
		return transport.Resource{}, mapError(op, r.ID, err)
	}
	return fromGeneric(resp.GenericResource), nil
}

func (c *Client) Update(ctx context.Context, r transport.Resource) (transport.Resource, error) {
	const op = "update"
	slogcontext.FromCtx(ctx).DebugContext(ctx, "arm request", "op", op, "id", r.ID)

	if resourceid.IsResourceGroup(r.ID) {
		resp, err := c.groups.Update(ctx, resourceid.Name(r.ID), armresources.ResourceGroupPatchable{Tags: toPtrMap(r.Tags)}, nil)
		if err != nil {
			return transport.Resource{}, mapError(op, r.ID, err)
		}
		return fromGroup(resp.ResourceGroup), nil
	}

	version, err := c.versions.forID(ctx, r.ID)
	if err != nil {
		return transport.Resource{}, mapError(op, r.ID, err)
	}
	poller, err := c.resources.BeginUpdateByID(ctx, r.ID, version, toGeneric(r), nil)
	if err != nil {
		return transport.Resource{}, mapError(op, r.ID, err)
	}
	resp, err := poller.PollUntilDone(ctx, c.pollOptions())
	if err != nil {
		return transport.Resource{}, mapError(op, r.ID, err)
	}
	return fromGeneric(resp.GenericResource), nil
}

func (c *Client) Get(ctx context.Context, id string) (transport.Resource, error) {
	const op = "get"
	if resourceid.IsResourceGroup(id) {
		resp, err := c.groups.Get(ctx, resourceid.Name(id), nil)
		if err != nil {
			return transport.Resource{}, mapError(op, id, err)
		}
		return fromGroup(resp.ResourceGroup), nil
	}

	version, err := c.versions.forID(ctx, id)
	if err != nil {
		return transport.Resource{}, mapError(op, id, err)
	}
	resp, err := c.resources.GetByID(ctx, id, version, nil)
	if err != nil {
		return transport.Resource{}, mapError(op, id, err)
	}
	return fromGeneric(resp.GenericResource), nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	const op = "delete"
	slogcontext.FromCtx(ctx).DebugContext(ctx, "arm request", "op", op, "id", id)

	if resourceid.IsResourceGroup(id) {
		poller, err := c.groups.BeginDelete(ctx, resourceid.Name(id), nil)
		if err != nil {
			return mapError(op, id, err)
		}
		if _, err := poller.PollUntilDone(ctx, c.pollOptions()); err != nil {
			return mapError(op, id, err)
		}
		return nil
	}

	version, err := c.versions.forID(ctx, id)
	if err != nil {
		return mapError(op, id, err)
	}
	poller, err := c.resources.BeginDeleteByID(ctx, id, version, nil)
	if err != nil {
		return mapError(op, id, err)
	}
	if _, err := poller.PollUntilDone(ctx, c.pollOptions()); err != nil {
		return mapError(op, id, err)
	}
	return nil
}

// mapError classifies err by the HTTP status of an *azcore.ResponseError.
func mapError(op, id string, err error) error {
	var terr *transport.Error
	if errors.As(err, &terr) {
		return err
	}
	kind := transport.KindUnknown
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		kind = kindOf(respErr.StatusCode)
	}
	return &transport.Error{Kind: kind, Op: op, ID: id, Err: err}
}

func kindOf(status int) transport.Kind {
	switch {
	case status == 404:
		return transport.KindNotFound
	case status == 409 || status == 412:
		return transport.KindConflict
	case status == 400 || status == 422:
		return transport.KindInvalid
	case status == 429:
		return transport.KindThrottled
	case status >= 500:
		return transport.KindUnavailable
	default:
		return transport.KindUnknown
	}
}

func normalizeType(t string) string {
	return strings.ToLower(t)
}
