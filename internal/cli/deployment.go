package cli

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/spf13/cobra"

	"github.com/chenyanchen/armorch"
	"github.com/chenyanchen/armorch/catalog"
	"github.com/chenyanchen/armorch/config"
	"github.com/chenyanchen/armorch/resources"
	"github.com/chenyanchen/armorch/transport"
	"github.com/chenyanchen/armorch/transport/armclient"
	"github.com/chenyanchen/armorch/transport/memory"
)

// newTransport builds the client for the configured transport.
var newTransport = func(_ context.Context, cfg *config.Config) (transport.Client, error) {
	switch cfg.Transport {
	case config.TransportARM:
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure credential: %w", err)
		}
		client, err := armclient.New(cfg.SubscriptionID, cred, armclient.Options{APIVersions: cfg.APIVersions})
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return memory.New(), nil
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(cmd.Flag(flagConfig).Value.String())
}

// compile builds the deployment of cfg. client may be nil when nothing is applied.
func compile(cfg *config.Config, client transport.Client) (*armorch.Deployment, error) {
	reg := armorch.NewRegistry()
	if err := catalog.Register(reg, resources.NewScope(cfg.SubscriptionID, client)); err != nil {
		return nil, err
	}
	specs, err := cfg.Specs()
	if err != nil {
		return nil, err
	}
	return armorch.NewDeployment(reg, specs)
}
