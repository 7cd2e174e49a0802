// Package config loads a deployment description from YAML.
//
//	subscriptionId: 00000000-0000-0000-0000-000000000000
//	transport: arm
//	async: true
//	concurrency: 4
//	terminateStrategy: lca
//	apiVersions:
//	  Microsoft.Storage/storageAccounts: "2023-05-01"
//	resources:
//	  - kind: resourceGroup
//	    name: rg1
//	    options:
//	      region: eastus
//
// AZURE_SUBSCRIPTION_ID overrides subscriptionId when set.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chenyanchen/armorch"
)

const (
	TransportMemory = "memory"
	TransportARM    = "arm"

	// DefaultSubscriptionID is used by the memory transport when none is configured.
	DefaultSubscriptionID = "00000000-0000-0000-0000-000000000000"

	subscriptionEnv = "AZURE_SUBSCRIPTION_ID"
)

type Config struct {
	SubscriptionID    string            `yaml:"subscriptionId"`
	Transport         string            `yaml:"transport"`
	Async             bool              `yaml:"async"`
	Concurrency       int               `yaml:"concurrency"`
	TerminateStrategy string            `yaml:"terminateStrategy"`
	APIVersions       map[string]string `yaml:"apiVersions"`
	Resources         []Resource        `yaml:"resources"`
}

// Resource declares one node. Options are passed to the kind's definition as JSON.
type Resource struct {
	Kind    string         `yaml:"kind"`
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options"`
}

func Load(path string) (*Config, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes, defaults and validates a config.
func Parse(payload []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(payload, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if sub := strings.TrimSpace(os.Getenv(subscriptionEnv)); sub != "" {
		c.SubscriptionID = sub
	}
	if c.Transport == "" {
		c.Transport = TransportMemory
	}
	if c.SubscriptionID == "" && c.Transport == TransportMemory {
		c.SubscriptionID = DefaultSubscriptionID
	}
	if c.TerminateStrategy == "" {
		c.TerminateStrategy = armorch.TerminateOnHittingLCATask.String()
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportMemory, TransportARM:
	default:
		errs = append(errs, fmt.Errorf("transport: unknown value %q", c.Transport))
	}
	if c.SubscriptionID == "" {
		errs = append(errs, fmt.Errorf("subscriptionId: required for transport %s (or set %s)", c.Transport, subscriptionEnv))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency: must not be negative"))
	}
	if _, err := armorch.ParseTerminateStrategy(c.TerminateStrategy); err != nil {
		errs = append(errs, fmt.Errorf("terminateStrategy: %w", err))
	}
	seen := make(map[armorch.ID]struct{}, len(c.Resources))
	for i, r := range c.Resources {
		if r.Kind == "" || r.Name == "" {
			errs = append(errs, fmt.Errorf("resources[%d]: kind and name are required", i))
			continue
		}
		id := armorch.ID{Kind: r.Kind, Name: r.Name}
		if _, ok := seen[id]; ok {
			errs = append(errs, fmt.Errorf("resources[%d]: duplicate %s", i, id))
		}
		seen[id] = struct{}{}
	}
	return errors.Join(errs...)
}

// Specs converts the declared resources, in file order.
func (c *Config) Specs() ([]armorch.NodeSpec, error) {
	specs := make([]armorch.NodeSpec, 0, len(c.Resources))
	for _, r := range c.Resources {
		spec := armorch.NodeSpec{Kind: r.Kind, Name: r.Name}
		if r.Options != nil {
			raw, err := json.Marshal(r.Options)
			if err != nil {
				return nil, fmt.Errorf("marshal options for %s/%s: %w", r.Kind, r.Name, err)
			}
			spec.Options = raw
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func (c *Config) CreateOptions() []armorch.CreateOption {
	strategy, _ := armorch.ParseTerminateStrategy(c.TerminateStrategy)
	return []armorch.CreateOption{
		armorch.WithConcurrency(c.Concurrency),
		armorch.WithTerminateStrategy(strategy),
	}
}

// ApplyOptions returns the options for Deployment.Apply.
func (c *Config) ApplyOptions() []armorch.ApplyOption {
	opts := []armorch.ApplyOption{armorch.WithCreateOptions(c.CreateOptions()...)}
	if c.Async {
		opts = append(opts, armorch.WithAsync())
	}
	return opts
}
