package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyanchen/armorch"
)

const sample = `
transport: memory
async: true
concurrency: 2
resources:
  - kind: resourceGroup
    name: rg1
    options:
      region: eastus
      tags:
        env: dev
  - kind: registry
    name: reg1
    options:
      resourceGroup: rg1
      webhooks:
        - name: hook1
          serviceUri: https://example.com
          actions: [push]
  - kind: resourceGroup
    name: empty
`

func TestParseDefaultsAndSpecs(t *testing.T) {
	t.Setenv(subscriptionEnv, "")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, TransportMemory, cfg.Transport)
	assert.Equal(t, DefaultSubscriptionID, cfg.SubscriptionID)
	assert.Equal(t, "lca", cfg.TerminateStrategy)
	assert.True(t, cfg.Async)

	specs, err := cfg.Specs()
	require.NoError(t, err)
	require.Len(t, specs, 3)
	assert.Equal(t, armorch.ID{Kind: "resourceGroup", Name: "rg1"}, specs[0].ID())
	assert.JSONEq(t, `{"region":"eastus","tags":{"env":"dev"}}`, string(specs[0].Options))
	assert.JSONEq(t, `{
		"resourceGroup": "rg1",
		"webhooks": [{"name": "hook1", "serviceUri": "https://example.com", "actions": ["push"]}]
	}`, string(specs[1].Options))
	assert.Nil(t, specs[2].Options)

	assert.Len(t, cfg.CreateOptions(), 2)
	assert.Len(t, cfg.ApplyOptions(), 2)
}

func TestSubscriptionFromEnvironment(t *testing.T) {
	t.Setenv(subscriptionEnv, "from-env")

	cfg, err := Parse([]byte("transport: arm\nsubscriptionId: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.SubscriptionID)
}

func TestValidate(t *testing.T) {
	t.Setenv(subscriptionEnv, "")

	_, err := Parse([]byte("transport: arm\n"))
	assert.ErrorContains(t, err, "subscriptionId")

	_, err = Parse([]byte("transport: grpc\n"))
	assert.ErrorContains(t, err, `unknown value "grpc"`)

	_, err = Parse([]byte("concurrency: -1\nterminateStrategy: fail-fast\n"))
	assert.ErrorContains(t, err, "concurrency")
	assert.ErrorContains(t, err, "terminateStrategy")

	_, err = Parse([]byte(`
resources:
  - kind: resourceGroup
    name: rg1
  - kind: resourceGroup
    name: rg1
  - name: nameless
`))
	assert.ErrorContains(t, err, "duplicate resourceGroup/rg1")
	assert.ErrorContains(t, err, "resources[2]: kind and name are required")

	_, err = Parse([]byte("resources: {"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Setenv(subscriptionEnv, "")

	path := filepath.Join(t.TempDir(), "armorch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Resources, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
