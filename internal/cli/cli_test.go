package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chenyanchen/armorch/config"
	"github.com/chenyanchen/armorch/transport"
	"github.com/chenyanchen/armorch/transport/memory"
)

const deploymentFile = `
resources:
  - kind: registry
    name: reg1
    options:
      resourceGroup: rg1
      storageAccount: store1
      sku: Classic
  - kind: storageAccount
    name: store1
    options:
      resourceGroup: rg1
  - kind: resourceGroup
    name: rg1
    options:
      region: eastus
  - kind: resourceGroup
    name: broken
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	t.Setenv("AZURE_SUBSCRIPTION_ID", "")
	path := filepath.Join(t.TempDir(), "armorch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := New("1.2.3")
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func useMemory(t *testing.T) *memory.Client {
	t.Helper()
	client := memory.New()
	orig := newTransport
	newTransport = func(context.Context, *config.Config) (transport.Client, error) {
		return client, nil
	}
	t.Cleanup(func() { newTransport = orig })
	return client
}

func TestApplyReportsEveryResource(t *testing.T) {
	client := useMemory(t)
	path := writeConfig(t, deploymentFile)

	out, _, err := run(t, "apply", "-f", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 failed, 0 skipped")

	assert.Contains(t, out, "registry/reg1")
	assert.Contains(t, out, "/subscriptions/00000000-0000-0000-0000-000000000000/resourceGroups/rg1/providers/Microsoft.ContainerRegistry/registries/reg1")
	assert.Contains(t, out, "resourceGroup/broken")
	assert.Contains(t, out, "region is required")
	assert.Len(t, client.Calls(), 3)
}

func TestApplyTargets(t *testing.T) {
	client := useMemory(t)
	path := writeConfig(t, deploymentFile)

	out, _, err := run(t, "apply", "-f", path, "--target", "storageAccount/store1", "--async", "--log-level", "debug")
	require.NoError(t, err)
	assert.Contains(t, out, "storageAccount/store1")
	assert.NotContains(t, out, "registry/reg1")
	assert.Len(t, client.Calls(), 2)

	_, _, err = run(t, "apply", "-f", path, "--target", "registry")
	assert.ErrorContains(t, err, "want kind/name")
}

func TestPlanPrintsCreationOrder(t *testing.T) {
	path := writeConfig(t, deploymentFile)

	out, _, err := run(t, "plan", "-f", path)
	require.NoError(t, err)

	rg := bytes.Index([]byte(out), []byte("resourceGroup/rg1"))
	store := bytes.Index([]byte(out), []byte("storageAccount/store1"))
	reg := bytes.Index([]byte(out), []byte("registry/reg1"))
	require.NotEqual(t, -1, rg)
	assert.Less(t, rg, store)
	assert.Less(t, store, reg)
}

func TestPlanRejectsInvalidGraph(t *testing.T) {
	path := writeConfig(t, `
resources:
  - kind: storageAccount
    name: store1
    options:
      resourceGroup: missing
`)
	_, _, err := run(t, "plan", "-f", path)
	assert.ErrorContains(t, err, "missing")
}

func TestGraph(t *testing.T) {
	path := writeConfig(t, deploymentFile)

	out, _, err := run(t, "graph", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "digraph armorch")

	out, _, err = run(t, "graph", "-f", path, "--format", "mermaid")
	require.NoError(t, err)
	assert.Contains(t, out, "graph TD")

	_, _, err = run(t, "graph", "-f", path, "--format", "png")
	assert.ErrorContains(t, err, "invalid graph format")
}

func TestVersionAndLogFlags(t *testing.T) {
	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "armorch version 1.2.3\n", out)

	_, _, err = run(t, "version", "--log-level", "trace")
	assert.ErrorContains(t, err, "invalid log level")

	_, _, err = run(t, "version", "--log-format", "xml")
	assert.ErrorContains(t, err, "invalid log format")
}

func TestExecuteExitCodes(t *testing.T) {
	assert.Equal(t, ExitCodeSuccess, Execute(context.Background(), "dev", []string{"version"}))
	assert.Equal(t, ExitCodeError, Execute(context.Background(), "dev", []string{"plan", "-f", filepath.Join(t.TempDir(), "none.yaml")}))
}
