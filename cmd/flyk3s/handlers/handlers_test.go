package handlers

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flyk3s/flyk3s/internal/platform/fly"
	"github.com/flyk3s/flyk3s/internal/platform/fly/flyfake"
	"github.com/flyk3s/flyk3s/internal/util/prerequisites"
)

const testKubeconfig = `apiVersion: v1
kind: Config
clusters:
- cluster:
    certificate-authority-data: ZmFrZS1jYQ==
    server: https://127.0.0.1:6443
  name: default
contexts:
- context:
    cluster: default
    user: default
  name: default
current-context: default
users:
- name: default
  user:
    client-certificate-data: ZmFrZS1jZXJ0
    client-key-data: ZmFrZS1rZXk=
`

// fakeCluster answers the remote commands the orchestrator runs on the
// bootstrap node.
type fakeCluster struct {
	token  string
	taints int
}

func (f *fakeCluster) exec(_ context.Context, _, _ string, cmd []string) (*fly.ExecResult, error) {
	joined := strings.Join(cmd, " ")
	switch {
	case strings.Contains(joined, "kubectl get node"):
		return &fly.ExecResult{Stdout: "True"}, nil
	case strings.Contains(joined, "kubectl apply"):
		return &fly.ExecResult{}, nil
	case strings.Contains(joined, "kubectl taint"):
		f.taints++
		return &fly.ExecResult{}, nil
	case joined == "cat /data/k3s/server/node-token":
		return &fly.ExecResult{Stdout: f.token + "\n"}, nil
	case joined == "cat /etc/rancher/k3s/k3s.yaml":
		return &fly.ExecResult{Stdout: testKubeconfig}, nil
	}
	return &fly.ExecResult{ExitCode: 127, Stderr: "unknown command"}, nil
}

func writeConfigDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	conf := `CLUSTER_NAME=staging
CLUSTER_CIDR=10.42.0.0/16,fd00:42::/56
SERVICE_CIDR=10.43.0.0/16,fd00:43::/112
CLUSTER_DNS=10.43.0.10
REGION=iad
NODE_GROUP_SIZE=6
VOLUME_SIZE=40
VOLUME_NAME=data
WORKER_VM_SIZE=shared-cpu-4x
WORKER_VM_MEMORY=8192
CP_VM_SIZE=shared-cpu-2x
CP_VM_MEMORY=4096
K3S_VERSION=v1.31.4+k3s1
ORG_NAME=acme
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cluster.conf"), []byte(conf), 0o600))
	return dir
}

func withFakeFleet(t *testing.T, sim *fakeCluster) *flyfake.Provider {
	t.Helper()
	fake := flyfake.New()
	fake.ExecFunc = sim.exec

	orig := newFleetProvider
	newFleetProvider = func() (fly.FleetProvider, error) { return fake, nil }
	t.Cleanup(func() { newFleetProvider = orig })
	return fake
}

func TestCreateProvisionsControlPlane(t *testing.T) {
	sim := &fakeCluster{token: "K10abc::server:secret"}
	fake := withFakeFleet(t, sim)
	dir := writeConfigDir(t)

	require.NoError(t, Create(context.Background(), dir))

	assert.Equal(t, []string{"ctrl-0", "ctrl-1", "ctrl-2"}, fake.CreatedMachines)
	assert.Equal(t, 1, sim.taints)
}

func TestCreateFailsOnIncompleteConfig(t *testing.T) {
	called := false
	orig := newFleetProvider
	newFleetProvider = func() (fly.FleetProvider, error) {
		called = true
		return flyfake.New(), nil
	}
	t.Cleanup(func() { newFleetProvider = orig })

	dir := t.TempDir()
	conf := "CLUSTER_NAME=staging\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cluster.conf"), []byte(conf), 0o600))

	err := Create(context.Background(), dir)
	require.Error(t, err)
	assert.False(t, called, "no fleet client may be built for an invalid config")
}

func TestCreateRequiresAPIToken(t *testing.T) {
	t.Setenv("FLY_API_TOKEN", "")
	err := Create(context.Background(), writeConfigDir(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLY_API_TOKEN")
}

func TestAddNodegroupCreatesWorkers(t *testing.T) {
	sim := &fakeCluster{token: "K10abc::server:secret"}
	fake := withFakeFleet(t, sim)
	dir := writeConfigDir(t)

	require.NoError(t, Create(context.Background(), dir))
	require.NoError(t, AddNodegroup(context.Background(), dir, "0"))

	assert.Len(t, fake.Machines("staging-worker-0"), 6)
}

func TestListPrintsMachineTable(t *testing.T) {
	sim := &fakeCluster{token: "tok"}
	withFakeFleet(t, sim)
	dir := writeConfigDir(t)
	require.NoError(t, Create(context.Background(), dir))

	var buf bytes.Buffer
	require.NoError(t, List(context.Background(), dir, "cp", &buf))

	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "ctrl-0")
	assert.Contains(t, out, "ctrl-2")
}

func TestSSHPassesThroughToPlatformCLI(t *testing.T) {
	sim := &fakeCluster{token: "tok"}
	withFakeFleet(t, sim)
	dir := writeConfigDir(t)

	var gotName string
	var gotArgs []string
	origCheck, origExec := checkTools, execCommand
	checkTools = func([]prerequisites.Tool) error { return nil }
	execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName = name
		gotArgs = args
		return exec.CommandContext(ctx, "true")
	}
	t.Cleanup(func() { checkTools, execCommand = origCheck, origExec })

	require.NoError(t, SSH(context.Background(), dir, "0"))
	assert.Equal(t, "fly", gotName)
	assert.Equal(t, []string{"ssh", "console", "-a", "staging-worker-0"}, gotArgs)
}

func TestSSHRequiresPlatformCLI(t *testing.T) {
	sim := &fakeCluster{token: "tok"}
	withFakeFleet(t, sim)

	orig := checkTools
	checkTools = func([]prerequisites.Tool) error { return errors.New("missing required tools: fly") }
	t.Cleanup(func() { checkTools = orig })

	err := SSH(context.Background(), writeConfigDir(t), "cp")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required tools")
}

func TestKubeconfigWritesCredentialsFile(t *testing.T) {
	sim := &fakeCluster{token: "tok"}
	withFakeFleet(t, sim)
	dir := writeConfigDir(t)

	require.NoError(t, Create(context.Background(), dir))
	require.NoError(t, Kubeconfig(context.Background(), dir))

	raw, err := os.ReadFile(filepath.Join(dir, "staging.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "staging-cp.internal")
}
