package agent

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// hostRecorder captures the syscall and process side effects of a run.
type hostRecorder struct {
	hostname string
	rlimits  []int
	mounts       []string
	commands     [][]string
	cmdEnv       map[string][]string
	unshareFlags int
	execArgv     []string
	cmdErr       func(name string) error
}

func testPaths(root string) Paths {
	return Paths{
		StateFile:    filepath.Join(root, "data/flyk3s/agent-state"),
		HostnameFile: filepath.Join(root, "etc/hostname"),
		ProcSys:      filepath.Join(root, "proc/sys"),
		MountInfo:    filepath.Join(root, "proc/self/mountinfo"),
		RootMount:    root,

		DataConfig:       filepath.Join(root, "data/k3s/config.yaml"),
		ConfigLink:       filepath.Join(root, "etc/rancher/k3s/config.yaml"),
		NodeIdentityDir:  filepath.Join(root, "data/k3s/node"),
		NodeIdentityLink: filepath.Join(root, "etc/rancher/node"),

		PodLogsDir:         filepath.Join(root, "var/log/pods"),
		DataPodLogsDir:     filepath.Join(root, "data/log/pods"),
		KubeletPodsDir:     filepath.Join(root, "var/lib/kubelet/pods"),
		DataKubeletPodsDir: filepath.Join(root, "data/kubelet/pods"),

		InstallScript:  filepath.Join(root, "usr/local/bin/k3s-install.sh"),
		SystemdUnitDir: filepath.Join(root, "etc/systemd/system"),
		WantsDir:       filepath.Join(root, "etc/systemd/system/multi-user.target.wants"),
		ISCSIUnit:      filepath.Join(root, "lib/systemd/system/iscsid.service"),
		K3sBin:         filepath.Join(root, "usr/local/bin/k3s"),
		Init:           filepath.Join(root, "sbin/init"),
	}
}

func newTestAgent(t *testing.T, env *Env) (*Agent, *hostRecorder) {
	t.Helper()
	root := t.TempDir()
	rec := &hostRecorder{cmdEnv: map[string][]string{}}

	require.NoError(t, os.MkdirAll(filepath.Join(root, "etc"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "proc/self"), 0o755))
	mountinfo := "22 1 0:1 / / rw shared:1 - ext4 /dev/vda rw\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "proc/self/mountinfo"), []byte(mountinfo), 0o644))

	log := logrus.New()
	log.SetOutput(io.Discard)

	a := New(env, log)
	a.paths = testPaths(root)
	a.sethostname = func(name []byte) error {
		rec.hostname = string(name)
		return nil
	}
	a.setrlimit = func(resource int, _ *unix.Rlimit) error {
		rec.rlimits = append(rec.rlimits, resource)
		return nil
	}
	a.mountFS = func(_, target, _ string, _ uintptr, _ string) error {
		rec.mounts = append(rec.mounts, target)
		return nil
	}
	a.unshare = func(flags int) error {
		rec.unshareFlags = flags
		return nil
	}
	a.execve = func(_ string, argv, _ []string) error {
		rec.execArgv = argv
		return nil
	}
	a.runCommand = func(_ context.Context, extraEnv []string, name string, args ...string) error {
		rec.commands = append(rec.commands, append([]string{name}, args...))
		rec.cmdEnv[name] = extraEnv
		if rec.cmdErr != nil {
			return rec.cmdErr(name)
		}
		return nil
	}
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return a, rec
}

func TestRunFullBootSequence(t *testing.T) {
	env := serverEnv(true)
	a, rec := newTestAgent(t, env)
	require.NoError(t, a.Run(context.Background()))

	assert.Equal(t, env.MachineID, rec.hostname)
	hostname, err := os.ReadFile(a.paths.HostnameFile)
	require.NoError(t, err)
	assert.Equal(t, env.MachineID+"\n", string(hostname))

	assert.Equal(t, []int{unix.RLIMIT_NOFILE, unix.RLIMIT_NPROC}, rec.rlimits)
	assert.Equal(t, []string{a.paths.RootMount, a.paths.PodLogsDir, a.paths.KubeletPodsDir}, rec.mounts)

	require.Len(t, rec.commands, 2)
	assert.Equal(t, []string{"sh", a.paths.InstallScript}, rec.commands[0])
	assert.Equal(t, []string{a.paths.K3sBin, "check-config"}, rec.commands[1])
	assert.Contains(t, rec.cmdEnv["sh"], "INSTALL_K3S_VERSION="+env.K3sVersion)
	assert.Contains(t, rec.cmdEnv["sh"], "INSTALL_K3S_EXEC=server")
	assert.Contains(t, rec.cmdEnv["sh"], "INSTALL_K3S_SKIP_ENABLE=true")

	// Runtime enabled through the wants link.
	link, err := os.Readlink(filepath.Join(a.paths.WantsDir, "k3s.service"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(a.paths.SystemdUnitDir, "k3s.service"), link)

	// Config written on the volume and linked into /etc.
	_, err = os.Stat(a.paths.DataConfig)
	require.NoError(t, err)
	link, err = os.Readlink(a.paths.ConfigLink)
	require.NoError(t, err)
	assert.Equal(t, a.paths.DataConfig, link)

	// Marker cleared after a complete run, then init takes over in fresh
	// mount and pid namespaces.
	_, err = os.Stat(a.paths.StateFile)
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, unix.CLONE_NEWNS|unix.CLONE_NEWPID, rec.unshareFlags)
	assert.Equal(t, []string{a.paths.Init}, rec.execArgv)
}

func TestRunAgentRoleInstallsAgentUnit(t *testing.T) {
	a, rec := newTestAgent(t, agentEnv())
	require.NoError(t, a.Run(context.Background()))

	assert.Contains(t, rec.cmdEnv["sh"], "INSTALL_K3S_EXEC=agent")
	_, err := os.Readlink(filepath.Join(a.paths.WantsDir, "k3s-agent.service"))
	require.NoError(t, err)
}

func TestRunResumesAfterInterruptedBoot(t *testing.T) {
	a, rec := newTestAgent(t, serverEnv(true))
	require.NoError(t, os.MkdirAll(filepath.Dir(a.paths.StateFile), 0o755))
	require.NoError(t, os.WriteFile(a.paths.StateFile, []byte("runtime-install\n"), 0o600))

	require.NoError(t, a.Run(context.Background()))

	// The installer does not run again, but always-run steps all do.
	require.Len(t, rec.commands, 1)
	assert.Equal(t, []string{a.paths.K3sBin, "check-config"}, rec.commands[0])
	assert.Equal(t, serverEnv(true).MachineID, rec.hostname)
	assert.Equal(t, []string{a.paths.Init}, rec.execArgv)
}

func TestRunSkipsInstallWhenRuntimeEnabled(t *testing.T) {
	a, rec := newTestAgent(t, serverEnv(true))
	require.NoError(t, os.MkdirAll(a.paths.WantsDir, 0o755))
	unit := filepath.Join(a.paths.SystemdUnitDir, "k3s.service")
	require.NoError(t, os.Symlink(unit, filepath.Join(a.paths.WantsDir, "k3s.service")))

	require.NoError(t, a.Run(context.Background()))

	require.Len(t, rec.commands, 1)
	assert.Equal(t, []string{a.paths.K3sBin, "check-config"}, rec.commands[0])
}

func TestRunAbortsWhenSelfCheckFails(t *testing.T) {
	a, rec := newTestAgent(t, serverEnv(true))
	rec.cmdErr = func(name string) error {
		if name == a.paths.K3sBin {
			return errors.New("missing CONFIG_CGROUPS")
		}
		return nil
	}

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "self-check")
	assert.Empty(t, rec.execArgv, "must not hand off after a failed check")

	// Progress stops at the last completed step.
	marker, err := os.ReadFile(a.paths.StateFile)
	require.NoError(t, err)
	assert.Equal(t, "iscsid-enable\n", string(marker))
}

func TestRunReconcilesChangedConfigWithBackup(t *testing.T) {
	a, _ := newTestAgent(t, serverEnv(true))
	require.NoError(t, os.MkdirAll(filepath.Dir(a.paths.DataConfig), 0o755))
	require.NoError(t, os.WriteFile(a.paths.DataConfig, []byte("node-name: stale\n"), 0o600))

	require.NoError(t, a.Run(context.Background()))

	backup := a.paths.DataConfig + ".bak-20260102-030405"
	old, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "node-name: stale\n", string(old))

	raw, err := os.ReadFile(a.paths.DataConfig)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "node-name: "+serverEnv(true).MachineID)
	assert.Contains(t, string(raw), "cluster-init: true")
}

func TestRunEnablesISCSIAndIdentityLink(t *testing.T) {
	a, _ := newTestAgent(t, agentEnv())
	require.NoError(t, a.Run(context.Background()))

	link, err := os.Readlink(filepath.Join(a.paths.WantsDir, "iscsid.service"))
	require.NoError(t, err)
	assert.Equal(t, a.paths.ISCSIUnit, link)

	link, err = os.Readlink(a.paths.NodeIdentityLink)
	require.NoError(t, err)
	assert.Equal(t, a.paths.NodeIdentityDir, link)
	info, err := os.Stat(a.paths.NodeIdentityDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestApplySysctlsWritesPresentKeys(t *testing.T) {
	a, _ := newTestAgent(t, serverEnv(true))
	forward := filepath.Join(a.paths.ProcSys, "net/ipv4")
	require.NoError(t, os.MkdirAll(forward, 0o755))

	require.NoError(t, a.applySysctls(context.Background()))

	raw, err := os.ReadFile(filepath.Join(forward, "ip_forward"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(raw))

	raw, err = os.ReadFile(filepath.Join(forward, "tcp_congestion_control"))
	require.NoError(t, err)
	assert.Equal(t, "bbr", string(raw))
}

func TestBindMountSkipsMountedTarget(t *testing.T) {
	a, rec := newTestAgent(t, serverEnv(true))
	mountinfo := "22 1 0:1 / / rw shared:1 - ext4 /dev/vda rw\n" +
		"23 22 0:2 / " + a.paths.PodLogsDir + " rw - ext4 /dev/vdb rw\n"
	require.NoError(t, os.WriteFile(a.paths.MountInfo, []byte(mountinfo), 0o644))

	require.NoError(t, a.mountPodLogs(context.Background()))
	assert.Empty(t, rec.mounts)

	require.NoError(t, a.mountKubeletPods(context.Background()))
	assert.Equal(t, []string{a.paths.KubeletPodsDir}, rec.mounts)
}
