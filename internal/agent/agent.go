// Package agent implements the in-machine bootstrap sequence: it prepares
// the host (identity, sysctls, limits, mounts), installs and configures the
// k3s runtime, and hands the process over to the init system.
//
// The sequence is an ordered list of idempotent steps. Progress is recorded
// on the persistent volume after each step so an interrupted boot resumes
// where it stopped; steps marked always-run re-execute on every boot because
// their effects do not survive a machine restart.
package agent

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// Paths collects every filesystem location the agent touches. Tests
// redirect them into a scratch directory.
type Paths struct {
	StateFile    string // step progress marker, on the persistent volume
	HostnameFile string
	ProcSys      string
	MountInfo    string
	RootMount    string

	DataConfig       string // canonical k3s config on the volume
	ConfigLink       string // /etc/rancher/k3s/config.yaml symlink
	NodeIdentityDir  string // node password dir on the volume
	NodeIdentityLink string // /etc/rancher/node symlink

	PodLogsDir         string
	DataPodLogsDir     string
	KubeletPodsDir     string
	DataKubeletPodsDir string

	InstallScript  string
	SystemdUnitDir string
	WantsDir       string
	ISCSIUnit      string
	K3sBin         string
	Init           string
}

// DefaultPaths returns the production layout.
func DefaultPaths() Paths {
	return Paths{
		StateFile:    "/data/flyk3s/agent-state",
		HostnameFile: "/etc/hostname",
		ProcSys:      "/proc/sys",
		MountInfo:    "/proc/self/mountinfo",
		RootMount:    "/",

		DataConfig:       filepath.Join(K3sDataDir, "config.yaml"),
		ConfigLink:       "/etc/rancher/k3s/config.yaml",
		NodeIdentityDir:  filepath.Join(K3sDataDir, "node"),
		NodeIdentityLink: "/etc/rancher/node",

		PodLogsDir:         "/var/log/pods",
		DataPodLogsDir:     "/data/log/pods",
		KubeletPodsDir:     "/var/lib/kubelet/pods",
		DataKubeletPodsDir: "/data/kubelet/pods",

		InstallScript:  "/usr/local/bin/k3s-install.sh",
		SystemdUnitDir: "/etc/systemd/system",
		WantsDir:       "/etc/systemd/system/multi-user.target.wants",
		ISCSIUnit:      "/lib/systemd/system/iscsid.service",
		K3sBin:         "/usr/local/bin/k3s",
		Init:           "/sbin/init",
	}
}

// Agent drives the bootstrap sequence for one machine.
type Agent struct {
	env   *Env
	log   logrus.FieldLogger
	paths Paths

	// Syscall and process seams, replaced in tests.
	runCommand  func(ctx context.Context, extraEnv []string, name string, args ...string) error
	sethostname func(name []byte) error
	setrlimit   func(resource int, rlim *unix.Rlimit) error
	mountFS     func(source, target, fstype string, flags uintptr, data string) error
	unshare     func(flags int) error
	execve      func(argv0 string, argv, envv []string) error
	now         func() time.Time
}

// New builds an Agent wired to the real host.
func New(env *Env, log logrus.FieldLogger) *Agent {
	a := &Agent{
		env:         env,
		log:         log,
		paths:       DefaultPaths(),
		sethostname: unix.Sethostname,
		setrlimit:   unix.Setrlimit,
		mountFS:     unix.Mount,
		unshare:     unix.Unshare,
		execve:      unix.Exec,
		now:         time.Now,
	}
	a.runCommand = a.runHostCommand
	return a
}

type step struct {
	name      string
	alwaysRun bool
	run       func(context.Context) error
}

func (a *Agent) steps() []step {
	return []step{
		{"identity", true, a.setIdentity},
		{"sysctls", true, a.applySysctls},
		{"limits", true, a.applyLimits},
		{"mount-propagation", true, a.shareRootMount},
		{"runtime-install", false, a.installRuntime},
		{"config-reconcile", true, a.reconcileConfig},
		{"identity-link", true, a.linkNodeIdentity},
		{"pod-log-mount", true, a.mountPodLogs},
		{"kubelet-pod-mount", true, a.mountKubeletPods},
		{"iscsid-enable", true, a.enableISCSI},
		{"self-check", true, a.selfCheck},
	}
}

// Run executes the bootstrap sequence and ends with the init hand-off,
// which does not return on success.
func (a *Agent) Run(ctx context.Context) error {
	resume, err := a.readMarker()
	if err != nil {
		return err
	}
	steps := a.steps()
	resumeIdx := -1
	for i, st := range steps {
		if st.name == resume {
			resumeIdx = i
		}
	}
	if resume != "" && resumeIdx < 0 {
		a.log.WithField("marker", resume).Warn("ignoring unknown progress marker")
	}

	for i, st := range steps {
		if !st.alwaysRun && i <= resumeIdx {
			a.log.WithField("step", st.name).Debug("already completed, skipping")
			continue
		}
		a.log.WithField("step", st.name).Info("running")
		if err := st.run(ctx); err != nil {
			return fmt.Errorf("step %s: %w", st.name, err)
		}
		if err := a.writeMarker(st.name); err != nil {
			return err
		}
	}

	if err := os.Remove(a.paths.StateFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing progress marker: %w", err)
	}
	return a.handOff()
}

func (a *Agent) readMarker() (string, error) {
	raw, err := os.ReadFile(a.paths.StateFile)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading progress marker: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func (a *Agent) writeMarker(name string) error {
	if err := os.MkdirAll(filepath.Dir(a.paths.StateFile), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	if err := os.WriteFile(a.paths.StateFile, []byte(name+"\n"), 0o600); err != nil {
		return fmt.Errorf("writing progress marker: %w", err)
	}
	return nil
}

// setIdentity names the host after the machine id so kubernetes node
// names match platform machine ids.
func (a *Agent) setIdentity(context.Context) error {
	if err := a.sethostname([]byte(a.env.MachineID)); err != nil {
		return fmt.Errorf("setting hostname: %w", err)
	}
	if err := os.WriteFile(a.paths.HostnameFile, []byte(a.env.MachineID+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", a.paths.HostnameFile, err)
	}
	return nil
}

func (a *Agent) reconcileConfig(context.Context) error {
	content, err := BuildK3sConfig(a.env).Marshal()
	if err != nil {
		return err
	}
	decision, backup, err := ReconcileFile(a.paths.DataConfig, content, a.now())
	if err != nil {
		return err
	}
	entry := a.log.WithField("decision", decision.String())
	if backup != "" {
		entry = entry.WithField("backup", backup)
	}
	entry.Info("reconciled k3s config")
	return ensureSymlink(a.paths.DataConfig, a.paths.ConfigLink)
}

// linkNodeIdentity keeps the node password on the volume so a replaced
// machine rejoins as the same kubernetes node.
func (a *Agent) linkNodeIdentity(context.Context) error {
	if err := os.MkdirAll(a.paths.NodeIdentityDir, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", a.paths.NodeIdentityDir, err)
	}
	return ensureSymlink(a.paths.NodeIdentityDir, a.paths.NodeIdentityLink)
}

func (a *Agent) enableISCSI(context.Context) error {
	return ensureSymlink(a.paths.ISCSIUnit, filepath.Join(a.paths.WantsDir, "iscsid.service"))
}

func (a *Agent) selfCheck(ctx context.Context) error {
	if err := a.runCommand(ctx, nil, a.paths.K3sBin, "check-config"); err != nil {
		return fmt.Errorf("k3s check-config failed: %w", err)
	}
	return nil
}

// handOff replaces the agent process with the init system inside fresh
// mount and pid namespaces, so the services it starts see their own view
// of both.
func (a *Agent) handOff() error {
	a.log.WithField("init", a.paths.Init).Info("bootstrap complete, handing off")
	if err := a.unshare(unix.CLONE_NEWNS | unix.CLONE_NEWPID); err != nil {
		return fmt.Errorf("unsharing namespaces: %w", err)
	}
	if err := a.execve(a.paths.Init, []string{a.paths.Init}, os.Environ()); err != nil {
		return fmt.Errorf("executing %s: %w", a.paths.Init, err)
	}
	return nil
}

func (a *Agent) runHostCommand(ctx context.Context, extraEnv []string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), extraEnv...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	a.log.WithField("command", name).Debug(strings.TrimSpace(string(out)))
	return nil
}
