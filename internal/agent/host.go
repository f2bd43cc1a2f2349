package agent

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sys/unix"
)

// bootSysctls are applied on every boot. Kernel parameters reset on
// machine restart, so none of these are gated on prior progress.
var bootSysctls = map[string]string{
	"net.bridge.bridge-nf-call-iptables":  "1",
	"net.bridge.bridge-nf-call-ip6tables": "1",
	"net.ipv4.ip_forward":                 "1",
	"net.ipv6.conf.all.forwarding":        "1",
	"net.ipv4.tcp_congestion_control":     "bbr",
	"vm.overcommit_memory":                "1",
	"kernel.panic":                        "10",
	"kernel.panic_on_oops":                "1",
}

func (a *Agent) applySysctls(context.Context) error {
	keys := make([]string, 0, len(bootSysctls))
	for k := range bootSysctls {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		path := filepath.Join(a.paths.ProcSys, strings.ReplaceAll(key, ".", "/"))
		err := os.WriteFile(path, []byte(bootSysctls[key]), 0o644)
		if os.IsNotExist(err) {
			// The bridge keys appear once br_netfilter loads with the runtime.
			a.log.WithField("sysctl", key).Warn("kernel key not present, skipping")
			continue
		}
		if err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
	}
	return nil
}

const (
	nofileLimit uint64 = 1048576
	nprocLimit  uint64 = 524288
)

func (a *Agent) applyLimits(context.Context) error {
	limits := []struct {
		resource int
		name     string
		value    uint64
	}{
		{unix.RLIMIT_NOFILE, "nofile", nofileLimit},
		{unix.RLIMIT_NPROC, "nproc", nprocLimit},
	}
	for _, l := range limits {
		rlim := unix.Rlimit{Cur: l.value, Max: l.value}
		if err := a.setrlimit(l.resource, &rlim); err != nil {
			return fmt.Errorf("raising %s limit: %w", l.name, err)
		}
	}
	return nil
}

// shareRootMount marks the root mount shared so kubelet and CSI drivers
// can propagate mounts between containers and the host.
func (a *Agent) shareRootMount(context.Context) error {
	if err := a.mountFS("", a.paths.RootMount, "", unix.MS_REC|unix.MS_SHARED, ""); err != nil {
		return fmt.Errorf("sharing root mount: %w", err)
	}
	return nil
}

// mountPodLogs and mountKubeletPods bind pod state onto the persistent
// volume: the root filesystem is small and resets on machine replacement.
func (a *Agent) mountPodLogs(ctx context.Context) error {
	return a.bindMount(a.paths.DataPodLogsDir, a.paths.PodLogsDir)
}

func (a *Agent) mountKubeletPods(ctx context.Context) error {
	return a.bindMount(a.paths.DataKubeletPodsDir, a.paths.KubeletPodsDir)
}

func (a *Agent) bindMount(source, target string) error {
	for _, dir := range []string{source, target} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	mounted, err := a.isMounted(target)
	if err != nil {
		return err
	}
	if mounted {
		return nil
	}
	if err := a.mountFS(source, target, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind mounting %s on %s: %w", source, target, err)
	}
	return nil
}

func (a *Agent) isMounted(target string) (bool, error) {
	f, err := os.Open(a.paths.MountInfo)
	if err != nil {
		return false, fmt.Errorf("reading mount table: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) > 4 && fields[4] == target {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// installRuntime fetches and installs k3s once per volume lifetime. The
// enablement symlink doubles as the installed marker.
func (a *Agent) installRuntime(ctx context.Context) error {
	unit, execRole := "k3s.service", "server"
	if a.env.Role == "agent" {
		unit, execRole = "k3s-agent.service", "agent"
	}
	link := filepath.Join(a.paths.WantsDir, unit)
	if _, err := os.Lstat(link); err == nil {
		a.log.WithField("unit", unit).Info("runtime already installed")
		return nil
	}

	installEnv := []string{
		"INSTALL_K3S_VERSION=" + a.env.K3sVersion,
		"INSTALL_K3S_EXEC=" + execRole,
		"INSTALL_K3S_SKIP_ENABLE=true",
		"INSTALL_K3S_SKIP_START=true",
	}
	if err := a.runCommand(ctx, installEnv, "sh", a.paths.InstallScript); err != nil {
		return fmt.Errorf("running k3s installer: %w", err)
	}

	// No init system is running yet, so enablement is a wants symlink
	// rather than systemctl enable.
	return ensureSymlink(filepath.Join(a.paths.SystemdUnitDir, unit), link)
}
