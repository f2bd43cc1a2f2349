package provisioning

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/flyk3s/flyk3s/internal/config"
	"github.com/flyk3s/flyk3s/internal/platform/fly"
	"github.com/flyk3s/flyk3s/internal/util/naming"
	"github.com/flyk3s/flyk3s/internal/util/retry"
)

const (
	// tokenPath is where the k3s server persists the join token on the
	// bootstrap node's data volume.
	tokenPath = "/data/k3s/server/node-token"

	// storageAddonsPath holds the base storage manifests baked into the
	// node image. They are applied once, after the bootstrap node first
	// reports ready.
	storageAddonsPath = "/etc/flyk3s/addons/storage.yaml"

	// DefaultPollInterval is the delay between readiness checks.
	DefaultPollInterval = 5 * time.Second

	// DefaultReadyTimeout bounds how long a cluster create waits for the
	// bootstrap node before giving up.
	DefaultReadyTimeout = 15 * time.Minute
)

// BootstrapCoordinator locates the bootstrap node, waits for it to become
// schedulable, and distributes its join token.
type BootstrapCoordinator struct {
	cfg   *config.ClusterConfig
	fleet fly.FleetProvider

	// PollInterval and ReadyTimeout parameterize AwaitReady.
	PollInterval time.Duration
	ReadyTimeout time.Duration

	addonsApplied bool
}

// NewBootstrapCoordinator creates a coordinator with default polling bounds.
func NewBootstrapCoordinator(cfg *config.ClusterConfig, fleet fly.FleetProvider) *BootstrapCoordinator {
	return &BootstrapCoordinator{
		cfg:          cfg,
		fleet:        fleet,
		PollInterval: DefaultPollInterval,
		ReadyTimeout: DefaultReadyTimeout,
	}
}

// LocateBootstrap resolves the machine of the configured bootstrap index.
func (b *BootstrapCoordinator) LocateBootstrap(ctx context.Context) (*fly.Machine, error) {
	app := naming.ControlPlaneApp(b.cfg.Name)
	name := naming.ControlNode(b.cfg.BootstrapIndex)

	machines, err := b.fleet.ListMachines(ctx, app)
	if err != nil {
		return nil, fmt.Errorf("failed to list machines in %s: %w", app, err)
	}
	for i := range machines {
		if machines[i].Name == name {
			return &machines[i], nil
		}
	}
	return nil, fmt.Errorf("bootstrap node %s not found in %s", name, app)
}

// AwaitReady polls the bootstrap node until its kubelet reports Ready,
// then applies the base storage addon manifests exactly once. The poll is
// bounded by ReadyTimeout and cancellable through ctx; progress blocks
// here deliberately, nothing else can join before the bootstrap node is
// schedulable.
func (b *BootstrapCoordinator) AwaitReady(ctx context.Context) error {
	machine, err := b.LocateBootstrap(ctx)
	if err != nil {
		return err
	}
	app := naming.ControlPlaneApp(b.cfg.Name)

	log.Printf("Waiting for bootstrap node %s (%s) to become ready...", machine.Name, machine.ID)
	err = retry.Do(ctx, retry.Fixed(b.PollInterval, b.ReadyTimeout), func(ctx context.Context) error {
		// The kubelet registers under the machine id, which the agent
		// sets as the hostname at boot.
		res, execErr := b.fleet.Exec(ctx, app, machine.ID, []string{
			"k3s", "kubectl", "get", "node", machine.ID,
			"-o", `jsonpath={.status.conditions[?(@.type=="Ready")].status}`,
		})
		if execErr != nil {
			return execErr
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("node %s not registered yet: %s", machine.ID, strings.TrimSpace(res.Stderr))
		}
		if strings.TrimSpace(res.Stdout) != "True" {
			return fmt.Errorf("node %s not ready: condition=%q", machine.ID, strings.TrimSpace(res.Stdout))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bootstrap node never became ready: %w", err)
	}
	log.Printf("Bootstrap node %s is ready", machine.Name)

	return b.applyBaseAddons(ctx, app, machine.ID)
}

// applyBaseAddons installs the storage addon manifests. It runs at most
// once per coordinator lifetime.
func (b *BootstrapCoordinator) applyBaseAddons(ctx context.Context, app, machineID string) error {
	if b.addonsApplied {
		return nil
	}
	res, err := b.fleet.Exec(ctx, app, machineID, []string{
		"k3s", "kubectl", "apply", "-f", storageAddonsPath,
	})
	if err != nil {
		return fmt.Errorf("failed to apply storage addons: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("storage addon apply exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	b.addonsApplied = true
	log.Printf("Applied base storage addons")
	return nil
}

// FetchToken reads the join token persisted on the bootstrap node's data
// volume. An empty token is fatal: nothing may join without it.
func (b *BootstrapCoordinator) FetchToken(ctx context.Context) (string, error) {
	machine, err := b.LocateBootstrap(ctx)
	if err != nil {
		return "", err
	}
	app := naming.ControlPlaneApp(b.cfg.Name)

	res, err := b.fleet.Exec(ctx, app, machine.ID, []string{"cat", tokenPath})
	if err != nil {
		return "", fmt.Errorf("failed to read join token: %w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("reading %s exited %d: %s", tokenPath, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	token := strings.TrimSpace(res.Stdout)
	if token == "" {
		return "", fmt.Errorf("join token on %s is empty", machine.Name)
	}
	return token, nil
}
