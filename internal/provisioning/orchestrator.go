package provisioning

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/flyk3s/flyk3s/internal/config"
	"github.com/flyk3s/flyk3s/internal/platform/fly"
	"github.com/flyk3s/flyk3s/internal/util/naming"
)

// Orchestrator exposes the cluster-level operations behind the CLI.
type Orchestrator struct {
	cfg   *config.ClusterConfig
	fleet fly.FleetProvider
	prov  *NodeProvisioner
	boot  *BootstrapCoordinator
}

// NewOrchestrator wires the provisioning layers for one cluster.
func NewOrchestrator(cfg *config.ClusterConfig, fleet fly.FleetProvider) *Orchestrator {
	return &Orchestrator{
		cfg:   cfg,
		fleet: fleet,
		prov:  NewNodeProvisioner(cfg, fleet),
		boot:  NewBootstrapCoordinator(cfg, fleet),
	}
}

// Bootstrap returns the coordinator, so callers can adjust its polling bounds.
func (o *Orchestrator) Bootstrap() *BootstrapCoordinator {
	return o.boot
}

// CreateCluster ensures the control plane app and its three nodes.
//
// Nodes are created strictly sequentially: the bootstrap node first with
// cluster-init semantics, then, once it is ready and has issued a join
// token, the remaining nodes pointed at its internal address. Finally all
// control plane nodes are tainted against general workloads.
func (o *Orchestrator) CreateCluster(ctx context.Context) error {
	app := naming.ControlPlaneApp(o.cfg.Name)
	if err := o.prov.EnsureApp(ctx, app); err != nil {
		return err
	}

	bootstrapName := naming.ControlNode(o.cfg.BootstrapIndex)
	log.Printf("Creating control plane for cluster %s (bootstrap node %s)", o.cfg.Name, bootstrapName)

	if _, err := o.prov.EnsureNode(ctx, NodeSpec{
		App:       app,
		Name:      bootstrapName,
		Role:      RoleServer,
		Bootstrap: true,
		VMSize:    o.cfg.CPVMSize,
		MemoryMB:  o.cfg.CPVMMemory,
	}); err != nil {
		return err
	}

	if err := o.boot.AwaitReady(ctx); err != nil {
		return err
	}

	token, err := o.boot.FetchToken(ctx)
	if err != nil {
		return err
	}
	bootstrap, err := o.boot.LocateBootstrap(ctx)
	if err != nil {
		return err
	}
	joinServer := fmt.Sprintf("https://%s:%d", naming.InternalMachineAddr(bootstrap.ID, app), config.KubeAPIPort)

	for i := 0; i < config.ControlPlaneSize; i++ {
		if i == o.cfg.BootstrapIndex {
			continue
		}
		if _, err := o.prov.EnsureNode(ctx, NodeSpec{
			App:        app,
			Name:       naming.ControlNode(i),
			Role:       RoleServer,
			JoinServer: joinServer,
			JoinToken:  token,
			VMSize:     o.cfg.CPVMSize,
			MemoryMB:   o.cfg.CPVMMemory,
		}); err != nil {
			return err
		}
	}

	return o.TaintControlPlane(ctx)
}

// AddWorkerNodegroup ensures the app for one worker group and creates up
// to NODE_GROUP_SIZE workers, skipping names that already exist. Workers
// join through the control plane app's stable internal DNS name, so the
// group survives replacement of individual control plane machines.
func (o *Orchestrator) AddWorkerNodegroup(ctx context.Context, group string) error {
	app := naming.WorkerApp(o.cfg.Name, group)
	if err := o.prov.EnsureApp(ctx, app); err != nil {
		return err
	}

	token, err := o.boot.FetchToken(ctx)
	if err != nil {
		return err
	}
	joinServer := fmt.Sprintf("https://%s:%d",
		naming.InternalAppAddr(naming.ControlPlaneApp(o.cfg.Name)), config.KubeAPIPort)

	log.Printf("Ensuring %d workers in group %s", o.cfg.NodeGroupSize, group)
	for i := 0; i < o.cfg.NodeGroupSize; i++ {
		if _, err := o.prov.EnsureNode(ctx, NodeSpec{
			App:        app,
			Name:       naming.WorkerNode(group, i),
			Role:       RoleAgent,
			JoinServer: joinServer,
			JoinToken:  token,
			VMSize:     o.cfg.WorkerVMSize,
			MemoryMB:   o.cfg.WorkerVMMemory,
		}); err != nil {
			return err
		}
	}
	return nil
}

// TaintControlPlane excludes all control plane nodes from general
// scheduling. Re-applying the taint is a no-op thanks to --overwrite.
func (o *Orchestrator) TaintControlPlane(ctx context.Context) error {
	bootstrap, err := o.boot.LocateBootstrap(ctx)
	if err != nil {
		return err
	}
	app := naming.ControlPlaneApp(o.cfg.Name)

	res, err := o.fleet.Exec(ctx, app, bootstrap.ID, []string{
		"k3s", "kubectl", "taint", "nodes",
		"--selector", "node-role.kubernetes.io/control-plane=true",
		"node-role.kubernetes.io/control-plane=:NoSchedule",
		"--overwrite",
	})
	if err != nil {
		return fmt.Errorf("failed to taint control plane: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("taint exited %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	log.Printf("Control plane tainted against general workloads")
	return nil
}

// ListNodes returns the machines of the control plane ("cp") or of a
// worker group. Pure pass-through to the fleet provider.
func (o *Orchestrator) ListNodes(ctx context.Context, target string) ([]fly.Machine, error) {
	return o.fleet.ListMachines(ctx, o.TargetApp(target))
}

// TargetApp maps the CLI target ("cp" or a group id) to its app name.
func (o *Orchestrator) TargetApp(target string) string {
	if target == "cp" {
		return naming.ControlPlaneApp(o.cfg.Name)
	}
	return naming.WorkerApp(o.cfg.Name, target)
}
