package provisioning

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/flyk3s/flyk3s/internal/config"
	"github.com/flyk3s/flyk3s/internal/platform/fly"
)

const (
	// VolumeMountPath is where every node mounts its data volume.
	VolumeMountPath = "/data"

	// volumeIDPrefix is the identifier prefix the platform assigns to
	// volumes. A response without it means the create call was mangled.
	volumeIDPrefix = "vol_"
)

// RoleServer and RoleAgent are the two node roles k3s distinguishes.
const (
	RoleServer = "server"
	RoleAgent  = "agent"
)

// NodeSpec describes one machine to create.
type NodeSpec struct {
	App        string
	Name       string
	Role       string // RoleServer or RoleAgent
	Bootstrap  bool   // cluster-init semantics, RoleServer only
	JoinServer string // empty for the bootstrap node
	JoinToken  string // empty for the bootstrap node
	VMSize     string
	MemoryMB   int
}

// NodeProvisioner creates volumes and machines through the fleet provider.
// Every create is preceded by an existence check, so re-running an
// operation never produces a second copy of a resource.
type NodeProvisioner struct {
	cfg   *config.ClusterConfig
	fleet fly.FleetProvider
}

// NewNodeProvisioner creates a provisioner bound to one cluster config.
func NewNodeProvisioner(cfg *config.ClusterConfig, fleet fly.FleetProvider) *NodeProvisioner {
	return &NodeProvisioner{cfg: cfg, fleet: fleet}
}

// EnsureApp creates the fleet app if it does not exist yet.
func (p *NodeProvisioner) EnsureApp(ctx context.Context, name string) error {
	apps, err := p.fleet.ListApps(ctx, p.cfg.OrgName)
	if err != nil {
		return fmt.Errorf("failed to list apps: %w", err)
	}
	for _, app := range apps {
		if app.ID == name {
			return nil
		}
	}
	if err := p.fleet.CreateApp(ctx, name, p.cfg.OrgName); err != nil {
		return fmt.Errorf("failed to create app %s: %w", name, err)
	}
	log.Printf("Created app %s in org %s", name, p.cfg.OrgName)
	return nil
}

// CreateVolume creates a data volume in the app. Volumes are requested with
// unique-zone placement so every node of an app lands on distinct hardware,
// and platform-side snapshotting is disabled as a fixed policy (k3s state
// is reproducible from the cluster itself).
func (p *NodeProvisioner) CreateVolume(ctx context.Context, app string) (*fly.Volume, error) {
	vol, err := p.fleet.CreateVolume(ctx, app, fly.VolumeCreateRequest{
		Name:              p.cfg.VolumeName,
		Region:            p.cfg.Region,
		SizeGB:            p.cfg.VolumeSize,
		RequireUniqueZone: true,
		AutoBackupEnabled: false,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create volume in %s: %w", app, err)
	}
	if !strings.HasPrefix(vol.ID, volumeIDPrefix) {
		return nil, fmt.Errorf("volume response for %s has unexpected id %q", app, vol.ID)
	}
	if vol.Zone == "" {
		return nil, fmt.Errorf("volume %s was created without a zone", vol.ID)
	}
	return vol, nil
}

// NodeExists reports whether a machine with the given name exists in app.
func (p *NodeProvisioner) NodeExists(ctx context.Context, app, name string) (bool, error) {
	machines, err := p.fleet.ListMachines(ctx, app)
	if err != nil {
		return false, fmt.Errorf("failed to list machines in %s: %w", app, err)
	}
	for _, m := range machines {
		if m.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// CreateNode runs a machine with the composed bootstrap environment and the
// volume mounted at VolumeMountPath.
func (p *NodeProvisioner) CreateNode(ctx context.Context, spec NodeSpec, vol *fly.Volume) (*fly.Machine, error) {
	guest, err := fly.ParseVMSize(spec.VMSize, spec.MemoryMB)
	if err != nil {
		return nil, err
	}

	env := map[string]string{
		"ROLE":         spec.Role,
		"REGION":       p.cfg.Region,
		"ZONE":         vol.Zone,
		"BOOTSTRAP":    strconv.FormatBool(spec.Bootstrap),
		"CLUSTER_CIDR": p.cfg.ClusterCIDR,
		"SERVICE_CIDR": p.cfg.ServiceCIDR,
		"CLUSTER_DNS":  p.cfg.ClusterDNS,
		"K3S_VERSION":  p.cfg.K3sVersion,
	}
	if spec.JoinServer != "" {
		env["K3S_SERVER"] = spec.JoinServer
	}
	if spec.JoinToken != "" {
		env["K3S_TOKEN"] = spec.JoinToken
	}

	machine, err := p.fleet.RunMachine(ctx, spec.App, fly.MachineCreateRequest{
		Name:   spec.Name,
		Region: p.cfg.Region,
		Config: fly.MachineConfig{
			Image:   p.cfg.NodeImage,
			Guest:   guest,
			Env:     env,
			Mounts:  []fly.Mount{{Volume: vol.ID, Path: VolumeMountPath}},
			Restart: &fly.RestartPolicy{Policy: "always"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to run machine %s: %w", spec.Name, err)
	}
	return machine, nil
}

// EnsureNode creates the node unless it already exists. It returns true
// when a machine was created. A volume left behind by a failed machine
// create is not rolled back, only reported, so an operator can reap it.
func (p *NodeProvisioner) EnsureNode(ctx context.Context, spec NodeSpec) (bool, error) {
	exists, err := p.NodeExists(ctx, spec.App, spec.Name)
	if err != nil {
		return false, err
	}
	if exists {
		log.Printf("Node %s already exists in %s, skipping", spec.Name, spec.App)
		return false, nil
	}

	vol, err := p.CreateVolume(ctx, spec.App)
	if err != nil {
		return false, err
	}

	if _, err := p.CreateNode(ctx, spec, vol); err != nil {
		log.Printf("Warning: volume %s in %s is orphaned after failed machine create, remove it manually", vol.ID, spec.App)
		return false, err
	}
	log.Printf("Created node %s in %s (zone %s)", spec.Name, spec.App, vol.Zone)
	return true, nil
}
