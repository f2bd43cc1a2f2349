// Package flyfake provides an in-memory FleetProvider for tests.
package flyfake

import (
	"context"
	"fmt"
	"sync"

	"github.com/flyk3s/flyk3s/internal/platform/fly"
)

// Provider simulates the machine platform in memory. It records every
// mutating call so tests can assert on side effects and ordering.
type Provider struct {
	mu sync.Mutex

	apps     map[string]fly.App
	machines map[string][]fly.Machine // app -> machines
	volumes  map[string][]fly.Volume  // app -> volumes

	nextMachine int
	nextVolume  int

	// CreatedMachines records machine names in creation order across apps.
	CreatedMachines []string
	// CreateAppCalls counts CreateApp invocations per app name.
	CreateAppCalls map[string]int

	// ExecFunc, when set, handles Exec calls. Otherwise Exec fails.
	ExecFunc func(ctx context.Context, app, machineID string, cmd []string) (*fly.ExecResult, error)

	// VolumeZones optionally fixes the zone sequence handed out to new
	// volumes. When exhausted (or unset) zones are generated as z0, z1, ...
	VolumeZones []string

	// Errors injected per operation.
	CreateVolumeErr error
	RunMachineErr   error
}

// New returns an empty fake provider.
func New() *Provider {
	return &Provider{
		apps:           make(map[string]fly.App),
		machines:       make(map[string][]fly.Machine),
		volumes:        make(map[string][]fly.Volume),
		CreateAppCalls: make(map[string]int),
	}
}

var _ fly.FleetProvider = (*Provider)(nil)

// ListApps implements fly.AppService.
func (p *Provider) ListApps(_ context.Context, _ string) ([]fly.App, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]fly.App, 0, len(p.apps))
	for _, a := range p.apps {
		out = append(out, a)
	}
	return out, nil
}

// CreateApp implements fly.AppService.
func (p *Provider) CreateApp(_ context.Context, name, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CreateAppCalls[name]++
	if _, ok := p.apps[name]; ok {
		return fmt.Errorf("app %s already exists", name)
	}
	p.apps[name] = fly.App{ID: name, Name: name, Status: "deployed"}
	return nil
}

// ListMachines implements fly.MachineService.
func (p *Provider) ListMachines(_ context.Context, app string) ([]fly.Machine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fly.Machine(nil), p.machines[app]...), nil
}

// RunMachine implements fly.MachineService.
func (p *Provider) RunMachine(_ context.Context, app string, req fly.MachineCreateRequest) (*fly.Machine, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RunMachineErr != nil {
		return nil, p.RunMachineErr
	}
	p.nextMachine++
	m := fly.Machine{
		ID:     fmt.Sprintf("mach%04d", p.nextMachine),
		Name:   req.Name,
		State:  "started",
		Region: req.Region,
		Config: req.Config,
	}
	p.machines[app] = append(p.machines[app], m)
	p.CreatedMachines = append(p.CreatedMachines, req.Name)
	return &m, nil
}

// Exec implements fly.MachineService.
func (p *Provider) Exec(ctx context.Context, app, machineID string, cmd []string) (*fly.ExecResult, error) {
	if p.ExecFunc != nil {
		return p.ExecFunc(ctx, app, machineID, cmd)
	}
	return nil, fmt.Errorf("no exec handler configured for machine %s", machineID)
}

// CreateVolume implements fly.VolumeService.
func (p *Provider) CreateVolume(_ context.Context, app string, req fly.VolumeCreateRequest) (*fly.Volume, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateVolumeErr != nil {
		return nil, p.CreateVolumeErr
	}
	zone := fmt.Sprintf("z%d", p.nextVolume)
	if p.nextVolume < len(p.VolumeZones) {
		zone = p.VolumeZones[p.nextVolume]
	}
	p.nextVolume++
	v := fly.Volume{
		ID:     fmt.Sprintf("vol_%08d", p.nextVolume),
		Name:   req.Name,
		Region: req.Region,
		Zone:   zone,
		SizeGB: req.SizeGB,
	}
	p.volumes[app] = append(p.volumes[app], v)
	return &v, nil
}

// Volumes returns the volumes created in an app.
func (p *Provider) Volumes(app string) []fly.Volume {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fly.Volume(nil), p.volumes[app]...)
}

// Machines returns the machines of an app.
func (p *Provider) Machines(app string) []fly.Machine {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fly.Machine(nil), p.machines[app]...)
}

// MachineByName returns the machine with the given name, or nil.
func (p *Provider) MachineByName(app, name string) *fly.Machine {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.machines[app] {
		if p.machines[app][i].Name == name {
			return &p.machines[app][i]
		}
	}
	return nil
}
