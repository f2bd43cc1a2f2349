package fly

import "context"

// AppService manages fleet applications.
type AppService interface {
	ListApps(ctx context.Context, org string) ([]App, error)
	CreateApp(ctx context.Context, name, org string) error
}

// MachineService manages machines within an app.
type MachineService interface {
	ListMachines(ctx context.Context, app string) ([]Machine, error)
	RunMachine(ctx context.Context, app string, req MachineCreateRequest) (*Machine, error)
	// Exec runs a command inside a machine and returns its output.
	// A non-zero exit code is reported through ExecResult, not an error.
	Exec(ctx context.Context, app, machineID string, cmd []string) (*ExecResult, error)
}

// VolumeService manages persistent volumes within an app.
type VolumeService interface {
	CreateVolume(ctx context.Context, app string, req VolumeCreateRequest) (*Volume, error)
}

// FleetProvider is the full capability set the provisioning layer needs
// from the machine platform.
type FleetProvider interface {
	AppService
	MachineService
	VolumeService
}
