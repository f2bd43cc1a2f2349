package fly

// App is a fleet application grouping machines under one private network
// and one internal DNS name.
type App struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// Volume is a persistent disk pinned to one zone of a region.
type Volume struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region"`
	Zone   string `json:"zone"`
	SizeGB int    `json:"size_gb"`
}

// VolumeCreateRequest asks the platform for a new volume.
type VolumeCreateRequest struct {
	Name   string `json:"name"`
	Region string `json:"region"`
	SizeGB int    `json:"size_gb"`
	// RequireUniqueZone spreads volumes (and therefore the machines that
	// mount them) across distinct hardware zones.
	RequireUniqueZone bool `json:"require_unique_zone"`
	// AutoBackupEnabled controls platform-side snapshot scheduling.
	AutoBackupEnabled bool `json:"auto_backup_enabled"`
}

// Guest describes the VM size of a machine.
type Guest struct {
	CPUKind  string `json:"cpu_kind"`
	CPUs     int    `json:"cpus"`
	MemoryMB int    `json:"memory_mb"`
}

// Mount attaches a volume to a machine at a path.
type Mount struct {
	Volume string `json:"volume"`
	Path   string `json:"path"`
}

// RestartPolicy controls what the platform does when the machine's main
// process exits.
type RestartPolicy struct {
	Policy string `json:"policy"`
}

// MachineConfig is the boot-time configuration of a machine.
type MachineConfig struct {
	Image   string            `json:"image"`
	Guest   *Guest            `json:"guest,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Mounts  []Mount           `json:"mounts,omitempty"`
	Restart *RestartPolicy    `json:"restart,omitempty"`
}

// MachineCreateRequest asks the platform to run a new machine.
type MachineCreateRequest struct {
	Name   string        `json:"name"`
	Region string        `json:"region"`
	Config MachineConfig `json:"config"`
}

// Machine is a running (or provisioning) VM.
type Machine struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	State     string        `json:"state"`
	Region    string        `json:"region"`
	PrivateIP string        `json:"private_ip,omitempty"`
	Config    MachineConfig `json:"config"`
}

// ExecResult is the outcome of a command executed inside a machine.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}
