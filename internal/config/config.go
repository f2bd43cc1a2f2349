// Package config loads and validates per-cluster configuration.
//
// A cluster is described by a directory containing a cluster.conf file with
// key=value pairs. The configuration is loaded once at startup, validated
// before any platform call is made, and treated as immutable afterwards.
package config

// ConfigFileName is the configuration file expected inside a cluster directory.
const ConfigFileName = "cluster.conf"

// ControlPlaneSize is the fixed number of control plane nodes per cluster.
const ControlPlaneSize = 3

// KubeAPIPort is the port the k3s API server listens on.
const KubeAPIPort = 6443

// ClusterConfig holds the full configuration of a single cluster.
// All fields except NodeImage and BootstrapIndex are required.
type ClusterConfig struct {
	Name           string `mapstructure:"CLUSTER_NAME"`
	ClusterCIDR    string `mapstructure:"CLUSTER_CIDR"`
	ServiceCIDR    string `mapstructure:"SERVICE_CIDR"`
	ClusterDNS     string `mapstructure:"CLUSTER_DNS"`
	Region         string `mapstructure:"REGION"`
	NodeGroupSize  int    `mapstructure:"NODE_GROUP_SIZE"`
	VolumeSize     int    `mapstructure:"VOLUME_SIZE"`
	VolumeName     string `mapstructure:"VOLUME_NAME"`
	WorkerVMSize   string `mapstructure:"WORKER_VM_SIZE"`
	WorkerVMMemory int    `mapstructure:"WORKER_VM_MEMORY"`
	CPVMSize       string `mapstructure:"CP_VM_SIZE"`
	CPVMMemory     int    `mapstructure:"CP_VM_MEMORY"`
	K3sVersion     string `mapstructure:"K3S_VERSION"`
	OrgName        string `mapstructure:"ORG_NAME"`

	// NodeImage is the machine image booted on every node. Image assembly is
	// handled outside this tool, so this defaults to the cluster's registry tag.
	NodeImage string `mapstructure:"NODE_IMAGE"`

	// BootstrapIndex selects which control plane index is initialized with
	// cluster-init semantics. Operators override this for disaster recovery
	// when ctrl-0 is unrecoverable.
	BootstrapIndex int `mapstructure:"BOOTSTRAP_INDEX"`
}
