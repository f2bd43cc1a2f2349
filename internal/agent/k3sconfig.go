package agent

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// K3sDataDir is the runtime data directory, kept on the persistent volume
// so node identity and cluster state survive machine replacement.
const K3sDataDir = "/data/k3s"

// K3sConfig is the k3s configuration document written to the node.
// Field names follow the k3s config.yaml schema.
type K3sConfig struct {
	NodeName   string   `yaml:"node-name"`
	DataDir    string   `yaml:"data-dir"`
	NodeLabels []string `yaml:"node-label,omitempty"`

	// Server-only fields.
	ClusterInit    bool     `yaml:"cluster-init,omitempty"`
	ClusterCIDR    string   `yaml:"cluster-cidr,omitempty"`
	ServiceCIDR    string   `yaml:"service-cidr,omitempty"`
	ClusterDNS     string   `yaml:"cluster-dns,omitempty"`
	FlannelBackend string   `yaml:"flannel-backend,omitempty"`
	TLSSAN         []string `yaml:"tls-san,omitempty"`

	// Join parameters, set on every node except the bootstrap server.
	Server string `yaml:"server,omitempty"`
	Token  string `yaml:"token,omitempty"`
}

// BuildK3sConfig derives the node's k3s configuration from its environment.
// The node name is the machine id so that cluster-side operations can
// address nodes without a separate name registry.
func BuildK3sConfig(env *Env) *K3sConfig {
	cfg := &K3sConfig{
		NodeName: env.MachineID,
		DataDir:  K3sDataDir,
		NodeLabels: []string{
			"topology.kubernetes.io/region=" + env.Region,
			"topology.kubernetes.io/zone=" + env.Zone,
		},
	}

	if env.Role == "server" {
		cfg.ClusterCIDR = env.ClusterCIDR
		cfg.ServiceCIDR = env.ServiceCIDR
		cfg.ClusterDNS = env.ClusterDNS
		cfg.FlannelBackend = "vxlan"
		cfg.TLSSAN = []string{fmt.Sprintf("%s.internal", env.AppName)}
	}

	if env.Bootstrap {
		cfg.ClusterInit = true
	} else {
		cfg.Server = env.JoinServer
		cfg.Token = env.JoinToken
	}
	return cfg
}

// Marshal renders the document as YAML.
func (c *K3sConfig) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling k3s config: %w", err)
	}
	return out, nil
}
