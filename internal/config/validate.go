package config

import (
	"fmt"
	"net"
	"strings"
)

// Validate checks that every required field is present and well formed.
// It returns an error naming the first missing field so a truncated
// configuration never reaches the provisioning layer.
func (c *ClusterConfig) Validate() error {
	required := []struct {
		key string
		ok  bool
	}{
		{"CLUSTER_NAME", c.Name != ""},
		{"CLUSTER_CIDR", c.ClusterCIDR != ""},
		{"SERVICE_CIDR", c.ServiceCIDR != ""},
		{"CLUSTER_DNS", c.ClusterDNS != ""},
		{"REGION", c.Region != ""},
		{"NODE_GROUP_SIZE", c.NodeGroupSize > 0},
		{"VOLUME_SIZE", c.VolumeSize > 0},
		{"VOLUME_NAME", c.VolumeName != ""},
		{"WORKER_VM_SIZE", c.WorkerVMSize != ""},
		{"WORKER_VM_MEMORY", c.WorkerVMMemory > 0},
		{"CP_VM_SIZE", c.CPVMSize != ""},
		{"CP_VM_MEMORY", c.CPVMMemory > 0},
		{"K3S_VERSION", c.K3sVersion != ""},
		{"ORG_NAME", c.OrgName != ""},
	}
	for _, field := range required {
		if !field.ok {
			return fmt.Errorf("%s is required", field.key)
		}
	}

	for _, cidr := range []struct{ key, value string }{
		{"CLUSTER_CIDR", c.ClusterCIDR},
		{"SERVICE_CIDR", c.ServiceCIDR},
	} {
		if err := validateCIDRPair(cidr.value); err != nil {
			return fmt.Errorf("invalid %s: %w", cidr.key, err)
		}
	}

	if ip := net.ParseIP(c.ClusterDNS); ip == nil {
		return fmt.Errorf("invalid CLUSTER_DNS %q: not an IP address", c.ClusterDNS)
	}

	if c.BootstrapIndex < 0 || c.BootstrapIndex >= ControlPlaneSize {
		return fmt.Errorf("BOOTSTRAP_INDEX %d out of range [0,%d)", c.BootstrapIndex, ControlPlaneSize)
	}

	return nil
}

// validateCIDRPair accepts a dual-stack CIDR pair ("v4,v6") or a single CIDR.
func validateCIDRPair(pair string) error {
	cidrs := strings.Split(pair, ",")
	if len(cidrs) > 2 {
		return fmt.Errorf("expected one or two comma-separated CIDRs, got %q", pair)
	}
	for _, cidr := range cidrs {
		if _, _, err := net.ParseCIDR(strings.TrimSpace(cidr)); err != nil {
			return err
		}
	}
	return nil
}
