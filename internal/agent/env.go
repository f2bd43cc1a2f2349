package agent

import (
	"fmt"
	"os"
	"strconv"
)

// Env is the bootstrap environment contract injected into every machine:
// the orchestrator sets the role, cluster networking, and join parameters,
// and the platform injects the machine and app identity values.
type Env struct {
	Role      string // "server" or "agent"
	Bootstrap bool   // cluster-init semantics, server role only

	MachineID string // platform-injected instance id, becomes the hostname
	AppName   string // platform-injected app name, used for the TLS SAN
	Region    string
	Zone      string

	ClusterCIDR string
	ServiceCIDR string
	ClusterDNS  string
	K3sVersion  string

	JoinServer string
	JoinToken  string
}

// EnvFromProcess parses the agent environment from the process environment.
func EnvFromProcess() (*Env, error) {
	return ParseEnv(os.LookupEnv)
}

// ParseEnv builds and validates an Env from a lookup function.
func ParseEnv(lookup func(string) (string, bool)) (*Env, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	e := &Env{
		Role:        get("ROLE"),
		MachineID:   get("FLY_MACHINE_ID"),
		AppName:     get("FLY_APP_NAME"),
		Region:      get("REGION"),
		Zone:        get("ZONE"),
		ClusterCIDR: get("CLUSTER_CIDR"),
		ServiceCIDR: get("SERVICE_CIDR"),
		ClusterDNS:  get("CLUSTER_DNS"),
		K3sVersion:  get("K3S_VERSION"),
		JoinServer:  get("K3S_SERVER"),
		JoinToken:   get("K3S_TOKEN"),
	}
	if raw, ok := lookup("BOOTSTRAP"); ok {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid BOOTSTRAP value %q", raw)
		}
		e.Bootstrap = b
	}

	if err := e.validate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Env) validate() error {
	if e.Role != "server" && e.Role != "agent" {
		return fmt.Errorf("ROLE must be server or agent, got %q", e.Role)
	}
	for _, req := range []struct{ key, value string }{
		{"FLY_MACHINE_ID", e.MachineID},
		{"FLY_APP_NAME", e.AppName},
		{"K3S_VERSION", e.K3sVersion},
	} {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.key)
		}
	}

	if e.Role == "server" {
		for _, req := range []struct{ key, value string }{
			{"CLUSTER_CIDR", e.ClusterCIDR},
			{"SERVICE_CIDR", e.ServiceCIDR},
			{"CLUSTER_DNS", e.ClusterDNS},
		} {
			if req.value == "" {
				return fmt.Errorf("%s is required for server nodes", req.key)
			}
		}
	}

	if e.Bootstrap {
		if e.Role != "server" {
			return fmt.Errorf("BOOTSTRAP is only valid for server nodes")
		}
		return nil
	}
	// Every non-bootstrap node joins through the bootstrap node.
	if e.JoinServer == "" {
		return fmt.Errorf("K3S_SERVER is required for joining nodes")
	}
	if e.JoinToken == "" {
		return fmt.Errorf("K3S_TOKEN is required for joining nodes")
	}
	return nil
}
