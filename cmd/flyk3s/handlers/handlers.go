// Package handlers implements the CLI operations behind the flag surface.
//
// Each handler loads the cluster configuration, builds an orchestrator
// against the fleet API, and runs one operation. Construction goes through
// factory variables so tests can substitute a fake fleet.
package handlers

import (
	"fmt"
	"os"

	"github.com/flyk3s/flyk3s/internal/config"
	"github.com/flyk3s/flyk3s/internal/platform/fly"
	"github.com/flyk3s/flyk3s/internal/provisioning"
)

// Factory function variables - can be replaced in tests.
var (
	// newFleetProvider builds the fleet API client from the environment.
	newFleetProvider = func() (fly.FleetProvider, error) {
		token := os.Getenv("FLY_API_TOKEN")
		if token == "" {
			return nil, fmt.Errorf("FLY_API_TOKEN environment variable is required")
		}
		return fly.NewClient(token), nil
	}
)

// newOrchestrator loads and validates the cluster config from configDir
// and wires an orchestrator for it. Validation failures surface here,
// before any fleet call is made.
func newOrchestrator(configDir string) (*provisioning.Orchestrator, *config.ClusterConfig, error) {
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, err
	}
	fleet, err := newFleetProvider()
	if err != nil {
		return nil, nil, err
	}
	return provisioning.NewOrchestrator(cfg, fleet), cfg, nil
}
