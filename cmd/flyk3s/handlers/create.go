package handlers

import (
	"context"
	"log"

	"github.com/flyk3s/flyk3s/internal/config"
)

// Create handles the -c operation: it ensures the control plane app, its
// three server nodes, and the scheduling taint. Re-running against an
// existing cluster repairs missing pieces and changes nothing else.
func Create(ctx context.Context, configDir string) error {
	orch, cfg, err := newOrchestrator(configDir)
	if err != nil {
		return err
	}

	log.Printf("Creating cluster: %s", cfg.Name)
	if err := orch.CreateCluster(ctx); err != nil {
		return err
	}
	log.Printf("Control plane ready: %d nodes", config.ControlPlaneSize)
	return nil
}
