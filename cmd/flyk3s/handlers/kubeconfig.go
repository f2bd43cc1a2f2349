package handlers

import (
	"context"
	"log"
)

// Kubeconfig handles the -k operation: it reads the cluster credentials
// from the bootstrap node, rewrites them for access over the fleet's
// internal DNS name, and stores them next to the cluster configuration.
func Kubeconfig(ctx context.Context, configDir string) error {
	orch, _, err := newOrchestrator(configDir)
	if err != nil {
		return err
	}

	path, err := orch.FetchKubeconfig(ctx, configDir)
	if err != nil {
		return err
	}
	log.Printf("Cluster credentials written to %s", path)
	return nil
}
