package handlers

import (
	"context"
	"log"
)

// AddNodegroup handles the -a operation: it ensures the worker app for
// the group and creates workers up to the configured group size, skipping
// nodes that already exist.
func AddNodegroup(ctx context.Context, configDir, group string) error {
	orch, cfg, err := newOrchestrator(configDir)
	if err != nil {
		return err
	}

	log.Printf("Ensuring node group %s for cluster %s", group, cfg.Name)
	return orch.AddWorkerNodegroup(ctx, group)
}
