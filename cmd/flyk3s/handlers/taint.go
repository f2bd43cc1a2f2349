package handlers

import "context"

// Taint handles the -t operation: it re-applies the control plane
// scheduling taint. Safe to run at any time once the cluster exists.
func Taint(ctx context.Context, configDir string) error {
	orch, _, err := newOrchestrator(configDir)
	if err != nil {
		return err
	}
	return orch.TaintControlPlane(ctx)
}
