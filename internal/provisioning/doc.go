// Package provisioning drives cluster fleet creation on the machine platform.
//
// It is organized in three layers: NodeProvisioner creates volumes and
// machines with existence checks so every operation is idempotent,
// BootstrapCoordinator locates the bootstrap node and gates the rest of the
// rollout on its readiness and join token, and Orchestrator composes both
// into the cluster-level operations exposed by the CLI.
//
// All remote operations are synchronous and nodes are created one at a
// time in program order: the second and third control plane nodes need the
// bootstrap node's token, which only exists once the bootstrap node is up.
package provisioning
