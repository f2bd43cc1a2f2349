// Package naming provides consistent naming for fleet resources.
//
// Apps follow the pattern {cluster}-{role} and machines follow
// {role}-{index} for the control plane or {role}-{group}-{index} for
// worker groups. Names are the idempotency keys for machine creation,
// so they must be stable across runs.
package naming

import "fmt"

// ControlPlaneApp returns the fleet app holding all control plane machines.
func ControlPlaneApp(cluster string) string {
	return fmt.Sprintf("%s-cp", cluster)
}

// WorkerApp returns the fleet app holding one worker node group.
func WorkerApp(cluster, group string) string {
	return fmt.Sprintf("%s-worker-%s", cluster, group)
}

// ControlNode returns the machine name for control plane index i.
func ControlNode(i int) string {
	return fmt.Sprintf("ctrl-%d", i)
}

// WorkerNode returns the machine name for index i of a worker group.
func WorkerNode(group string, i int) string {
	return fmt.Sprintf("worker-%s-%d", group, i)
}

// InternalAppAddr returns the stable private DNS name of an app.
// It resolves to all machines of the app, so it survives node replacement.
func InternalAppAddr(app string) string {
	return fmt.Sprintf("%s.internal", app)
}

// InternalMachineAddr returns the private DNS name of a single machine.
func InternalMachineAddr(machineID, app string) string {
	return fmt.Sprintf("%s.vm.%s.internal", machineID, app)
}
