package naming

import "testing"

func TestNamingFunctions(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"ControlPlaneApp", ControlPlaneApp("staging"), "staging-cp"},
		{"WorkerApp", WorkerApp("staging", "0"), "staging-worker-0"},
		{"ControlNode first", ControlNode(0), "ctrl-0"},
		{"ControlNode last", ControlNode(2), "ctrl-2"},
		{"WorkerNode", WorkerNode("0", 5), "worker-0-5"},
		{"InternalAppAddr", InternalAppAddr("staging-cp"), "staging-cp.internal"},
		{"InternalMachineAddr", InternalMachineAddr("e784079b", "staging-cp"), "e784079b.vm.staging-cp.internal"},
	}

	for _, tc := range tests {
		if tc.got != tc.expected {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.expected, tc.got)
		}
	}
}
