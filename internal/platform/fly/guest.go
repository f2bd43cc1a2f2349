package fly

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseVMSize converts a platform size name like "shared-cpu-4x" or
// "performance-2x" into a Guest spec with the given memory.
func ParseVMSize(size string, memoryMB int) (*Guest, error) {
	parts := strings.Split(size, "-")
	if len(parts) < 2 {
		return nil, fmt.Errorf("invalid vm size %q", size)
	}

	count := parts[len(parts)-1]
	if !strings.HasSuffix(count, "x") {
		return nil, fmt.Errorf("invalid vm size %q: missing cpu count suffix", size)
	}
	cpus, err := strconv.Atoi(strings.TrimSuffix(count, "x"))
	if err != nil || cpus <= 0 {
		return nil, fmt.Errorf("invalid vm size %q: bad cpu count", size)
	}

	kind := parts[0]
	if kind != "shared" && kind != "performance" {
		return nil, fmt.Errorf("invalid vm size %q: unknown cpu kind %q", size, kind)
	}

	return &Guest{CPUKind: kind, CPUs: cpus, MemoryMB: memoryMB}, nil
}
