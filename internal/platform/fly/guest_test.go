package fly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVMSize(t *testing.T) {
	tests := []struct {
		size     string
		memoryMB int
		want     Guest
	}{
		{"shared-cpu-1x", 256, Guest{CPUKind: "shared", CPUs: 1, MemoryMB: 256}},
		{"shared-cpu-4x", 8192, Guest{CPUKind: "shared", CPUs: 4, MemoryMB: 8192}},
		{"performance-2x", 4096, Guest{CPUKind: "performance", CPUs: 2, MemoryMB: 4096}},
	}
	for _, tc := range tests {
		t.Run(tc.size, func(t *testing.T) {
			got, err := ParseVMSize(tc.size, tc.memoryMB)
			require.NoError(t, err)
			assert.Equal(t, tc.want, *got)
		})
	}
}

func TestParseVMSizeRejects(t *testing.T) {
	for _, size := range []string{"", "tiny", "shared-cpu", "shared-cpu-0x", "shared-cpu-four", "huge-cpu-2x"} {
		t.Run(size, func(t *testing.T) {
			_, err := ParseVMSize(size, 1024)
			assert.Error(t, err)
		})
	}
}
