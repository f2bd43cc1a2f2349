// Package prerequisites checks for the client tools the CLI shells out to.
package prerequisites

import (
	"fmt"
	"os/exec"
	"strings"
)

// Tool is a client binary some operation depends on.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Description explains what the tool is used for.
	Description string

	// InstallURL points at installation instructions.
	InstallURL string
}

// ConsoleTools returns the tools required for interactive node access.
// The platform CLI owns the WireGuard transport into the private network.
func ConsoleTools() []Tool {
	return []Tool{
		{
			Name:        "fly",
			Description: "Required for console sessions into cluster machines",
			InstallURL:  "https://fly.io/docs/flyctl/install/",
		},
	}
}

// lookPath locates a binary in PATH - replaced in tests.
var lookPath = exec.LookPath

// Check verifies that every tool is available and reports all missing
// ones in a single error.
func Check(tools []Tool) error {
	var missing []string
	for _, tool := range tools {
		if _, err := lookPath(tool.Name); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s)", tool.Name, tool.InstallURL))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}
