// Package commands defines the CLI command structure and flag bindings.
//
// The CLI is flag-driven: one operation flag selects what to do with the
// cluster described by the positional configuration directory. Command
// execution is delegated to handler functions in the handlers package.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flyk3s/flyk3s/cmd/flyk3s/handlers"
)

var versionInfo = "dev"

// SetVersionInfo records build metadata for --version.
func SetVersionInfo(version, commit, date string) {
	versionInfo = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}

// Root returns the root command for the flyk3s CLI.
func Root() *cobra.Command {
	var (
		create     bool
		addGroup   string
		taint      bool
		listTarget string
		sshTarget  string
		kubeconfig bool
	)

	cmd := &cobra.Command{
		Use:   "flyk3s [flags] <config-dir>",
		Short: "Provision k3s clusters on Fly.io Machines",
		Long: `Provision and operate a k3s cluster on Fly.io Machines.

The configuration directory must contain a cluster.conf file with the
cluster's identity, network ranges, sizing, and runtime version. Exactly
one operation flag is required per invocation.

Examples:
  # Create or repair the control plane
  flyk3s -c clusters/staging

  # Add (or extend) worker node group 0
  flyk3s -a 0 clusters/staging

  # List control plane nodes, open a console into a worker
  flyk3s -l cp clusters/staging
  flyk3s -s 0 clusters/staging

  # Fetch cluster credentials into the config directory
  flyk3s -k clusters/staging`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir := args[0]
			ctx := cmd.Context()

			selected := 0
			for _, on := range []bool{create, addGroup != "", taint, listTarget != "", sshTarget != "", kubeconfig} {
				if on {
					selected++
				}
			}
			if selected != 1 {
				return fmt.Errorf("exactly one of -c, -a, -t, -l, -s, -k is required")
			}

			switch {
			case create:
				return handlers.Create(ctx, configDir)
			case addGroup != "":
				return handlers.AddNodegroup(ctx, configDir, addGroup)
			case taint:
				return handlers.Taint(ctx, configDir)
			case listTarget != "":
				return handlers.List(ctx, configDir, listTarget, cmd.OutOrStdout())
			case sshTarget != "":
				return handlers.SSH(ctx, configDir, sshTarget)
			default:
				return handlers.Kubeconfig(ctx, configDir)
			}
		},
	}

	cmd.Version = versionInfo
	cmd.Flags().BoolVarP(&create, "create", "c", false, "Create or repair the control plane")
	cmd.Flags().StringVarP(&addGroup, "add-nodegroup", "a", "", "Ensure the worker node group with this id")
	cmd.Flags().BoolVarP(&taint, "taint", "t", false, "Re-apply the control plane scheduling taint")
	cmd.Flags().StringVarP(&listTarget, "list", "l", "", "List nodes of 'cp' or a worker group id")
	cmd.Flags().StringVarP(&sshTarget, "ssh", "s", "", "Open a console into 'cp' or a worker group id")
	cmd.Flags().BoolVarP(&kubeconfig, "kubeconfig", "k", false, "Fetch cluster credentials into the config directory")

	return cmd
}
