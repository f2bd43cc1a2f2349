package handlers

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
)

// List handles the -l operation: it prints the machines of the control
// plane ("cp") or of one worker group.
func List(ctx context.Context, configDir, target string, out io.Writer) error {
	orch, _, err := newOrchestrator(configDir)
	if err != nil {
		return err
	}

	machines, err := orch.ListNodes(ctx, target)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATE\tREGION")
	for _, m := range machines {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.ID, m.Name, m.State, m.Region)
	}
	return w.Flush()
}
