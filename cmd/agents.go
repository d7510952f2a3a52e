package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datalens/internal/orchestrator"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List the analysis stages in execution order",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch := orchestrator.New(log)
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tDESCRIPTION")
		for _, s := range orch.AvailableStages() {
			fmt.Fprintf(tw, "%s\t%s\n", s.Name, s.Description)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}
