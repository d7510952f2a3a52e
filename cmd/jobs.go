package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	jobsOwner string
	jobsAll   bool
	jobsLimit int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List stored analysis runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		who := owner(jobsOwner)
		if jobsAll {
			who = ""
		}
		jobs, err := st.List(cmd.Context(), who, jobsLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(jobs) == 0 {
			fmt.Fprintln(out, "(no jobs)")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN ID\tDATASET\tOWNER\tSTATUS\tQUALITY\tCREATED")
		for _, j := range jobs {
			q := "-"
			if j.Quality != nil {
				q = fmt.Sprintf("%.1f%%", *j.Quality*100)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", j.RunID, j.Dataset, j.Owner, j.Status, q, humanize.Time(j.CreatedAt))
		}
		return tw.Flush()
	},
}

var jobsDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>...",
	Short: "Delete stored runs and their charts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		for _, id := range args {
			if err := st.Delete(cmd.Context(), id); err != nil {
				return fmt.Errorf("delete %s: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted %s\n", id)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsDeleteCmd)
	jobsCmd.Flags().StringVar(&jobsOwner, "owner", "", "list jobs of this owner (default from config)")
	jobsCmd.Flags().BoolVar(&jobsAll, "all", false, "list jobs of every owner")
	jobsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "maximum jobs to list (0 = all)")
}
