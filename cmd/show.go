package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datalens/internal/utils"
)

var (
	showFormat     string
	showRender     bool
	showActivities bool
	showWidth      int
)

var showCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Print the report of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := checkFormat(showFormat); err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		job, err := st.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("job %s: %w", args[0], err)
		}
		body, err := renderResult(job.Result, showFormat, showActivities)
		if err != nil {
			return err
		}
		if showRender && showFormat != "json" {
			r, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(showWidth),
			)
			if err != nil {
				return fmt.Errorf("markdown renderer: %w", err)
			}
			out, err := r.Render(string(body))
			if err != nil {
				return fmt.Errorf("render markdown: %w", err)
			}
			body = []byte(out)
		}
		_, err = cmd.OutOrStdout().Write(body)
		return err
	},
}

var chartsCmd = &cobra.Command{
	Use:   "charts <job-id>",
	Short: "Print the chart specifications of a stored run as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		charts, err := st.Charts(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("job %s: %w", args[0], err)
		}
		type chartOut struct {
			ID          string         `json:"id"`
			Type        string         `json:"type"`
			Title       string         `json:"title"`
			Description string         `json:"description,omitempty"`
			Columns     []string       `json:"columns,omitempty"`
			Config      map[string]any `json:"config"`
		}
		list := make([]chartOut, 0, len(charts))
		for _, c := range charts {
			cols := c.Columns
			if len(cols) == 0 && c.Column != "" {
				cols = []string{c.Column}
			}
			list = append(list, chartOut{c.ID, c.Type, c.Title, c.Description, cols, c.Config})
		}
		b, err := utils.PrettyJSON(list)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(chartsCmd)
	showCmd.Flags().StringVar(&showFormat, "format", "md", "output format: md|json")
	showCmd.Flags().BoolVar(&showRender, "render", stdoutIsTerminal(), "render Markdown for the terminal")
	showCmd.Flags().BoolVar(&showActivities, "activities", false, "include the activity log")
	showCmd.Flags().IntVar(&showWidth, "width", 100, "word wrap width for --render")
}

// stdoutIsTerminal reports whether stdout is a character device.
func stdoutIsTerminal() bool {
	if strings.EqualFold(os.Getenv("TERM"), "dumb") {
		return false
	}
	fi, err := os.Stdout.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
