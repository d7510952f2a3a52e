package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datalens/internal/ai"
	"github.com/KaramelBytes/datalens/internal/utils"
)

var (
	modelsProvider string
	modelsCatalog  string
	modelsJSON     bool
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the language models 'ask --llm' can use",
	Example: `  datalens models
  datalens models --provider ollama
  datalens models --catalog ./models.json --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if modelsCatalog != "" {
			if err := ai.MergeCatalogFile(modelsCatalog); err != nil {
				return fmt.Errorf("load catalog: %w", err)
			}
		}
		if modelsProvider != "" {
			if _, err := ai.New(modelsProvider, ai.Config{}); err != nil {
				return err
			}
		}
		list := ai.Models(modelsProvider)
		if modelsJSON {
			b, err := utils.PrettyJSON(list)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		}
		def := ""
		if cfg != nil {
			def = cfg.DefaultModel
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "MODEL\tPROVIDER\tCONTEXT")
		for _, m := range list {
			name := m.Name
			if name == def {
				name += " (default)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\n", name, m.Provider, m.ContextTokens)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.Flags().StringVar(&modelsProvider, "provider", "", "only list models of this provider")
	modelsCmd.Flags().StringVar(&modelsCatalog, "catalog", "", "merge model entries from a JSON file keyed by model name")
	modelsCmd.Flags().BoolVar(&modelsJSON, "json", false, "print the list as JSON")
}
