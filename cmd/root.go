package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/datalens/internal/config"
	"github.com/KaramelBytes/datalens/internal/logging"
	"github.com/KaramelBytes/datalens/internal/store"
)

var (
	// Global flags
	cfgFile       string
	debug         bool
	flagDBPath    string
	flagLogFormat string

	// Loaded configuration and process logger
	cfg *cfgpkg.Global
	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "datalens",
	Short: "DataLens: multi-stage analysis of tabular datasets",
	Long: `DataLens profiles a CSV/TSV/XLSX dataset, discovers correlations and trends,
proposes charts and ranks recommendations. Finished runs are stored locally and
can be questioned in plain language.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	err := rootCmd.Execute()
	_ = log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.datalens/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "job database path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format: console|json (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to defaults so config commands can repair the file
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = &cfgpkg.Global{LogLevel: "info", LogFormat: "console", DefaultOwner: "local"}
	}
	cfg = c

	f := rootCmd.PersistentFlags()
	if f.Changed("db") && flagDBPath != "" {
		cfg.DBPath = flagDBPath
	}
	if f.Changed("log-format") && flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}
	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	l, err := logging.New(level, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v; logging disabled\n", err)
		l = zap.NewNop()
	}
	log = l
}

// openStore opens the job database from the effective config.
func openStore() (*store.Store, error) {
	if cfg == nil || cfg.DBPath == "" {
		return nil, fmt.Errorf("no job database configured (set db_path or pass --db)")
	}
	return store.Open(cfg.DBPath, log)
}

// owner resolves the job owner: the flag value, else the configured default.
func owner(flag string) string {
	if flag != "" {
		return flag
	}
	if cfg != nil && cfg.DefaultOwner != "" {
		return cfg.DefaultOwner
	}
	return "local"
}
