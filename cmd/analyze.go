package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KaramelBytes/datalens/internal/agent"
	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/events"
	"github.com/KaramelBytes/datalens/internal/orchestrator"
	"github.com/KaramelBytes/datalens/internal/report"
	"github.com/KaramelBytes/datalens/internal/store"
	"github.com/KaramelBytes/datalens/internal/utils"
)

// loadFlags are the dataset reading flags shared by analyze and batch.
type loadFlags struct {
	delimiter  string
	decimal    string
	thousands  string
	maxRows    int
	sheetName  string
	sheetIndex int
}

func (lf *loadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&lf.delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | 'tab' (sniffed if omitted)")
	cmd.Flags().StringVar(&lf.decimal, "decimal", "", "decimal separator for numbers: '.'|'comma' (auto-detect if omitted)")
	cmd.Flags().StringVar(&lf.thousands, "thousands", "", "thousands separator for numbers: ','|'.'|'space' (auto-detect if omitted)")
	cmd.Flags().IntVar(&lf.maxRows, "max-rows", 0, "maximum rows to load (0 = unlimited)")
	cmd.Flags().StringVar(&lf.sheetName, "sheet-name", "", "XLSX: sheet name to analyze")
	cmd.Flags().IntVar(&lf.sheetIndex, "sheet-index", 1, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
}

func (lf *loadFlags) options() (dataset.Options, error) {
	opt := dataset.DefaultOptions()
	opt.MaxRows = lf.maxRows
	opt.SheetName = lf.sheetName
	if lf.sheetIndex > 0 {
		opt.SheetIndex = lf.sheetIndex
	}
	switch lf.delimiter {
	case "":
	case ",":
		opt.Delimiter = ','
	case "\t", "tab":
		opt.Delimiter = '\t'
	case ";":
		opt.Delimiter = ';'
	default:
		return opt, fmt.Errorf("unsupported --delimiter: %s", lf.delimiter)
	}
	switch strings.ToLower(strings.TrimSpace(lf.decimal)) {
	case ",", "comma":
		opt.DecimalSeparator = ','
	case ".", "dot":
		opt.DecimalSeparator = '.'
	case "":
	default:
		return opt, fmt.Errorf("unsupported --decimal: %s (use '.'|'comma')", lf.decimal)
	}
	switch strings.ToLower(lf.thousands) {
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	case "":
	default:
		return opt, fmt.Errorf("unsupported --thousands: %s (use ','|'.'|'space')", lf.thousands)
	}
	return opt, nil
}

// runConfig carries what one file analysis needs besides the path.
type runConfig struct {
	load   dataset.Options
	stages []string
	owner  string
	store  *store.Store // nil skips persistence
	broker *events.Broker
	// progress receives one line per stage activity; stream receives them as
	// JSON lines. Either may be nil.
	progress io.Writer
	stream   io.Writer
}

// analyzeFile loads path, runs the stages on a fresh orchestrator and stores
// the result. The result is returned even when saving fails.
func analyzeFile(ctx context.Context, path string, rc runConfig) (*orchestrator.Result, error) {
	ds, err := dataset.Load(path, rc.load)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	runID := uuid.NewString()

	var sinks []events.Sink
	if rc.stream != nil {
		sinks = append(sinks, events.NewLineWriter(rc.stream, log))
	}
	var (
		sub  *events.Subscription
		done chan struct{}
	)
	if rc.broker != nil && rc.progress != nil {
		sub = rc.broker.Subscribe(runID)
		done = make(chan struct{})
		go func() {
			defer close(done)
			printProgress(rc.progress, sub)
		}()
		sinks = append(sinks, rc.broker)
	}

	orch := orchestrator.New(log,
		orchestrator.WithIDs(func() string { return runID }),
		orchestrator.WithSink(events.Tee(sinks...)))
	res, err := orch.RunAnalysis(ctx, ds, rc.stages...)
	if sub != nil {
		sub.Close()
		<-done
	}
	if err != nil {
		return nil, err
	}
	if rc.store != nil {
		if err := rc.store.Save(ctx, res.RunID, rc.owner, res); err != nil {
			return res, fmt.Errorf("save job: %w", err)
		}
	}
	return res, nil
}

func printProgress(w io.Writer, sub *events.Subscription) {
	for ev := range sub.C() {
		if ev.Type != events.TypeActivity || ev.Activity == nil {
			continue
		}
		mark := "→"
		switch ev.Activity.Status {
		case agent.StatusCompleted:
			mark = "✓"
		case agent.StatusFailed:
			mark = "✗"
		}
		fmt.Fprintf(w, "%s %s: %s\n", mark, ev.Activity.Agent, ev.Activity.Action)
	}
}

func checkFormat(format string) error {
	switch format {
	case "", "md", "markdown", "json":
		return nil
	}
	return fmt.Errorf("unsupported --format: %s (use md|json)", format)
}

// renderResult formats res as Markdown or JSON.
func renderResult(res *orchestrator.Result, format string, activities bool) ([]byte, error) {
	if err := checkFormat(format); err != nil {
		return nil, err
	}
	if format == "json" {
		return utils.PrettyJSON(res)
	}
	opt := report.DefaultOptions()
	opt.IncludeActivities = activities
	return []byte(report.Markdown(res, opt)), nil
}

var (
	anaLoad       loadFlags
	anaAgents     []string
	anaOwner      string
	anaStream     bool
	anaFormat     string
	anaOutputPath string
	anaNoStore    bool
	anaActivities bool
	anaQuiet      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Run the analysis stages over a CSV/TSV/XLSX file",
	Example: `  datalens analyze sales.csv
  datalens analyze sales.xlsx --sheet-name Q3 --agents data_profiler,recommendation
  datalens analyze sales.csv --format json --output sales.analysis.json --stream`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opt, err := anaLoad.options()
		if err != nil {
			return err
		}
		if err := checkFormat(anaFormat); err != nil {
			return err
		}
		rc := runConfig{load: opt, stages: anaAgents, owner: owner(anaOwner)}
		if !anaNoStore {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			rc.store = st
		}
		if anaStream {
			rc.stream = cmd.ErrOrStderr()
		} else if !anaQuiet {
			rc.broker = events.NewBroker(eventBuffer(), log)
			defer rc.broker.Close()
			rc.progress = cmd.ErrOrStderr()
		}

		res, runErr := analyzeFile(cmd.Context(), args[0], rc)
		if res == nil {
			return runErr
		}
		if runErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "⚠ Warning: %v\n", runErr)
		}
		out, err := renderResult(res, anaFormat, anaActivities)
		if err != nil {
			return err
		}
		if anaOutputPath != "" {
			if err := utils.SafeWriteFile(anaOutputPath, out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", anaOutputPath)
		} else {
			if _, err := cmd.OutOrStdout().Write(out); err != nil {
				return err
			}
		}
		if rc.store != nil && runErr == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Saved job %s (status %s)\n", res.RunID, res.Status)
		}
		log.Debug("analyze finished", zap.String("run_id", res.RunID), zap.String("status", string(res.Status)))
		if res.Status == agent.StatusCancelled {
			return fmt.Errorf("analysis cancelled: %s", res.Error)
		}
		return nil
	},
}

func eventBuffer() int {
	if cfg != nil {
		return cfg.EventBuffer
	}
	return events.DefaultBuffer
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	anaLoad.register(analyzeCmd)
	analyzeCmd.Flags().StringSliceVar(&anaAgents, "agents", nil, "comma-separated stages to run (default: all, see 'datalens agents')")
	analyzeCmd.Flags().StringVar(&anaOwner, "owner", "", "owner recorded with the job (default from config)")
	analyzeCmd.Flags().BoolVar(&anaStream, "stream", false, "write stage activities to stderr as JSON lines")
	analyzeCmd.Flags().StringVar(&anaFormat, "format", "md", "output format: md|json")
	analyzeCmd.Flags().StringVarP(&anaOutputPath, "output", "o", "", "write the report to a file instead of stdout")
	analyzeCmd.Flags().BoolVar(&anaNoStore, "no-store", false, "do not save the run in the job database")
	analyzeCmd.Flags().BoolVar(&anaActivities, "activities", false, "append the activity log to the Markdown report")
	analyzeCmd.Flags().BoolVar(&anaQuiet, "quiet", false, "suppress progress output")
}
