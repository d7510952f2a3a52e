package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/datalens/internal/utils"
)

var (
	batchLoad        loadFlags
	batchAgents      []string
	batchOwner       string
	batchConcurrency int
	batchOutputDir   string
	batchFormat      string
	batchNoStore     bool
	batchQuiet       bool
)

// expandInputs resolves globs, keeps literal paths that exist and drops
// duplicates. The result is sorted.
func expandInputs(args []string) []string {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files
}

// reportName maps an input file to its report file name inside dir. Inputs
// sharing a base name get a numeric suffix.
func reportName(dir, path, ext string, taken map[string]int) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	taken[base]++
	if n := taken[base]; n > 1 {
		base = fmt.Sprintf("%s__%d", base, n)
	}
	return filepath.Join(dir, base+".analysis"+ext)
}

var batchCmd = &cobra.Command{
	Use:   "batch <files...>",
	Short: "Analyze several files in parallel, one independent run per file",
	Example: `  datalens batch data/*.csv --concurrency 8
  datalens batch q1.xlsx q2.xlsx --output-dir reports --format md`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files := expandInputs(args)
		if len(files) == 0 {
			return fmt.Errorf("no input files matched")
		}
		opt, err := batchLoad.options()
		if err != nil {
			return err
		}
		if err := checkFormat(batchFormat); err != nil {
			return err
		}
		limit := batchConcurrency
		if limit <= 0 && cfg != nil {
			limit = cfg.BatchConcurrency
		}
		if limit <= 0 {
			limit = 1
		}

		rc := runConfig{load: opt, stages: batchAgents, owner: owner(batchOwner)}
		if !batchNoStore {
			st, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			rc.store = st
		}
		ext := ".md"
		if batchFormat == "json" {
			ext = ".json"
		}
		outPaths := make([]string, len(files))
		if batchOutputDir != "" {
			taken := map[string]int{}
			for i, f := range files {
				outPaths[i] = reportName(batchOutputDir, f, ext, taken)
			}
		}

		out := cmd.OutOrStdout()
		var (
			mu       sync.Mutex
			finished int
		)
		errs := make([]error, len(files))
		g, ctx := errgroup.WithContext(cmd.Context())
		g.SetLimit(limit)
		for i, path := range files {
			i, path := i, path
			g.Go(func() error {
				res, err := analyzeFile(ctx, path, rc)
				if err == nil && outPaths[i] != "" {
					var body []byte
					if body, err = renderResult(res, batchFormat, false); err == nil {
						err = utils.SafeWriteFile(outPaths[i], body)
					}
				}
				errs[i] = err
				mu.Lock()
				defer mu.Unlock()
				finished++
				if !batchQuiet {
					if err != nil {
						fmt.Fprintf(out, "[%d/%d] ✗ %s: %v\n", finished, len(files), filepath.Base(path), err)
					} else {
						fmt.Fprintf(out, "[%d/%d] ✓ %s: run %s %s\n", finished, len(files), filepath.Base(path), res.RunID, res.Status)
					}
				}
				// one bad file must not cancel the others
				return nil
			})
		}
		_ = g.Wait()

		failed := 0
		for i, err := range errs {
			if err != nil {
				failed++
				log.Warn("batch item failed", zap.String("file", files[i]), zap.Error(err))
			}
		}
		if !batchQuiet {
			fmt.Fprintf(out, "\n%d/%d files analyzed", len(files)-failed, len(files))
			if batchOutputDir != "" {
				fmt.Fprintf(out, ", reports in %s", batchOutputDir)
			}
			fmt.Fprintln(out)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(files))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
	batchLoad.register(batchCmd)
	batchCmd.Flags().StringSliceVar(&batchAgents, "agents", nil, "comma-separated stages to run (default: all)")
	batchCmd.Flags().StringVar(&batchOwner, "owner", "", "owner recorded with the jobs (default from config)")
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "c", 0, "parallel runs (default from config batch_concurrency)")
	batchCmd.Flags().StringVar(&batchOutputDir, "output-dir", "", "write one report per input file into this directory")
	batchCmd.Flags().StringVar(&batchFormat, "format", "md", "report format for --output-dir: md|json")
	batchCmd.Flags().BoolVar(&batchNoStore, "no-store", false, "do not save the runs in the job database")
	batchCmd.Flags().BoolVar(&batchQuiet, "quiet", false, "suppress progress and summary output")
}
