package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/decklens/decklens/internal/batch"
	"github.com/decklens/decklens/internal/pipeline"
)

// batchCmd represents the batch command for multi-image processing.
var batchCmd = &cobra.Command{
	Use:   "batch [files...]",
	Short: "Process multiple decklist images with progress reporting",
	Long: `Process multiple decklist sheet images as a batch. Images are processed
sequentially by default; --parallel dispatches them to a worker pool.

A failed image does not abort the batch. Per-image errors are reported as
they occur and summarized at the end.

Examples:
  decklens batch photos/*.jpg
  decklens batch a.jpg b.jpg --parallel --workers 4
  decklens batch photos/*.jpg --output-dir results/`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runBatchCommand,
}

func runBatchCommand(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	parallel := cfg.Batch.Parallel
	if cmd.Flags().Changed("parallel") {
		parallel, _ = cmd.Flags().GetBool("parallel")
	}
	workers := cfg.Batch.MaxWorkers
	if cmd.Flags().Changed("workers") {
		workers, _ = cmd.Flags().GetInt("workers")
	}
	outputDir := cfg.Batch.OutputDir
	if cmd.Flags().Changed("output-dir") {
		outputDir, _ = cmd.Flags().GetString("output-dir")
	}
	quiet, _ := cmd.Flags().GetBool("quiet")

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	inputs := collectInputs(args)

	pipe, err := buildPipeline()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = pipe.Close() }()

	orch := batch.New(pipe, batch.Config{
		Parallel:   parallel,
		MaxWorkers: workers,
	}, nil)

	out := cmd.OutOrStdout()
	var failed int
	for ev := range orch.Stream(cmd.Context(), inputs) {
		switch ev.Kind {
		case batch.EventProgress:
			if !quiet {
				fmt.Fprintf(out, "[%d/%d] %s\n", ev.Progress.Current, ev.Progress.Total, ev.Progress.Filename)
			}
		case batch.EventResult:
			if outputDir != "" {
				if err := writeDecklist(outputDir, ev.Result.Filename, ev.Result.Decklist); err != nil {
					return err
				}
			}
			if !quiet {
				fmt.Fprintf(out, "  %s: %d cards, %.1f%% matched\n",
					ev.Result.Filename, ev.Result.Decklist.Stats.TotalCards, ev.Result.Decklist.Stats.Accuracy)
			}
		case batch.EventError:
			failed++
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", ev.Error.Filename, ev.Error.Error)
		case batch.EventComplete:
			c := ev.Complete
			fmt.Fprintf(out, "Processed %d image(s): %d succeeded, %d failed",
				c.Total, c.Successful, c.Failed)
			if c.AverageAccuracy != nil {
				fmt.Fprintf(out, ", average accuracy %.1f%%", *c.AverageAccuracy)
			}
			fmt.Fprintf(out, " in %.2fs\n", c.ProcessingTime)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d image(s) failed", failed)
	}
	return nil
}

// collectInputs reads the input files up front. Unreadable files are kept
// with nil data so their failure is reported in-stream instead of aborting
// the whole batch.
func collectInputs(paths []string) []batch.Input {
	inputs := make([]batch.Input, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path) //nolint:gosec // G304: operator-provided input paths
		if err != nil {
			data = nil
		}
		inputs = append(inputs, batch.Input{Filename: filepath.Base(path), Data: data})
	}
	return inputs
}

func writeDecklist(dir, filename string, res *pipeline.DecklistResult) error {
	s, err := pipeline.ToJSON(res)
	if err != nil {
		return err
	}
	base := strings.TrimSuffix(filename, filepath.Ext(filename)) + ".json"
	path := filepath.Join(dir, base)
	if err := os.WriteFile(path, []byte(s), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().Bool("parallel", false, "process images with a worker pool")
	batchCmd.Flags().IntP("workers", "w", 0, "worker count in parallel mode (default from config)")
	batchCmd.Flags().String("output-dir", "", "write one JSON file per decklist into this directory")
	batchCmd.Flags().BoolP("quiet", "q", false, "suppress per-image progress output")
}
