package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/decklens/decklens/internal/match"
	"github.com/decklens/decklens/internal/pipeline"
)

const (
	outputFormatJSON = "json"
	outputFormatCSV  = "csv"
	outputFormatText = "text"
)

// scanCmd represents the scan command.
var scanCmd = &cobra.Command{
	Use:   "scan [files...]",
	Short: "Extract a structured decklist from decklist sheet images",
	Long: `Process one or more decklist sheet images and print the parsed decklist.

Supported formats: JPEG, PNG, BMP

Examples:
  decklens scan decklist.jpg
  decklens scan *.png --format csv
  decklens scan sheet.jpg --output result.json`,
	Args:         cobra.ArbitraryArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return errors.New("no input files provided")
		}

		cfg := GetConfig()
		format := cfg.Output.Format
		if cmd.Flags().Changed("format") {
			format, _ = cmd.Flags().GetString("format")
		}
		outputFile := cfg.Output.File
		if cmd.Flags().Changed("output") {
			outputFile, _ = cmd.Flags().GetString("output")
		}
		if format != outputFormatJSON && format != outputFormatCSV && format != outputFormatText {
			return fmt.Errorf("invalid output format: %s (must be one of: json, csv, text)", format)
		}

		pipe, err := buildPipeline()
		if err != nil {
			return fmt.Errorf("failed to build pipeline: %w", err)
		}
		defer func() { _ = pipe.Close() }()

		out := cmd.OutOrStdout()
		var f *os.File
		if outputFile != "" {
			f, err = os.Create(outputFile) //nolint:gosec // G304: operator-provided output path
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer func() { _ = f.Close() }()
			out = f
		}

		for _, path := range args {
			res, err := pipe.ProcessFile(cmd.Context(), path)
			if err != nil {
				return fmt.Errorf("failed to process %s: %w", path, err)
			}
			if err := writeResult(out, res, format); err != nil {
				return err
			}
		}
		return nil
	},
}

func writeResult(w io.Writer, res *pipeline.DecklistResult, format string) error {
	switch format {
	case outputFormatJSON:
		s, err := pipeline.ToJSON(res)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, s)
		return err
	case outputFormatCSV:
		s, err := pipeline.ToCSV(res)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, s)
		return err
	default:
		_, err := fmt.Fprint(w, renderText(res))
		return err
	}
}

// renderText produces a human-readable decklist summary.
func renderText(res *pipeline.DecklistResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Decklist %s\n", res.ID)
	if res.Metadata.Placement != nil {
		fmt.Fprintf(&b, "Placement: %d\n", *res.Metadata.Placement)
	}
	if res.Metadata.Event != nil {
		fmt.Fprintf(&b, "Event: %s\n", *res.Metadata.Event)
	}
	if res.Metadata.Date != nil {
		fmt.Fprintf(&b, "Date: %s\n", *res.Metadata.Date)
	}

	sections := []struct {
		title string
		cards []match.ResolvedCard
	}{
		{"Legend", res.Legend},
		{"Main Deck", res.MainDeck},
		{"Battlefields", res.Battlefields},
		{"Runes", res.Runes},
		{"Side Deck", res.SideDeck},
	}
	for _, sec := range sections {
		if len(sec.cards) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s:\n", sec.title)
		for _, c := range sec.cards {
			name := c.NameSource
			if c.NameCanonical != "" {
				name = fmt.Sprintf("%s (%s)", c.NameSource, c.NameCanonical)
			}
			marker := ""
			if c.MatchType == match.TypeUnmatched {
				marker = " [unmatched]"
			}
			fmt.Fprintf(&b, "  %dx %s%s\n", c.Quantity, name, marker)
		}
	}

	fmt.Fprintf(&b, "\nMatched %d/%d cards (%.1f%%)\n",
		res.Stats.MatchedCards, res.Stats.TotalCards, res.Stats.Accuracy)
	return b.String()
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("format", "f", "json", "output format (json, csv, text)")
	scanCmd.Flags().StringP("output", "o", "", "write output to file instead of stdout")
}
