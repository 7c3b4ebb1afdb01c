package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/bluebridge/internal/model"
	"github.com/ppiankov/bluebridge/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

var batchCmd = &cobra.Command{
	Use:   "batch <list-file>",
	Short: "Validate many stored drafts in parallel",
	Long: `Validate every draft listed in a file (one path per line, '#' comments
allowed) and write one validated response per draft.

Example:
  bluebridge batch drafts.txt
  bluebridge batch drafts.txt --concurrency 8 --output-dir ./validated`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", runtime.NumCPU(), "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./bluebridge-validated", "output directory for validated responses")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  bluebridge Batch Validation\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p, _, cleanup, err := openPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	processor := worker.NewBatchProcessor(p, concurrency)
	results, err := processor.ProcessList(ctx, file)
	if err != nil {
		return fmt.Errorf("process list: %w", err)
	}

	risk := map[string]int{}
	failures := 0
	for _, res := range results {
		if res.Error != nil {
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Path, res.Error)
			continue
		}

		outPath := filepath.Join(outputDir, outputName(res.Path))
		if err := writeResponse(outPath, res.Response); err != nil {
			failures++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", res.Path, err)
			continue
		}
		risk[res.Response.ProvenanceRisk]++
		fmt.Fprintf(os.Stderr, "✓ %s (risk: %s, confidence: %.2f)\n", res.Path, res.Response.ProvenanceRisk, res.Response.Confidence)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:       %d drafts\n", len(results))
	fmt.Fprintf(os.Stderr, "  Low risk:    %d\n", risk[model.RiskLow])
	fmt.Fprintf(os.Stderr, "  Medium risk: %d\n", risk[model.RiskMedium])
	fmt.Fprintf(os.Stderr, "  High risk:   %d\n", risk[model.RiskHigh])
	fmt.Fprintf(os.Stderr, "  Failures:    %d\n", failures)
	fmt.Fprintf(os.Stderr, "  Output:      %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

// outputName derives "<draft>.validated.json" from a draft path
func outputName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return sanitizeFilename(base) + ".validated.json"
}

func writeResponse(path string, resp *model.QueryResponse) error {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// sanitizeFilename replaces characters that are unsafe in file names
func sanitizeFilename(s string) string {
	s = strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "-",
	).Replace(s)
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}
