package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ppiankov/bluebridge/internal/pipeline"
)

var (
	chainSubject string
	chainFrom    string
	chainTo      string
	chainJSON    bool
)

var chainCmd = &cobra.Command{
	Use:   "chain <value> [axiom-id...]",
	Short: "Translate a value through a chain of bridge axioms",
	Long: `Apply bridge axioms in order to a starting value and record every step in
provenance. With --from and --to the shortest axiom path between the two
domains is used instead of explicit ids.

Example:
  bluebridge chain 480000 BA-013 BA-014 --subject "mangrove hectares"
  bluebridge chain 4.63 --from ecological --to financial --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChain,
}

func runChain(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("parse value %q: %w", args[0], err)
	}

	p, _, cleanup, err := openPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	ids := args[1:]
	if len(ids) == 0 {
		if chainFrom == "" || chainTo == "" {
			return errors.New("give axiom ids or both --from and --to")
		}
		for _, r := range p.Engine().FindChain(chainFrom, chainTo) {
			ids = append(ids, r.AxiomID)
		}
		if len(ids) == 0 {
			return fmt.Errorf("no axiom chain from %s to %s", chainFrom, chainTo)
		}
	}

	run, err := p.ApplyChain(context.Background(), ids, value, chainSubject)
	if err != nil {
		return err
	}

	if chainJSON {
		return printJSON(cmd, run)
	}
	printChainRun(cmd, run)
	return nil
}

func printChainRun(cmd *cobra.Command, run *pipeline.ChainRun) {
	out := cmd.OutOrStdout()
	res := run.Result

	fmt.Fprintf(out, "Input: %g (%s)\n\n", res.InitialValue, run.InputEntityID)
	for i, s := range res.Steps {
		fmt.Fprintf(out, "  %d. %-8s %g x %g = %g", i+1, s.AxiomID, s.InputValue, s.Coefficient, s.OutputValue)
		if s.CILow != nil && s.CIHigh != nil {
			fmt.Fprintf(out, "  [%g, %g]", *s.CILow, *s.CIHigh)
		}
		fmt.Fprintln(out)
		if s.SourceDOI != "" {
			fmt.Fprintf(out, "     source: https://doi.org/%s\n", s.SourceDOI)
		}
	}

	fmt.Fprintf(out, "\nResult:     %g\n", res.FinalValue)
	if res.CILow != nil && res.CIHigh != nil {
		fmt.Fprintf(out, "Interval:   [%g, %g] (relative error %.1f%%)\n", *res.CILow, *res.CIHigh, res.RelativeError*100)
	}
	fmt.Fprintf(out, "Confidence: %.3f\n", res.Confidence)
	fmt.Fprintf(out, "Entity:     %s\n", run.FinalEntityID)
	for _, c := range res.Caveats {
		fmt.Fprintf(out, "  ⚠ %s\n", c)
	}
}

func init() {
	rootCmd.AddCommand(chainCmd)

	chainCmd.Flags().StringVar(&chainSubject, "subject", "", "what the starting value measures")
	chainCmd.Flags().StringVar(&chainFrom, "from", "", "input domain (used when no axiom ids are given)")
	chainCmd.Flags().StringVar(&chainTo, "to", "", "output domain (used when no axiom ids are given)")
	chainCmd.Flags().BoolVar(&chainJSON, "json", false, "print JSON")
}
