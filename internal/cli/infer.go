package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/bluebridge/internal/inference"
)

var (
	inferHabitat  string
	inferMaxSteps int
	inferKnown    []string
	inferJSON     bool
)

var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Reason over bridge axioms as rules",
}

var inferForwardCmd = &cobra.Command{
	Use:   "forward <domain=value>...",
	Short: "Derive every reachable domain from known facts",
	Long: `Forward-chain from known domain values. Each axiom fires at most once.

Example:
  bluebridge infer forward ecological=480000 --habitat mangrove`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		facts, err := parseFacts(args, inferHabitat)
		if err != nil {
			return err
		}

		p, _, cleanup, err := openPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		res := p.Engine().ForwardChain(context.Background(), facts, inferMaxSteps)
		if inferJSON {
			return printJSON(cmd, res)
		}

		out := cmd.OutOrStdout()
		if len(res.Steps) == 0 {
			fmt.Fprintln(out, "No rules fired.")
			return nil
		}
		for i, s := range res.Steps {
			fmt.Fprintf(out, "  %d. %-8s %s -> %s (confidence %.2f)\n", i+1, s.AxiomID, s.Input, s.Output, s.Confidence)
		}
		return nil
	},
}

var inferMissingCmd = &cobra.Command{
	Use:   "missing <target-domain>",
	Short: "List the inputs still needed to reach a domain",
	Long: `Walk the axioms backwards from a target domain and list the requirements
whose source domain is not yet known.

Example:
  bluebridge infer missing financial --known service`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, cleanup, err := openPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		missing := p.Engine().MissingEvidence(args[0], inferKnown)
		if inferJSON {
			return printJSON(cmd, missing)
		}

		out := cmd.OutOrStdout()
		if len(missing) == 0 {
			fmt.Fprintf(out, "Nothing missing for %s.\n", args[0])
			return nil
		}
		for _, r := range missing {
			fmt.Fprintf(out, "  %s%s <- %s via %s\n", strings.Repeat("  ", r.Depth-1), r.Domain, r.FromDomain, r.AxiomID)
		}
		return nil
	},
}

// parseFacts turns domain=value arguments into engine facts
func parseFacts(args []string, habitat string) (inference.Facts, error) {
	facts := make(inference.Facts, len(args))
	for _, arg := range args {
		domain, raw, ok := strings.Cut(arg, "=")
		domain = strings.TrimSpace(domain)
		if domain == "" {
			return nil, fmt.Errorf("invalid fact %q: want domain=value", arg)
		}
		f := map[string]any{}
		if ok && raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid fact %q: %w", arg, err)
			}
			f["value"] = v
		}
		if habitat != "" {
			f["habitat"] = habitat
		}
		facts[domain] = f
	}
	return facts, nil
}

func init() {
	rootCmd.AddCommand(inferCmd)
	inferCmd.AddCommand(inferForwardCmd)
	inferCmd.AddCommand(inferMissingCmd)

	inferCmd.PersistentFlags().BoolVar(&inferJSON, "json", false, "print JSON")
	inferForwardCmd.Flags().StringVar(&inferHabitat, "habitat", "", "restrict rules to a habitat")
	inferForwardCmd.Flags().IntVar(&inferMaxSteps, "max-steps", 0, "stop after this many rules (0 = no limit)")
	inferMissingCmd.Flags().StringSliceVar(&inferKnown, "known", nil, "domains already known")
}
