package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/bluebridge/internal/axiom"
)

var (
	axiomHabitat string
	axiomFrom    string
	axiomTo      string
	axiomsJSON   bool
)

var axiomsCmd = &cobra.Command{
	Use:   "axioms",
	Short: "Inspect the bridge axiom registry",
}

var axiomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded axioms",
	Long: `List the loaded bridge axioms, optionally filtered by habitat or domains.

Example:
  bluebridge axioms list
  bluebridge axioms list --habitat mangrove
  bluebridge axioms list --from service --to financial --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, cleanup, err := openPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		axioms := p.Registry().ByDomain(axiomFrom, axiomTo)
		if axiomHabitat != "" {
			filtered := axioms[:0]
			for _, a := range axioms {
				if a.AppliesTo(axiomHabitat) {
					filtered = append(filtered, a)
				}
			}
			axioms = filtered
		}

		if axiomsJSON {
			return printJSON(cmd, axioms)
		}
		printAxioms(cmd, axioms)
		return nil
	},
}

var axiomsShowCmd = &cobra.Command{
	Use:   "show <axiom-id>",
	Short: "Show one axiom as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, cleanup, err := openPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		a, err := p.Registry().Get(args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, a)
	},
}

func printAxioms(cmd *cobra.Command, axioms []*axiom.BridgeAxiom) {
	out := cmd.OutOrStdout()
	if len(axioms) == 0 {
		fmt.Fprintln(out, "No axioms match.")
		return
	}
	fmt.Fprintf(out, "%-8s %-12s %-12s %12s %6s  %s\n", "ID", "FROM", "TO", "COEFFICIENT", "CONF", "NAME")
	for _, a := range axioms {
		fmt.Fprintf(out, "%-8s %-12s %-12s %12g %6.2f  %s\n",
			a.ID, a.InputDomain, a.OutputDomain, a.Coefficient.Value, a.Confidence.Value(), a.Name)
		if len(a.Habitats) > 0 {
			fmt.Fprintf(out, "%-8s habitats: %s\n", "", strings.Join(a.Habitats, ", "))
		}
	}
}

func init() {
	rootCmd.AddCommand(axiomsCmd)
	axiomsCmd.AddCommand(axiomsListCmd)
	axiomsCmd.AddCommand(axiomsShowCmd)

	axiomsListCmd.Flags().StringVar(&axiomHabitat, "habitat", "", "only axioms applicable to this habitat")
	axiomsListCmd.Flags().StringVar(&axiomFrom, "from", "", "input domain filter")
	axiomsListCmd.Flags().StringVar(&axiomTo, "to", "", "output domain filter")
	axiomsListCmd.Flags().BoolVar(&axiomsJSON, "json", false, "print JSON")
}
