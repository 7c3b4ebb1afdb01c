package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate <draft-file>",
	Short: "Validate a stored LLM draft",
	Long: `Validate a generator draft without calling an LLM. The file is either raw
generator output or a JSON object:

  {"draft": {...}, "context": {...}, "category": "valuation", "allowed_dois": [...], "hops": 1}

Example:
  bluebridge validate draft.json --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, cleanup, err := openPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		resp, err := p.ValidateFile(context.Background(), args[0])
		if err != nil {
			return err
		}
		if validateJSON {
			return printJSON(cmd, resp)
		}
		renderResponse(cmd.OutOrStdout(), resp)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print JSON")
}
