package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/bluebridge/internal/model"
	"github.com/ppiankov/bluebridge/internal/pipeline"
)

var (
	askQueryFile  string
	askSite       string
	askCategory   string
	askAxioms     []string
	askFrom       string
	askTo         string
	askChainInput float64
	askTimeout    time.Duration
	askJSON       bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Answer a question from a graph query result",
	Long: `Retrieve context from a graph query result, ask the configured LLM for a
draft and validate it: DOIs are verified, numbers are checked against the
context, and the confidence is capped by the evidence.

Example:
  bluebridge ask "What is the tourism value of Cabo Pulmo?" --query cabo.json --site "Cabo Pulmo"
  bluebridge ask "What is the carbon value?" --query q.json --axioms BA-013,BA-014 --chain-input 480000`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	req := pipeline.AnswerRequest{
		Question: strings.Join(args, " "),
		Site:     askSite,
		Category: askCategory,
		Axioms:   askAxioms,
		From:     askFrom,
		To:       askTo,
	}
	if askQueryFile != "" {
		qr, err := readQueryResult(askQueryFile)
		if err != nil {
			return err
		}
		req.Query = qr
	}
	if cmd.Flags().Changed("chain-input") {
		v := askChainInput
		req.ChainInput = &v
	}

	p, _, cleanup, err := openPipeline()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), askTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "⚙️  Asking %s...\n", generatorName(p))
	ans, err := p.Answer(ctx, req)
	if err != nil {
		return err
	}

	if askJSON {
		return printJSON(cmd, ans)
	}
	renderResponse(cmd.OutOrStdout(), ans.Response)
	return nil
}

func generatorName(p *pipeline.Pipeline) string {
	if g := p.Generator(); g != nil {
		return g.Name()
	}
	return "no generator"
}

// readQueryResult loads a graph query result from a JSON file
func readQueryResult(path string) (model.QueryResult, error) {
	var qr model.QueryResult
	data, err := os.ReadFile(path)
	if err != nil {
		return qr, fmt.Errorf("read query result: %w", err)
	}
	if err := json.Unmarshal(data, &qr); err != nil {
		return qr, fmt.Errorf("decode query result: %w", err)
	}
	return qr, nil
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringVarP(&askQueryFile, "query", "q", "", "graph query result JSON file")
	askCmd.Flags().StringVar(&askSite, "site", "", "site to start graph traversal from")
	askCmd.Flags().StringVar(&askCategory, "category", "", "question category (valuation, financial, risk, ...)")
	askCmd.Flags().StringSliceVar(&askAxioms, "axioms", nil, "axiom chain to explain")
	askCmd.Flags().StringVar(&askFrom, "from", "", "input domain for an automatic axiom chain")
	askCmd.Flags().StringVar(&askTo, "to", "", "output domain for an automatic axiom chain")
	askCmd.Flags().Float64Var(&askChainInput, "chain-input", 0, "value to run the axiom chain on")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 2*time.Minute, "overall timeout")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print JSON")
}
