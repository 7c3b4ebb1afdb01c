package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/bluebridge/internal/provenance"
)

var (
	lineageDepth int
	certFormat   string
	certOutput   string
	provJSON     bool
)

var provenanceCmd = &cobra.Command{
	Use:     "provenance",
	Aliases: []string{"prov"},
	Short:   "Inspect recorded provenance",
	Long: `Inspect the PROV records written by chain and ask. Provenance persists
across runs only with the badger or sqlite backend (provenance.backend).`,
}

var provenanceLineageCmd = &cobra.Command{
	Use:   "lineage <entity-id>",
	Short: "Show the derivation tree of an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, cleanup, err := openPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		lineage, err := p.Provenance().GetLineage(context.Background(), args[0], lineageDepth)
		if err != nil {
			return err
		}
		if provJSON {
			return printJSON(cmd, lineage)
		}

		out := cmd.OutOrStdout()
		for _, rec := range lineage {
			fmt.Fprintf(out, "%s%s (%s)", strings.Repeat("  ", rec.Depth), rec.Entity.ID, rec.Entity.Type)
			if v, ok := rec.Entity.Attributes["value"]; ok {
				fmt.Fprintf(out, " = %v", v)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

var provenanceCertificateCmd = &cobra.Command{
	Use:   "certificate <entity-id>",
	Short: "Export an audit certificate for an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, cleanup, err := openPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		cert, err := p.Certificate(context.Background(), args[0])
		if err != nil {
			return err
		}

		var data []byte
		switch certFormat {
		case "json":
			data, err = json.MarshalIndent(cert, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal certificate: %w", err)
			}
		case "markdown", "md":
			data = []byte(cert.Markdown())
		default:
			return fmt.Errorf("unknown format %q (json, markdown)", certFormat)
		}

		if certOutput == "" {
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		if err := os.WriteFile(certOutput, data, 0o644); err != nil {
			return fmt.Errorf("write certificate: %w", err)
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote certificate: %s\n", certOutput)
		return nil
	},
}

var provenanceVerifyCmd = &cobra.Command{
	Use:   "verify <certificate.json>",
	Short: "Check a certificate's checksum",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read certificate: %w", err)
		}
		var cert provenance.Certificate
		if err := json.Unmarshal(data, &cert); err != nil {
			return fmt.Errorf("decode certificate: %w", err)
		}

		ok, err := cert.Verify()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("certificate for %s failed verification", cert.Entity.ID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ certificate for %s verified (%s)\n", cert.Entity.ID, cert.Checksum)
		return nil
	},
}

var provenanceSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count stored provenance records",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, cleanup, err := openPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		s, err := p.Provenance().Summary(context.Background())
		if err != nil {
			return err
		}
		return printJSON(cmd, s)
	},
}

func init() {
	rootCmd.AddCommand(provenanceCmd)
	provenanceCmd.AddCommand(provenanceLineageCmd)
	provenanceCmd.AddCommand(provenanceCertificateCmd)
	provenanceCmd.AddCommand(provenanceVerifyCmd)
	provenanceCmd.AddCommand(provenanceSummaryCmd)

	provenanceLineageCmd.Flags().IntVar(&lineageDepth, "depth", -1, "maximum lineage depth (-1 = configured default)")
	provenanceLineageCmd.Flags().BoolVar(&provJSON, "json", false, "print JSON")
	provenanceCertificateCmd.Flags().StringVar(&certFormat, "format", "json", "output format (json, markdown)")
	provenanceCertificateCmd.Flags().StringVarP(&certOutput, "output", "o", "", "write to file instead of stdout")
}
