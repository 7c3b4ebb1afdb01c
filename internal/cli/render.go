package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/bluebridge/internal/model"
)

// renderResponse prints a validated answer for a terminal
func renderResponse(w io.Writer, resp *model.QueryResponse) {
	fmt.Fprintln(w, strings.Repeat("═", 59))
	fmt.Fprintln(w, "  Answer")
	fmt.Fprintln(w, strings.Repeat("═", 59))
	fmt.Fprintln(w)
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w)

	b := resp.ConfidenceBreakdown
	fmt.Fprintf(w, "Confidence:      %.2f (%s)\n", resp.Confidence, b.Level)
	fmt.Fprintf(w, "  tier %.2f × path %.2f × freshness %.2f × sample %.2f = %.2f\n",
		b.TierBase, b.PathDiscount, b.StalenessDiscount, b.SampleFactor, b.Composite)
	fmt.Fprintf(w, "Provenance risk: %s (completeness %.2f)\n", resp.ProvenanceRisk, resp.EvidenceCompletenessScore)
	if resp.ProvenanceEntityID != "" {
		fmt.Fprintf(w, "Provenance id:   %s\n", resp.ProvenanceEntityID)
	}

	if len(resp.Evidence) > 0 {
		fmt.Fprintf(w, "\nEvidence (%d, %d with DOI):\n", resp.EvidenceCount, resp.DOICitationCount)
		for _, ev := range resp.Evidence {
			mark := "✓"
			if !ev.Valid {
				mark = "✗"
			}
			label := ev.DOI
			if ev.URL() != "" {
				label = ev.URL()
			}
			fmt.Fprintf(w, "  %s %s [%s] %s\n", mark, label, ev.Tier, ev.Status)
		}
	}

	if len(resp.VerifiedClaims)+len(resp.UnverifiedClaims) > 0 {
		fmt.Fprintf(w, "\nNumerical claims: %d verified, %d unverified\n", len(resp.VerifiedClaims), len(resp.UnverifiedClaims))
	}

	warnings := append(append([]string{}, resp.ProvenanceWarnings...), resp.Caveats...)
	if len(warnings) > 0 {
		fmt.Fprintln(w, "\nCaveats:")
		for _, c := range warnings {
			fmt.Fprintf(w, "  ⚠ %s\n", c)
		}
	}
}
