package validate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/bluebridge/internal/doi"
	"github.com/ppiankov/bluebridge/internal/extract"
	"github.com/ppiankov/bluebridge/internal/logging"
	"github.com/ppiankov/bluebridge/internal/metrics"
	"github.com/ppiankov/bluebridge/internal/model"
	"github.com/ppiankov/bluebridge/internal/score"
)

var tracer = otel.Tracer("bluebridge.validate")

// completenessThreshold separates medium from low provenance risk
const completenessThreshold = 0.75

// DOIVerifier checks evidence DOIs
type DOIVerifier interface {
	VerifyAll(ctx context.Context, raws []string) []doi.Result
}

// Input is a draft answer plus what it must be checked against
type Input struct {
	Draft       map[string]any // decoded generator object
	Context     any            // graph context searched for claimed numbers
	Category    string         // question category, e.g. "valuation"
	AllowedDOIs []string       // DOIs present in the retrieved context; empty disables the check
	Hops        int            // inference hops between data and answer
}

// ResponseValidator is the guardrail applied to generated answers
type ResponseValidator struct {
	verifier  DOIVerifier
	tiers     *TierClassifier
	claims    *extract.ClaimExtractor
	scorer    *score.Scorer
	strict    map[string]bool
	tolerance float64
	logger    *zap.Logger
	now       func() time.Time
}

// NewResponseValidator creates a validator
func NewResponseValidator(cfg model.ValidationConfig, verifier DOIVerifier, scorer *score.Scorer, logger *zap.Logger) *ResponseValidator {
	strict := make(map[string]bool, len(cfg.StrictCategories))
	for _, c := range cfg.StrictCategories {
		strict[strings.ToLower(strings.TrimSpace(c))] = true
	}
	tolerance := cfg.ClaimTolerance
	if tolerance <= 0 {
		tolerance = 0.05
	}
	if verifier == nil {
		verifier = doi.NewVerifier(model.DefaultConfig().DOI, logger)
	}
	if scorer == nil {
		scorer = score.NewScorer(model.DefaultConfig().Scoring)
	}

	return &ResponseValidator{
		verifier:  verifier,
		tiers:     NewTierClassifier(cfg),
		claims:    extract.NewClaimExtractor(),
		scorer:    scorer,
		strict:    strict,
		tolerance: tolerance,
		logger:    logging.OrNop(logger),
		now:       time.Now,
	}
}

// ValidateRaw decodes free-form generator output and validates it
func (v *ResponseValidator) ValidateRaw(ctx context.Context, raw string, in Input) *model.QueryResponse {
	in.Draft = extract.ExtractJSON(raw).Data
	return v.Validate(ctx, in)
}

// Validate runs every stage and never fails: problems become caveats,
// statuses and a lower confidence
func (v *ResponseValidator) Validate(ctx context.Context, in Input) *model.QueryResponse {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "validate.ResponseValidator.Validate",
		trace.WithAttributes(attribute.String("category", in.Category)),
	)
	defer span.End()

	var caveats []string

	// 1. Schema
	draft, fixes := v.schemaStage(ctx, in.Draft)
	caveats = append(caveats, fixes...)

	// 2. Evidence DOIs
	evidence, warnings := v.evidenceStage(ctx, draft.Evidence, in.AllowedDOIs)
	caveats = append(caveats, warnings...)

	// 3. Numerical claims
	verified, unverified := v.claimsStage(ctx, draft.Answer, in.Context)
	for _, c := range unverified {
		caveats = append(caveats, fmt.Sprintf("unverified numerical claim: %s not found in graph context", c.Text))
	}

	resp := &model.QueryResponse{
		Answer:           draft.Answer,
		Evidence:         evidence,
		AxiomsUsed:       draft.AxiomsUsed,
		GraphPath:        draft.GraphPath,
		VerifiedClaims:   verified,
		UnverifiedClaims: unverified,
	}

	// 4. Provenance summary
	v.provenanceStage(ctx, resp, len(verified)+len(unverified))

	// 5. Strict mode
	if v.strictStage(ctx, resp, in.Category) {
		caveats = append(caveats, fmt.Sprintf("answer withheld: no citation-grade evidence for a %s question", in.Category))
	}

	// Confidence never exceeds what the evidence supports
	breakdown := v.scorer.Score(evidenceNodes(evidence), in.Hops)
	resp.ConfidenceBreakdown = breakdown
	resp.Confidence = round4(math.Min(draft.Confidence, breakdown.Composite))
	if resp.InsufficientEvidence {
		resp.Confidence = 0
	}

	resp.Caveats = dedupe(append(draft.Caveats, caveats...))

	metrics.ValidationRisk.WithLabelValues(resp.ProvenanceRisk).Inc()
	metrics.ValidationDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("provenance_risk", resp.ProvenanceRisk),
		attribute.Int("caveats", len(resp.Caveats)),
		attribute.Float64("confidence", resp.Confidence),
	)
	v.logger.Debug("validated response",
		zap.String("category", in.Category),
		zap.String("risk", resp.ProvenanceRisk),
		zap.Int("evidence", resp.EvidenceCount),
		zap.Int("doi_citations", resp.DOICitationCount),
		zap.Int("unverified_claims", len(unverified)),
		zap.Float64("confidence", resp.Confidence),
	)
	return resp
}

func (v *ResponseValidator) schemaStage(ctx context.Context, raw map[string]any) (model.Draft, []string) {
	_, span := tracer.Start(ctx, "validate.schema")
	defer span.End()

	if raw == nil {
		raw = map[string]any{}
	}
	draft, fixes := coerceDraft(raw)
	span.SetAttributes(attribute.Int("fixes", len(fixes)))
	return draft, fixes
}

func (v *ResponseValidator) evidenceStage(ctx context.Context, raws []map[string]any, allowed []string) ([]model.EvidenceItem, []string) {
	ctx, span := tracer.Start(ctx, "validate.evidence", trace.WithAttributes(attribute.Int("items", len(raws))))
	defer span.End()

	dois := make([]string, len(raws))
	for i, r := range raws {
		dois[i] = stringField(r, "doi")
	}
	results := v.verifier.VerifyAll(ctx, dois)

	allow := make(map[string]bool, len(allowed))
	for _, d := range allowed {
		allow[strings.ToLower(doi.Normalize(d))] = true
	}

	items := make([]model.EvidenceItem, 0, len(raws))
	var warnings []string
	for i, r := range raws {
		res := results[i]
		tier := v.tiers.ClassifyValue(r["tier"])
		item := res.Evidence(stringField(r, "title"), toInt(r["year"]), tier)
		item.Page = stringField(r, "page")
		item.Quote = stringField(r, "quote")
		item.AxiomID = stringField(r, "axiom_id")
		items = append(items, item)

		if !res.Valid() {
			warnings = append(warnings, fmt.Sprintf("evidence %d: DOI %s (%s)", i+1, res.Status, res.Reason))
			continue
		}
		if len(allow) > 0 && !allow[strings.ToLower(res.Normalized)] {
			warnings = append(warnings, fmt.Sprintf("evidence %d: citation not in retrieved context (%s)", i+1, res.Normalized))
		}
	}

	span.SetAttributes(attribute.Int("warnings", len(warnings)))
	return items, warnings
}

func (v *ResponseValidator) claimsStage(ctx context.Context, answer string, graphContext any) ([]model.NumericClaim, []model.NumericClaim) {
	_, span := tracer.Start(ctx, "validate.claims")
	defer span.End()

	claims := v.claims.Extract(answer)
	verified, unverified := verifyClaims(claims, FlattenNumbers(graphContext), v.tolerance)

	metrics.Claims.WithLabelValues("verified").Add(float64(len(verified)))
	metrics.Claims.WithLabelValues("unverified").Add(float64(len(unverified)))
	span.SetAttributes(
		attribute.Int("verified", len(verified)),
		attribute.Int("unverified", len(unverified)),
	)
	return verified, unverified
}

// provenanceStage fills the evidence counts, completeness and risk
func (v *ResponseValidator) provenanceStage(ctx context.Context, resp *model.QueryResponse, claimCount int) {
	_, span := tracer.Start(ctx, "validate.provenance")
	defer span.End()

	resp.EvidenceCount = len(resp.Evidence)
	resp.ProvenanceWarnings = []string{}

	var completeness float64
	thisYear := v.now().Year()
	for _, e := range resp.Evidence {
		if e.Valid {
			resp.DOICitationCount++
		}
		completeness += itemCompleteness(e, thisYear)
	}
	if resp.EvidenceCount > 0 {
		completeness /= float64(resp.EvidenceCount)
	}
	resp.EvidenceCompletenessScore = round4(completeness)

	switch {
	case resp.EvidenceCount == 0:
		resp.ProvenanceRisk = model.RiskHigh
		resp.ProvenanceWarnings = append(resp.ProvenanceWarnings, "no evidence provided")
	case resp.DOICitationCount == 0:
		resp.ProvenanceRisk = model.RiskHigh
		resp.ProvenanceWarnings = append(resp.ProvenanceWarnings, "no evidence item carries a citation-grade DOI")
	case completeness < completenessThreshold:
		resp.ProvenanceRisk = model.RiskMedium
		resp.ProvenanceWarnings = append(resp.ProvenanceWarnings,
			fmt.Sprintf("evidence completeness %.2f below %.2f", completeness, completenessThreshold))
	default:
		resp.ProvenanceRisk = model.RiskLow
	}

	if claimCount > 0 && resp.DOICitationCount == 0 {
		resp.ProvenanceWarnings = append(resp.ProvenanceWarnings,
			fmt.Sprintf("%d numerical claim(s) made without DOI citations", claimCount))
	}

	span.SetAttributes(
		attribute.String("risk", resp.ProvenanceRisk),
		attribute.Float64("completeness", completeness),
	)
}

// itemCompleteness is the share of title, valid year, known tier and DOI present
func itemCompleteness(e model.EvidenceItem, thisYear int) float64 {
	var n float64
	if strings.TrimSpace(e.Title) != "" {
		n++
	}
	if e.Year >= 1800 && e.Year <= thisYear+1 {
		n++
	}
	if e.Tier.Known() {
		n++
	}
	if e.NormalizedDOI != "" {
		n++
	}
	return n / 4
}

// strictStage withholds the answer for strict categories without
// citation-grade evidence. It reports whether the answer was replaced.
func (v *ResponseValidator) strictStage(ctx context.Context, resp *model.QueryResponse, category string) bool {
	_, span := tracer.Start(ctx, "validate.strict")
	defer span.End()

	cat := strings.ToLower(strings.TrimSpace(category))
	if !v.strict[cat] || resp.DOICitationCount > 0 {
		return false
	}

	resp.Answer = fmt.Sprintf("Insufficient evidence: no citation-grade sources support an answer to this %s question.", cat)
	resp.InsufficientEvidence = true
	span.SetAttributes(attribute.Bool("insufficient_evidence", true))
	v.logger.Info("answer withheld for insufficient evidence", zap.String("category", cat))
	return true
}

// evidenceNodes turns citation-grade evidence into scorer input
func evidenceNodes(items []model.EvidenceItem) []score.EvidenceNode {
	var nodes []score.EvidenceNode
	for _, e := range items {
		if !e.Valid {
			continue
		}
		nodes = append(nodes, score.EvidenceNode{
			ID:   e.NormalizedDOI,
			DOI:  e.NormalizedDOI,
			Tier: e.Tier,
			Year: e.Year,
		})
	}
	return nodes
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
