package validate

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/bluebridge/internal/cache"
	"github.com/ppiankov/bluebridge/internal/doi"
	"github.com/ppiankov/bluebridge/internal/metrics"
	"github.com/ppiankov/bluebridge/internal/model"
)

func newTestValidator() *ResponseValidator {
	cfg := model.DefaultConfig()
	verifier := doi.NewVerifier(cfg.DOI, nil, doi.WithCache(cache.NewMemoryCache(time.Hour, time.Hour)))
	v := NewResponseValidator(cfg.Validation, verifier, nil, nil)
	v.now = func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) }
	return v
}

func esvContext() map[string]any {
	return map[string]any{"total_esv": 29270000.0}
}

func TestValidate_NumericalClaims(t *testing.T) {
	v := newTestValidator()
	before := testutil.ToFloat64(metrics.Claims.WithLabelValues("unverified"))

	resp := v.Validate(context.Background(), Input{
		Draft: map[string]any{
			"answer":     "Cabo Pulmo provides $29.27M in ecosystem services, and up to $50M in tourism.",
			"confidence": 0.9,
			"evidence": []any{
				map[string]any{"doi": "10.1371/journal.pone.0023601", "title": "Large recovery of fish biomass", "year": 2011.0, "tier": "T1"},
			},
		},
		Context: esvContext(),
	})

	require.Len(t, resp.VerifiedClaims, 1)
	assert.Equal(t, "$29.27M", resp.VerifiedClaims[0].Text)
	assert.InDelta(t, 29270000, resp.VerifiedClaims[0].Match, 1e-6)
	require.Len(t, resp.UnverifiedClaims, 1)
	assert.Equal(t, "$50M", resp.UnverifiedClaims[0].Text)
	assert.Contains(t, resp.Caveats, "unverified numerical claim: $50M not found in graph context")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.Claims.WithLabelValues("unverified")))
}

func TestValidate_UnitShiftedContext(t *testing.T) {
	v := newTestValidator()
	resp := v.Validate(context.Background(), Input{
		Draft: map[string]any{"answer": "Coverage is 12.5% and the value is $29.27M.", "confidence": 0.5},
		Context: map[string]any{
			"results": []any{map[string]any{"coverage": 0.125, "esv_musd": 29.27}},
		},
	})
	assert.Len(t, resp.VerifiedClaims, 2)
	assert.Empty(t, resp.UnverifiedClaims)
}

func TestValidate_SchemaCoercion(t *testing.T) {
	v := newTestValidator()
	resp := v.Validate(context.Background(), Input{
		Draft: map[string]any{
			"answer":     42.0,
			"confidence": 1.7,
			"evidence":   "10.1038/ngeo1123",
			"caveats":    "model caveat",
		},
	})

	assert.Equal(t, "42", resp.Answer)
	assert.Contains(t, resp.Caveats, "model caveat")
	assert.Contains(t, resp.Caveats, "answer was a number; converted to text")
	assert.Contains(t, resp.Caveats, "confidence 1.7 clamped to 1")
	assert.Contains(t, resp.Caveats, "evidence was a string; treated as one DOI")
	require.Len(t, resp.Evidence, 1)
	assert.Equal(t, "10.1038/ngeo1123", resp.Evidence[0].NormalizedDOI)
	assert.Equal(t, model.TierUnknown, resp.Evidence[0].Tier)
	assert.LessOrEqual(t, resp.Confidence, 1.0)
}

func TestValidate_NonFiniteConfidence(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name  string
		input string
	}{
		{"nan", "NaN"},
		{"inf", "Inf"},
		{"negative inf", "-Inf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := v.Validate(context.Background(), Input{
				Draft: map[string]any{
					"answer":     "Tourism revenue reached $29.27M.",
					"confidence": tt.input,
					"evidence":   []any{},
				},
				Context: esvContext(),
			})

			assert.Zero(t, resp.Confidence)
			assert.Contains(t, resp.Caveats, "confidence "+tt.input+" is not a number; defaulted to 0")
			assert.NotContains(t, resp.Caveats, "confidence was text; parsed as a number")

			_, err := json.Marshal(resp)
			assert.NoError(t, err)
		})
	}
}

func TestValidate_ParseFailureDegrades(t *testing.T) {
	v := newTestValidator()
	resp := v.ValidateRaw(context.Background(), "Sorry, I can't help with that.", Input{})

	assert.Empty(t, resp.Answer)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.Equal(t, model.RiskHigh, resp.ProvenanceRisk)
	assert.Contains(t, resp.Caveats, "generator output could not be parsed: could not parse generator output as JSON")
	assert.Contains(t, resp.ProvenanceWarnings, "no evidence provided")
}

func TestValidate_EvidenceStatuses(t *testing.T) {
	v := newTestValidator()
	resp := v.Validate(context.Background(), Input{
		Draft: map[string]any{
			"answer":     "Answer.",
			"confidence": 0.8,
			"evidence": []any{
				map[string]any{"doi": "https://doi.org/10.1038/ngeo1123", "title": "Mangroves", "year": 2011.0, "tier": "peer-reviewed"},
				map[string]any{"doi": "10.xxxx/xxxxx", "tier": 2.0},
				map[string]any{"doi": "not-a-doi", "tier": "grey literature"},
				map[string]any{"title": "No DOI"},
				7.0,
			},
		},
		AllowedDOIs: []string{"10.1016/j.marpol.2020.104123"},
	})

	require.Len(t, resp.Evidence, 4)
	assert.Equal(t, "unverified", resp.Evidence[0].Status)
	assert.Equal(t, model.TierT1, resp.Evidence[0].Tier)
	assert.Equal(t, "placeholder_blocked", resp.Evidence[1].Status)
	assert.Equal(t, model.TierT2, resp.Evidence[1].Tier)
	assert.Equal(t, "invalid_format", resp.Evidence[2].Status)
	assert.Equal(t, model.TierT4, resp.Evidence[2].Tier)
	assert.Equal(t, "missing", resp.Evidence[3].Status)

	assert.Contains(t, resp.Caveats, "evidence 5 was a number; dropped")
	assert.Contains(t, resp.Caveats, "evidence 1: citation not in retrieved context (10.1038/ngeo1123)")
	assert.Equal(t, 4, resp.EvidenceCount)
	assert.Equal(t, 1, resp.DOICitationCount)
}

func TestValidate_ProvenanceRisk(t *testing.T) {
	v := newTestValidator()

	full := map[string]any{"doi": "10.1038/ngeo1123", "title": "Mangroves", "year": 2011.0, "tier": "T1"}
	resp := v.Validate(context.Background(), Input{Draft: map[string]any{"answer": "a", "confidence": 0.9, "evidence": []any{full}}})
	assert.Equal(t, model.RiskLow, resp.ProvenanceRisk)
	assert.Equal(t, 1.0, resp.EvidenceCompletenessScore)

	sparse := map[string]any{"doi": "10.1038/ngeo1123"}
	resp = v.Validate(context.Background(), Input{Draft: map[string]any{"answer": "a", "confidence": 0.9, "evidence": []any{sparse}}})
	assert.Equal(t, model.RiskMedium, resp.ProvenanceRisk)
	assert.Equal(t, 0.25, resp.EvidenceCompletenessScore)

	resp = v.Validate(context.Background(), Input{
		Draft:   map[string]any{"answer": "Worth $29.27M.", "confidence": 0.9, "evidence": []any{map[string]any{"doi": "tbd"}}},
		Context: esvContext(),
	})
	assert.Equal(t, model.RiskHigh, resp.ProvenanceRisk)
	assert.Contains(t, resp.ProvenanceWarnings, "1 numerical claim(s) made without DOI citations")
}

func TestValidate_StrictCategory(t *testing.T) {
	v := newTestValidator()
	draft := map[string]any{"answer": "The reef is worth $80M.", "confidence": 0.95, "evidence": []any{}}

	resp := v.Validate(context.Background(), Input{Draft: draft, Category: "Valuation"})
	assert.True(t, resp.InsufficientEvidence)
	assert.Contains(t, resp.Answer, "Insufficient evidence")
	assert.Equal(t, 0.0, resp.Confidence)

	resp = v.Validate(context.Background(), Input{Draft: draft, Category: "ecology"})
	assert.False(t, resp.InsufficientEvidence)
	assert.Equal(t, "The reef is worth $80M.", resp.Answer)
}

func TestValidate_ConfidenceCappedByEvidence(t *testing.T) {
	v := newTestValidator()
	resp := v.Validate(context.Background(), Input{
		Draft: map[string]any{
			"answer":     "a",
			"confidence": 0.99,
			"evidence":   []any{map[string]any{"doi": "10.1038/ngeo1123", "title": "t", "year": 2011.0, "tier": "T4"}},
		},
		Hops: 3,
	})

	b := resp.ConfidenceBreakdown
	assert.Greater(t, b.Composite, 0.0)
	assert.InDelta(t, b.Composite, resp.Confidence, 1e-4)
	assert.Less(t, resp.Confidence, 0.99)
}

func TestTierClassifier(t *testing.T) {
	c := NewTierClassifier(model.ValidationConfig{
		TierAliases:  map[string]string{"Agency Report": "T2", "bogus": "T9"},
		TierPatterns: []model.TierPattern{{Pattern: `^working paper`, Tier: "T4"}, {Pattern: "(", Tier: "T1"}},
	})

	tests := map[string]model.EvidenceTier{
		"T1":                     model.TierT1,
		"tier 2":                 model.TierT2,
		"Tier-3":                 model.TierT3,
		"t4":                     model.TierT4,
		"1":                      model.TierT1,
		"Peer-Reviewed":          model.TierT1,
		"grey   literature":      model.TierT4,
		"agency report":          model.TierT2,
		"working paper series 9": model.TierT4,
		"bogus":                  model.TierUnknown,
		"":                       model.TierUnknown,
		"T5":                     model.TierUnknown,
	}
	for label, want := range tests {
		assert.Equal(t, want, c.Classify(label), "label %q", label)
	}

	assert.Equal(t, model.TierT3, c.ClassifyValue(3.0))
	assert.Equal(t, model.TierUnknown, c.ClassifyValue(2.5))
	assert.Equal(t, model.TierUnknown, c.ClassifyValue(nil))
}

func TestFlattenNumbers(t *testing.T) {
	nums := FlattenNumbers(model.QueryResult{
		Results: []model.ResultRow{{Site: "x", AssetRating: "$2M"}},
	})
	assert.Contains(t, nums, 2000000.0)
	assert.Contains(t, nums, 2.0)
	assert.Empty(t, FlattenNumbers(nil))
}
