package axiom

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/bluebridge/internal/model"
)

func loadTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Load(model.RegistryConfig{
		TemplatePath: filepath.Join("testdata", "templates.json"),
		EvidencePath: filepath.Join("testdata", "evidence.json"),
	}, nil)
	require.NoError(t, err)
	return reg
}

func TestLoad_Template(t *testing.T) {
	reg := loadTestRegistry(t)
	assert.Equal(t, 5, reg.Len())

	ba13, err := reg.Get("BA-013")
	require.NoError(t, err)
	assert.Equal(t, 0.84, ba13.Coefficient.Value)
	assert.True(t, ba13.Coefficient.Bounded)
	assert.Equal(t, "ecological", ba13.InputDomain)
	assert.Equal(t, "service", ba13.OutputDomain)
	assert.Equal(t, "10.1038/ngeo1123", ba13.Source.DOI)
	assert.Equal(t, 0.9, ba13.Confidence.Value())
}

func TestLoad_EvidenceOverrideMerged(t *testing.T) {
	reg := loadTestRegistry(t)
	ba14, err := reg.Get("BA-014")
	require.NoError(t, err)

	assert.Equal(t, 0.75, ba14.Confidence.Value())
	assert.Equal(t, []string{"10.1038/s41558-018-0282-y", "10.1038/s41586-022-05224-9"}, ba14.DOIs())
	assert.Contains(t, ba14.Caveats, "Social cost of carbon exceeds most voluntary prices")
	// primary source stays the template citation
	assert.Equal(t, "10.1038/s41558-018-0282-y", ba14.Source.DOI)
}

func TestLoad_CIBracketsValue(t *testing.T) {
	reg := loadTestRegistry(t)
	for _, a := range reg.All() {
		if !a.Coefficient.Bounded {
			continue
		}
		assert.LessOrEqual(t, a.Coefficient.Low, a.Coefficient.Value, a.ID)
		assert.GreaterOrEqual(t, a.Coefficient.High, a.Coefficient.Value, a.ID)
		assert.Less(t, a.Coefficient.Low, a.Coefficient.High, a.ID)
	}
}

func TestParseCoefficients_Priority(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		value   float64
		bounded bool
		low     float64
		high    float64
	}{
		{"bare scalar", `12.5`, 12.5, false, 0, 0},
		{"priority name beats document order", `{"other": {"value": 1}, "ratio": 2}`, 2, false, 0, 0},
		{"priority order", `{"factor": 3, "coefficient": 4}`, 4, false, 0, 0},
		{"first object with value", `{"a": 9, "b": {"value": 5, "ci_low": 4, "ci_high": 6}}`, 5, true, 4, 6},
		{"min max bounds", `{"ratio": {"value": 6.7, "min": 4.3, "max": 10.2}}`, 6.7, true, 4.3, 10.2},
		{"first bare number skips bounds", `{"ci_low": 1, "x": 7}`, 7, false, 0, 0},
		{"nested object", `{"outer": {"inner": {"value": 0.3}}}`, 0.3, false, 0, 0},
		{"arrays are skipped", `{"notes": [1, {"value": 99}], "rate": 0.2}`, 0.2, false, 0, 0},
		{"swapped bounds", `{"value": {"value": 2, "ci_low": 3, "ci_high": 1}}`, 2, true, 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCoefficients([]byte(tt.raw))
			require.NoError(t, err)
			assert.InDelta(t, tt.value, got.Value, 1e-12)
			assert.Equal(t, tt.bounded, got.Bounded)
			if tt.bounded {
				assert.InDelta(t, tt.low, got.Low, 1e-12)
				assert.InDelta(t, tt.high, got.High, 1e-12)
			}
		})
	}
}

func TestParseCoefficients_DropsNonBracketingBounds(t *testing.T) {
	got, err := parseCoefficients([]byte(`{"coefficient": {"value": 10, "ci_low": 1, "ci_high": 2}}`))
	require.NoError(t, err)
	assert.False(t, got.Bounded)
	assert.True(t, got.dropped)
	assert.Equal(t, 10.0, got.Value)
}

func TestParseCoefficients_Errors(t *testing.T) {
	_, err := parseCoefficients(nil)
	assert.Error(t, err)

	_, err = parseCoefficients([]byte(`{"label": "none"}`))
	assert.Error(t, err)

	_, err = parseCoefficients([]byte(`"text"`))
	assert.Error(t, err)
}

func TestParse_InvalidTemplate(t *testing.T) {
	_, err := Parse([]byte(`{"axioms": [{"name": "missing id", "coefficients": 1}]}`), nil, nil)
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`), nil, nil)
	assert.Error(t, err)

	_, err = Parse([]byte(`{"axioms": [{"axiom_id": "A", "name": "a", "coefficients": 1}, {"axiom_id": "A", "name": "b", "coefficients": 2}]}`), nil, nil)
	assert.Error(t, err)
}

func TestLookups(t *testing.T) {
	reg := loadTestRegistry(t)

	mangrove := reg.ByHabitat("mangrove")
	var ids []string
	for _, a := range mangrove {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"BA-002", "BA-013", "BA-014"}, ids)

	financial := reg.ByDomain("service", "financial")
	assert.Len(t, financial, 2)

	anyFromEco := reg.ByDomain("ecological", "")
	assert.Len(t, anyFromEco, 3)
}

func TestBuildChain_UnknownID(t *testing.T) {
	reg := loadTestRegistry(t)
	_, err := reg.BuildChain("BA-013", "BA-999")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAxiomNotFound))
	assert.Contains(t, err.Error(), "BA-999")

	_, err = reg.BuildChain()
	assert.Error(t, err)
}

func TestMangroveCarbonScenario(t *testing.T) {
	reg := loadTestRegistry(t)

	ba13, err := reg.Get("BA-013")
	require.NoError(t, err)
	assert.InDelta(t, 403200, ba13.Apply(480000).OutputValue, 1e-6)

	chain, err := reg.BuildChain("BA-013", "BA-014")
	require.NoError(t, err)

	res := chain.Execute(context.Background(), 480000)
	assert.InDelta(t, 12096000, res.FinalValue, 1e-4)
	assert.Len(t, res.SourceDOIs, 2)
	assert.Equal(t, []string{"BA-013", "BA-014"}, chain.IDs())
	require.NotNil(t, res.CILow)
	assert.Less(t, *res.CILow, res.FinalValue)
	assert.Greater(t, *res.CIHigh, res.FinalValue)
	assert.InDelta(t, 0.9*0.75, res.Confidence, 1e-12)
}
