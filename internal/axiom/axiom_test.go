package axiom

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/bluebridge/internal/metrics"
)

func TestApply_NoCI(t *testing.T) {
	a := &BridgeAxiom{ID: "BA-X", Coefficient: Scalar(2.5), Confidence: ConfidenceLevel("high"), Source: Source{DOI: "10.1000/x"}}
	step := a.Apply(10)

	assert.Equal(t, "BA-X", step.AxiomID)
	assert.Equal(t, 25.0, step.OutputValue)
	assert.Equal(t, "10.1000/x", step.SourceDOI)
	assert.Equal(t, 0.9, step.Confidence)
	assert.Nil(t, step.CILow)
	assert.Nil(t, step.CIHigh)
}

func TestApply_CIScalesWithInput(t *testing.T) {
	a := &BridgeAxiom{ID: "BA-X", Coefficient: Bounded(2, 1, 3)}

	step := a.Apply(10)
	require.NotNil(t, step.CILow)
	assert.Equal(t, 10.0, *step.CILow)
	assert.Equal(t, 30.0, *step.CIHigh)

	neg := a.Apply(-10)
	assert.Equal(t, -30.0, *neg.CILow)
	assert.Equal(t, -10.0, *neg.CIHigh)
	assert.LessOrEqual(t, *neg.CILow, neg.OutputValue)
	assert.GreaterOrEqual(t, *neg.CIHigh, neg.OutputValue)
}

func TestConfidence_JSON(t *testing.T) {
	var c Confidence
	require.NoError(t, json.Unmarshal([]byte(`"High"`), &c))
	assert.Equal(t, 0.9, c.Value())

	require.NoError(t, json.Unmarshal([]byte(`0.42`), &c))
	assert.Equal(t, 0.42, c.Value())

	assert.Error(t, json.Unmarshal([]byte(`[1]`), &c))

	out, err := json.Marshal(ConfidenceLevel("low"))
	require.NoError(t, err)
	assert.JSONEq(t, `"low"`, string(out))

	assert.Equal(t, 0.5, ConfidenceLevel("somewhat").Value())
	assert.Equal(t, 1.0, ConfidenceScore(7).Value())
}

func TestAppliesTo(t *testing.T) {
	a := &BridgeAxiom{Habitats: []string{"Mangrove"}}
	assert.True(t, a.AppliesTo("mangrove"))
	assert.False(t, a.AppliesTo("coral_reef"))

	all := &BridgeAxiom{Habitats: []string{"all"}}
	assert.True(t, all.AppliesTo("anything"))
}

func TestChain_ExactProductWithoutCI(t *testing.T) {
	c1, c2, initial := 1.7, 3.3, 1234.5
	chain := NewChain(
		&BridgeAxiom{ID: "A", Coefficient: Scalar(c1), Confidence: ConfidenceScore(0.9)},
		&BridgeAxiom{ID: "B", Coefficient: Scalar(c2), Confidence: ConfidenceScore(0.5)},
	)

	res := chain.Execute(context.Background(), initial)

	assert.Equal(t, initial*c1*c2, res.FinalValue)
	assert.Equal(t, 2, res.AxiomCount)
	assert.Len(t, res.Steps, 2)
	assert.InDelta(t, 0.45, res.Confidence, 1e-12)
	assert.Nil(t, res.CILow)
	assert.Nil(t, res.CIHigh)
	assert.Zero(t, res.RelativeError)
}

func TestChain_RootSumOfSquares(t *testing.T) {
	// each step has a relative half-width of 0.1
	chain := NewChain(
		&BridgeAxiom{ID: "A", Coefficient: Bounded(1, 0.9, 1.1)},
		&BridgeAxiom{ID: "B", Coefficient: Bounded(2, 1.8, 2.2)},
	)

	res := chain.Execute(context.Background(), 100)

	assert.InDelta(t, 200, res.FinalValue, 1e-9)
	assert.InDelta(t, 0.1414213562, res.RelativeError, 1e-9)
	require.NotNil(t, res.CILow)
	assert.InDelta(t, 200*(1-res.RelativeError), *res.CILow, 1e-9)
	assert.InDelta(t, 200*(1+res.RelativeError), *res.CIHigh, 1e-9)
	for _, step := range res.Steps {
		assert.LessOrEqual(t, *step.CILow, step.OutputValue)
		assert.GreaterOrEqual(t, *step.CIHigh, step.OutputValue)
	}
}

func TestChain_CaveatsDeduplicated(t *testing.T) {
	chain := NewChain(
		&BridgeAxiom{ID: "A", Coefficient: Scalar(1), Caveats: []string{"x", "y"}},
		&BridgeAxiom{ID: "B", Coefficient: Scalar(1), Caveats: []string{"y", "z"}},
	)
	res := chain.Execute(context.Background(), 1)
	assert.Equal(t, []string{"x", "y", "z"}, res.Caveats)
}

func TestChain_CountsExecutions(t *testing.T) {
	before := testutil.ToFloat64(metrics.ChainExecutions)
	NewChain(&BridgeAxiom{ID: "A", Coefficient: Scalar(1)}).Execute(context.Background(), 1)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ChainExecutions))
}

func TestChain_Empty(t *testing.T) {
	res := NewChain().Execute(context.Background(), 5)
	assert.Equal(t, 5.0, res.FinalValue)
	assert.Zero(t, res.AxiomCount)
	assert.Zero(t, res.Confidence)
	assert.Empty(t, res.SourceDOIs)
}
