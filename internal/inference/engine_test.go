package inference

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/bluebridge/internal/axiom"
	"github.com/ppiankov/bluebridge/internal/model"
	"github.com/ppiankov/bluebridge/internal/provenance"
)

func testAxiom(id, in, out string, coef float64) *axiom.BridgeAxiom {
	return &axiom.BridgeAxiom{
		ID:           id,
		Name:         id,
		Coefficient:  axiom.Scalar(coef),
		InputDomain:  in,
		OutputDomain: out,
		Source:       axiom.Source{DOI: "10.1000/" + id},
		Confidence:   axiom.ConfidenceLevel("high"),
	}
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := NewEngine(nil, opts...)
	// registered out of domain order on purpose
	require.NoError(t, e.RegisterAxioms(
		testAxiom("BA-002", "service", "financial", 30),
		testAxiom("BA-001", "ecological", "service", 0.84),
	))
	return e
}

func TestForwardChain_TwoSteps(t *testing.T) {
	e := newTestEngine(t)

	res := e.ForwardChain(context.Background(), Facts{"ecological": {"value": 480000.0}}, 10)

	require.Len(t, res.Steps, 2)
	assert.Equal(t, "rule:BA-001", res.Steps[0].RuleID)
	assert.Equal(t, "rule:BA-002", res.Steps[1].RuleID)
	assert.Equal(t, "ecological = 480000", res.Steps[0].Input)
	assert.Equal(t, "service = 403200", res.Steps[0].Output)
	require.NotNil(t, res.Steps[1].OutputValue)
	assert.InDelta(t, 12096000, *res.Steps[1].OutputValue, 1e-6)

	assert.Contains(t, res.Facts, "service")
	assert.Contains(t, res.Facts, "financial")
	assert.Equal(t, "BA-002", res.Facts["financial"]["axiom_id"])
}

func TestForwardChain_WithoutValue(t *testing.T) {
	e := newTestEngine(t)
	res := e.ForwardChain(context.Background(), Facts{"Ecological": {}}, 0)

	require.Len(t, res.Steps, 2)
	assert.Nil(t, res.Steps[0].OutputValue)
	assert.Equal(t, "service", res.Steps[0].Output)
}

func TestForwardChain_MaxStepsAndUnknownDomain(t *testing.T) {
	e := newTestEngine(t)

	res := e.ForwardChain(context.Background(), Facts{"ecological": {}}, 1)
	assert.Len(t, res.Steps, 1)

	res = e.ForwardChain(context.Background(), Facts{"social": {}}, 10)
	assert.Empty(t, res.Steps)
}

func TestForwardChain_HabitatRestriction(t *testing.T) {
	e := NewEngine(nil)
	a := testAxiom("BA-010", "ecological", "service", 2)
	a.Habitats = []string{"coral_reef"}
	require.NoError(t, e.RegisterAxiom(a))

	res := e.ForwardChain(context.Background(), Facts{"ecological": {"habitat": "seagrass"}}, 0)
	assert.Empty(t, res.Steps)

	res = e.ForwardChain(context.Background(), Facts{"ecological": {"habitat": "coral_reef"}}, 0)
	assert.Len(t, res.Steps, 1)
}

func TestForwardChain_RecordsProvenance(t *testing.T) {
	m := provenance.NewManager(provenance.NewMemoryBackend(), 0, nil)
	e := newTestEngine(t, WithRecorder(m))
	e.newID = func() string { return "run1" }
	ctx := context.Background()

	e.ForwardChain(ctx, Facts{"ecological": {"value": 10.0}}, 0)

	facts, err := m.GetEntitiesByType(ctx, model.EntityInferredFact)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "fact:run1:service", facts[0].ID)
	assert.Equal(t, []string{"fact:run1:ecological"}, facts[0].DerivedFrom)

	acts, err := m.GetActivitiesForEntity(ctx, "fact:run1:financial")
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, model.ActivityInference, acts[0].Type)

	seed, err := m.GetEntity(ctx, "fact:run1:ecological")
	require.NoError(t, err)
	assert.Equal(t, model.EntityMeasurement, seed.Type)
	assert.Equal(t, 10.0, seed.Attributes["value"])

	lineage, err := m.GetLineage(ctx, "fact:run1:financial", -1)
	require.NoError(t, err)
	require.Len(t, lineage, 3)
	assert.Equal(t, "fact:run1:ecological", lineage[2].Entity.ID)
}

func TestForwardChain_FirstDerivationKeepsProvenance(t *testing.T) {
	m := provenance.NewManager(provenance.NewMemoryBackend(), 0, nil)
	e := NewEngine(nil, WithRecorder(m))
	e.newID = func() string { return "run1" }
	require.NoError(t, e.RegisterAxioms(
		testAxiom("BA-A", "ecological", "service", 2),
		testAxiom("BA-B", "ecological", "service", 100),
		testAxiom("BA-C", "service", "financial", 3),
	))
	ctx := context.Background()

	res := e.ForwardChain(ctx, Facts{"ecological": {"value": 10.0}}, 0)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, 20.0, res.Facts["service"]["value"])
	assert.Equal(t, 60.0, res.Facts["financial"]["value"])

	used, err := m.GetEntity(ctx, "fact:run1:service")
	require.NoError(t, err)
	assert.Equal(t, 20.0, used.Attributes["value"])
	assert.Equal(t, "BA-A", used.Attributes["axiom_id"])

	alt, err := m.GetEntity(ctx, "fact:run1:service:BA-B")
	require.NoError(t, err)
	assert.Equal(t, 1000.0, alt.Attributes["value"])
	assert.Equal(t, []string{"fact:run1:ecological"}, alt.DerivedFrom)

	financial, err := m.GetEntity(ctx, "fact:run1:financial")
	require.NoError(t, err)
	assert.Equal(t, []string{"fact:run1:service"}, financial.DerivedFrom)

	lineage, err := m.GetLineage(ctx, "fact:run1:financial", -1)
	require.NoError(t, err)
	assert.Len(t, lineage, 3)
}

type failingRecorder struct{ calls int }

func (f *failingRecorder) TrackEntity(context.Context, string, string, map[string]any, ...provenance.EntityOption) (*model.Entity, error) {
	f.calls++
	return nil, errors.New("store unavailable")
}

func (f *failingRecorder) RecordActivity(context.Context, string, []string, []string, ...provenance.ActivityOption) (*model.Activity, error) {
	return nil, errors.New("store unavailable")
}

func TestForwardChain_RecorderFailureDoesNotAbort(t *testing.T) {
	rec := &failingRecorder{}
	e := newTestEngine(t, WithRecorder(rec))

	res := e.ForwardChain(context.Background(), Facts{"ecological": {}}, 0)
	assert.Len(t, res.Steps, 2)
	// one seed plus one per fired rule
	assert.Equal(t, 3, rec.calls)
}

func TestBackwardChain(t *testing.T) {
	e := newTestEngine(t)

	reqs := e.BackwardChain("financial", 0)
	require.Len(t, reqs, 2)
	assert.Equal(t, Requirement{Domain: "financial", AxiomID: "BA-002", RuleID: "rule:BA-002", FromDomain: "service", Depth: 1}, reqs[0])
	assert.Equal(t, Requirement{Domain: "service", AxiomID: "BA-001", RuleID: "rule:BA-001", FromDomain: "ecological", Depth: 2}, reqs[1])

	assert.Len(t, e.BackwardChain("financial", 1), 1)
	assert.Empty(t, e.BackwardChain("ecological", 5))
}

func TestMissingEvidence(t *testing.T) {
	e := newTestEngine(t)

	missing := e.MissingEvidence("financial", []string{"service"})
	require.Len(t, missing, 1)
	assert.Equal(t, "ecological", missing[0].FromDomain)

	assert.Empty(t, e.MissingEvidence("financial", []string{"service", "ecological"}))
}

func TestFindChain(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterAxiom(testAxiom("BA-099", "ecological", "financial", 5)))

	path := e.FindChain("ecological", "financial")
	require.Len(t, path, 1)
	assert.Equal(t, "BA-099", path[0].AxiomID)

	path = e.FindChain("service", "financial")
	require.Len(t, path, 1)
	assert.Equal(t, "BA-002", path[0].AxiomID)

	assert.Empty(t, e.FindChain("financial", "ecological"))
	assert.Empty(t, e.FindChain("service", "service"))
}

func TestFindChain_MultiHop(t *testing.T) {
	e := newTestEngine(t)
	path := e.FindChain("ecological", "financial")
	require.Len(t, path, 2)
	assert.Equal(t, "BA-001", path[0].AxiomID)
	assert.Equal(t, "BA-002", path[1].AxiomID)
}

func TestLookup(t *testing.T) {
	e := newTestEngine(t)

	a, err := e.LookupAxiom("BA-001")
	require.NoError(t, err)
	assert.Equal(t, 0.84, a.Coefficient.Value)

	r, err := e.Rule("rule:BA-002")
	require.NoError(t, err)
	assert.Equal(t, "service", r.InputDomain)

	_, err = e.LookupAxiom("BA-404")
	assert.ErrorIs(t, err, axiom.ErrAxiomNotFound)
	_, err = e.Rule("rule:BA-404")
	assert.ErrorIs(t, err, axiom.ErrAxiomNotFound)
}

func TestRegisterAxiom_ReplacesInPlace(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterAxiom(testAxiom("BA-002", "service", "financial", 40)))

	rules := e.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "rule:BA-002", rules[0].ID)
	assert.Equal(t, 40.0, rules[0].Axiom.Coefficient.Value)

	err := e.RegisterAxiom(&axiom.BridgeAxiom{ID: "BA-X"})
	assert.Error(t, err)
}

func TestRuleCompiler_Condition(t *testing.T) {
	a := testAxiom("BA-050", "Ecological", "Service", 1)
	a.Habitats = []string{"seagrass", "mangrove"}

	r, err := RuleCompiler{}.Compile(a)
	require.NoError(t, err)
	assert.Equal(t, "ecological", r.InputDomain)
	assert.Equal(t, "ecological facts are known (habitats: seagrass, mangrove)", r.Condition)
}
