package retrieve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/bluebridge/internal/axiom"
	"github.com/ppiankov/bluebridge/internal/model"
)

func f64(v float64) *float64 { return &v }

func sampleQuery() model.QueryResult {
	return model.QueryResult{
		Template: "site_valuation",
		Results: []model.ResultRow{{
			Site:         "Cabo Pulmo National Park",
			TotalESV:     f64(29270000),
			BiomassRatio: f64(4.63),
			NEOLIScore:   f64(4),
			AssetRating:  "AAA",
			Services: []model.ServiceValue{
				{Service: "Tourism", ValueUSD: 25000000, Method: "market_price"},
				{Service: "Fisheries", ValueUSD: 3200000},
			},
			Evidence: []model.EvidenceRef{
				{AxiomID: "BA-001", DOI: "10.1371/journal.pone.0023601", Title: "Large recovery of fish biomass in a no-take marine reserve", Year: 2011, Tier: "T1"},
				{DOI: "10.1038/ngeo1123", Title: "Mangroves among the most carbon-rich forests", Year: 2011, Tier: "T2"},
			},
		}},
		RecordCount: 1,
	}
}

func TestReciprocalRankFusion(t *testing.T) {
	fused := ReciprocalRankFusion([][]string{{"a", "b", "c"}, {"c", "a"}}, 60)

	require.Len(t, fused, 3)
	assert.Equal(t, []string{"a", "c", "b"}, []string{fused[0].ID, fused[1].ID, fused[2].ID})
	assert.InDelta(t, 1.0/61+1.0/62, fused[0].Score, 1e-12)
	assert.InDelta(t, 1.0/63+1.0/61, fused[1].Score, 1e-12)
	assert.InDelta(t, 1.0/62, fused[2].Score, 1e-12)
}

func TestReciprocalRankFusion_EmptyAndDefaultK(t *testing.T) {
	assert.Empty(t, ReciprocalRankFusion(nil, 0))

	fused := ReciprocalRankFusion([][]string{{"x"}, nil}, 0)
	require.Len(t, fused, 1)
	assert.InDelta(t, 1.0/61, fused[0].Score, 1e-12)
}

type stubAxioms map[string]*axiom.BridgeAxiom

func (s stubAxioms) Get(id string) (*axiom.BridgeAxiom, error) {
	if a, ok := s[id]; ok {
		return a, nil
	}
	return nil, axiom.ErrAxiomNotFound
}

func TestBuildContextGraph(t *testing.T) {
	axioms := stubAxioms{"BA-001": {ID: "BA-001", Name: "Fish biomass drives tourism value", Coefficient: axiom.Scalar(0.346)}}
	g := BuildContextGraph(sampleQuery(), axioms)

	site, ok := g.Node("site:cabo_pulmo_national_park")
	require.True(t, ok)
	assert.Equal(t, 29270000.0, site.Properties["total_esv"])
	assert.Equal(t, "AAA", site.Properties["asset_rating"])

	assert.Len(t, g.NodesByType(model.NodeService), 2)
	assert.Len(t, g.NodesByType(model.NodeDocument), 2)

	ax, ok := g.Node("axiom:BA-001")
	require.True(t, ok)
	assert.Equal(t, "Fish biomass drives tourism value", ax.Name)

	doc, ok := g.Node("doc:10.1371/journal.pone.0023601")
	require.True(t, ok)
	require.NotNil(t, doc.Confidence)
	assert.Equal(t, 0.95, *doc.Confidence)

	rels := map[string]int{}
	for _, e := range g.Edges {
		rels[e.Relationship]++
	}
	assert.Equal(t, map[string]int{
		model.RelProvides:     2,
		model.RelAppliesAxiom: 1,
		model.RelEvidencedBy:  1,
		model.RelSupportedBy:  1,
	}, rels)
}

func TestBFSTraverser(t *testing.T) {
	g := BuildContextGraph(sampleQuery(), nil)
	start := SiteNodeID("Cabo Pulmo National Park")

	visits, err := BFSTraverser{}.Traverse(context.Background(), g, start, 1)
	require.NoError(t, err)
	assert.Equal(t, start, visits[0].ID)
	for _, v := range visits {
		assert.NotEqual(t, "doc:10.1371/journal.pone.0023601", v.ID, "document behind axiom is two hops away")
	}

	visits, err = BFSTraverser{}.Traverse(context.Background(), g, start, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, visits[len(visits)-1].Depth)

	_, err = BFSTraverser{}.Traverse(context.Background(), g, "site:nowhere", 2)
	assert.ErrorIs(t, err, ErrStartNotFound)
}

func TestRetrieve_FusesGraphAndKeywords(t *testing.T) {
	r := NewHybridRetriever(model.DefaultConfig().Retrieval, nil)

	res := r.Retrieve(context.Background(), Request{
		Question: "What is the tourism value of Cabo Pulmo?",
		Site:     "Cabo Pulmo National Park",
		TopK:     3,
	}, sampleQuery())

	assert.Empty(t, res.GraphError)
	require.Len(t, res.Items, 3)
	assert.Equal(t, "site:cabo_pulmo_national_park", res.Items[0].ID)
	assert.Equal(t, "service:cabo_pulmo_national_park:tourism", res.Items[1].ID)
	assert.Equal(t, 1, res.Items[0].GraphRank)
	assert.Equal(t, 0, res.Items[0].Hops)
	assert.Equal(t, 1, res.Items[1].Hops)
	assert.Greater(t, res.Items[1].KeywordRank, 0)
	for i := 1; i < len(res.Items); i++ {
		assert.GreaterOrEqual(t, res.Items[i-1].Score, res.Items[i].Score)
	}
}

func TestRetrieve_UnknownSiteDegradesToKeywords(t *testing.T) {
	r := NewHybridRetriever(model.DefaultConfig().Retrieval, nil)

	res := r.Retrieve(context.Background(), Request{
		Question: "Which research evidence supports this?",
		Site:     "Great Barrier Reef",
	}, sampleQuery())

	assert.Contains(t, res.GraphError, "start node not found")
	require.NotEmpty(t, res.Items)
	for _, it := range res.Items {
		assert.Equal(t, 0, it.GraphRank)
		assert.Equal(t, -1, it.Hops)
	}
	assert.Equal(t, model.NodeDocument, res.Items[0].Type)
}

type brokenTraverser struct{}

func (brokenTraverser) Traverse(context.Context, *model.ContextGraph, string, int) ([]Visit, error) {
	return nil, errors.New("graph store offline")
}

func TestRetrieve_TraverserFailure(t *testing.T) {
	r := NewHybridRetriever(model.DefaultConfig().Retrieval, nil, WithTraverser(brokenTraverser{}))

	res := r.Retrieve(context.Background(), Request{
		Question: "fisheries value",
		Site:     "Cabo Pulmo National Park",
	}, sampleQuery())

	assert.Equal(t, "graph store offline", res.GraphError)
	require.NotEmpty(t, res.Items)
	assert.Equal(t, "Fisheries", res.Items[0].Name)
}

func TestRetrieve_NoSiteNoMatches(t *testing.T) {
	r := NewHybridRetriever(model.DefaultConfig().Retrieval, nil)
	res := r.Retrieve(context.Background(), Request{Question: "zzz"}, sampleQuery())
	assert.Empty(t, res.Items)
	assert.Empty(t, res.GraphError)
	assert.Equal(t, 0, res.MaxHops())
}
