package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/bluebridge/internal/llm"
	"github.com/ppiankov/bluebridge/internal/model"
	"github.com/ppiankov/bluebridge/internal/provenance"
)

const tourismDOI = "10.1371/journal.pone.0023601"

// fakeGenerator returns a canned draft and records the prompt it saw
type fakeGenerator struct {
	text   string
	err    error
	prompt string
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeGenerator) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	f.prompt = req.Prompt
	if f.err != nil {
		return nil, f.err
	}
	return &llm.GenerateResponse{Text: f.text, Model: "fake-1", TokensUsed: 42}, nil
}

func testConfig() *model.Config {
	cfg := model.DefaultConfig()
	cfg.Registry.TemplatePath = filepath.Join("..", "axiom", "testdata", "templates.json")
	cfg.Validation.StrictCategories = nil
	return cfg
}

func newTestPipeline(t *testing.T, gen llm.Generator) *Pipeline {
	t.Helper()
	var opts []Option
	if gen != nil {
		opts = append(opts, WithGenerator(gen))
	}
	p, err := New(testConfig(), nil, opts...)
	require.NoError(t, err)
	n := 0
	p.newID = func() string {
		n++
		return fmt.Sprintf("run%d", n)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func caboPulmo() model.QueryResult {
	return model.QueryResult{
		Template: "site_valuation",
		Results: []model.ResultRow{{
			Site:     "Cabo Pulmo",
			Services: []model.ServiceValue{{Service: "tourism", ValueUSD: 29270000}},
			Evidence: []model.EvidenceRef{{AxiomID: "BA-001", DOI: tourismDOI, Title: "Large recovery of fish biomass in a no-take marine reserve", Year: 2011, Tier: "T1"}},
		}},
		RecordCount: 1,
	}
}

func TestNew_NoProviderLeavesGeneratorNil(t *testing.T) {
	p := newTestPipeline(t, nil)
	assert.Nil(t, p.Generator())
	assert.Equal(t, 5, p.Registry().Len())
	assert.Len(t, p.Engine().Rules(), 5)

	_, err := p.Answer(context.Background(), AnswerRequest{Question: "q"})
	assert.True(t, errors.Is(err, llm.ErrNoProvider))
}

func TestNew_BadTemplate(t *testing.T) {
	cfg := testConfig()
	cfg.Registry.TemplatePath = filepath.Join(t.TempDir(), "missing.json")
	_, err := New(cfg, nil)
	assert.ErrorContains(t, err, "load axioms")

	cfg = testConfig()
	cfg.LLM.Provider = "bogus"
	_, err = New(cfg, nil)
	assert.ErrorContains(t, err, "create generator")
}

func TestAnswer_VerifiesClaimsAndRecordsProvenance(t *testing.T) {
	gen := &fakeGenerator{text: "```json\n" + `{"answer": "Tourism at Cabo Pulmo is worth about $29.27M per year.", "confidence": 0.9, "evidence": [{"doi": "` + tourismDOI + `", "year": 2011, "tier": "T1"}], "axioms_used": ["BA-001"]}` + "\n```"}
	p := newTestPipeline(t, gen)
	ctx := context.Background()

	ans, err := p.Answer(ctx, AnswerRequest{
		Question: "What is the tourism value of Cabo Pulmo?",
		Site:     "Cabo Pulmo",
		Query:    caboPulmo(),
	})
	require.NoError(t, err)

	assert.Contains(t, gen.prompt, "\n- "+tourismDOI)
	assert.Contains(t, gen.prompt, "Site: Cabo Pulmo")
	assert.Equal(t, "fake", ans.Generator)
	assert.Len(t, ans.Retrieval.Items, 4)

	resp := ans.Response
	require.Len(t, resp.VerifiedClaims, 1)
	assert.Empty(t, resp.UnverifiedClaims)
	assert.Equal(t, []string{"BA-001"}, resp.AxiomsUsed)
	assert.Equal(t, 1, resp.DOICitationCount)
	for _, c := range resp.Caveats {
		assert.NotContains(t, c, "citation not in retrieved context")
	}
	assert.LessOrEqual(t, resp.Confidence, 0.9)

	require.Equal(t, "response:run1", resp.ProvenanceEntityID)
	cert, err := p.Certificate(ctx, resp.ProvenanceEntityID)
	require.NoError(t, err)
	assert.Equal(t, model.EntityResponse, cert.Entity.Type)
	assert.Equal(t, []string{tourismDOI}, cert.SourceDOIs)
	require.Len(t, cert.Activities, 1)
	assert.Equal(t, model.ActivityGeneration, cert.Activities[0].Type)
	assert.Equal(t, "agent:llm:fake", cert.Activities[0].AssociatedWith)
}

func TestAnswer_FlagsUnverifiedClaimAndForeignCitation(t *testing.T) {
	gen := &fakeGenerator{text: `{"answer": "Tourism is worth $50M.", "confidence": 0.8, "evidence": [{"doi": "10.1038/ngeo1123", "tier": "T1"}]}`}
	p := newTestPipeline(t, gen)

	ans, err := p.Answer(context.Background(), AnswerRequest{
		Question: "What is the tourism value of Cabo Pulmo?",
		Site:     "Cabo Pulmo",
		Query:    caboPulmo(),
	})
	require.NoError(t, err)

	resp := ans.Response
	require.Len(t, resp.UnverifiedClaims, 1)
	assert.Contains(t, resp.Caveats, "unverified numerical claim: $50M not found in graph context")
	assert.Contains(t, strings.Join(resp.Caveats, "\n"), "citation not in retrieved context (10.1038/ngeo1123)")
}

func TestAnswer_WithChainAddsStepsAndHops(t *testing.T) {
	gen := &fakeGenerator{text: `{"answer": "About 480000 ha of mangrove store 403200 tCO2e a year, worth $12.1M.", "confidence": 0.7, "evidence": [{"doi": "10.1038/ngeo1123", "tier": "T1"}]}`}
	p := newTestPipeline(t, gen)
	hectares := 480000.0

	ans, err := p.Answer(context.Background(), AnswerRequest{
		Question:   "What is the carbon value of the mangroves?",
		Query:      model.QueryResult{},
		Axioms:     []string{"BA-013", "BA-014"},
		ChainInput: &hectares,
	})
	require.NoError(t, err)
	require.NotNil(t, ans.Chain)

	assert.Contains(t, gen.prompt, "1. BA-013: 480000 x 0.84 = 403200 (source 10.1038/ngeo1123)")
	assert.Contains(t, gen.prompt, "2. BA-014: 403200 x 30 = 1.2096e+07")
	assert.Contains(t, gen.prompt, "\n- 10.1038/ngeo1123")
	assert.Equal(t, 2, ans.Response.ConfidenceBreakdown.Signals[1].Data["hops"])
	assert.Empty(t, ans.Response.UnverifiedClaims)
}

func TestAnswer_UnknownAxiomAndGeneratorError(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{err: errors.New("boom")})
	ctx := context.Background()

	_, err := p.Answer(ctx, AnswerRequest{Question: "q", Axioms: []string{"BA-999"}})
	assert.ErrorContains(t, err, "axiom not found")

	_, err = p.Answer(ctx, AnswerRequest{Question: "q", From: "financial", To: "ecological"})
	assert.ErrorContains(t, err, "no axiom chain from financial to ecological")

	_, err = p.Answer(ctx, AnswerRequest{Question: "q"})
	assert.ErrorContains(t, err, "generate answer: boom")
}

func TestChainIDs_FromDomains(t *testing.T) {
	p := newTestPipeline(t, nil)
	ids, err := p.chainIDs(AnswerRequest{From: "ecological", To: "financial"})
	require.NoError(t, err)
	assert.Equal(t, []string{"BA-001", "BA-014"}, ids)

	ids, err = p.chainIDs(AnswerRequest{Axioms: []string{"BA-013"}, From: "x", To: "y"})
	require.NoError(t, err)
	assert.Equal(t, []string{"BA-013"}, ids)
}

func TestApplyChain_RecordsLineage(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	run, err := p.ApplyChain(ctx, []string{"BA-013", "BA-014"}, 480000, "Mangrove hectares")
	require.NoError(t, err)

	assert.InDelta(t, 403200.0, run.Result.Steps[0].OutputValue, 1e-6)
	assert.InDelta(t, 12096000.0, run.Result.FinalValue, 1e-6)
	assert.Equal(t, "measurement:run1", run.InputEntityID)
	assert.Equal(t, []string{"value:run1:1", "value:run1:2"}, run.StepEntityIDs)
	assert.Equal(t, "value:run1:2", run.FinalEntityID)

	final, err := p.Provenance().GetEntity(ctx, run.FinalEntityID)
	require.NoError(t, err)
	assert.Equal(t, []string{"value:run1:1", "doc:10.1038/s41558-018-0282-y"}, final.DerivedFrom)
	assert.NotEmpty(t, final.GeneratedBy)

	cert, err := p.Certificate(ctx, run.FinalEntityID)
	require.NoError(t, err)
	assert.Equal(t, 2, cert.LineageDepth)
	assert.Len(t, cert.Lineage, 5)
	assert.ElementsMatch(t, []string{"10.1038/ngeo1123", "10.1038/s41558-018-0282-y"}, cert.SourceDOIs)
	assert.Len(t, cert.Activities, 2)
	ok, err := cert.Verify()
	require.NoError(t, err)
	assert.True(t, ok)

	applications, err := p.Provenance().GetEntitiesByType(ctx, model.EntityDerivedValue)
	require.NoError(t, err)
	assert.Len(t, applications, 2)
}

func TestApplyChain_KeepsDocumentMetadata(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	docID, err := p.trackDocument(ctx, "https://doi.org/10.1038/NGEO1123", "Mangroves among the most carbon-rich forests in the tropics", 2011)
	require.NoError(t, err)
	assert.Equal(t, "doc:10.1038/ngeo1123", docID)

	_, err = p.ApplyChain(ctx, []string{"BA-013"}, 480000, "Mangrove hectares")
	require.NoError(t, err)

	doc, err := p.Provenance().GetEntity(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, "Mangroves among the most carbon-rich forests in the tropics", doc.Attributes["title"])
	assert.Equal(t, 2011.0, doc.Attributes["year"])

	// a later citation fills gaps without replacing what is stored
	_, err = p.trackDocument(ctx, "10.1038/ngeo1123", "Other title", 0)
	require.NoError(t, err)
	doc, err = p.Provenance().GetEntity(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, "Mangroves among the most carbon-rich forests in the tropics", doc.Attributes["title"])
}

func TestApplyChain_UnknownAxiom(t *testing.T) {
	p := newTestPipeline(t, nil)
	_, err := p.ApplyChain(context.Background(), []string{"BA-013", "nope"}, 1, "x")
	assert.ErrorContains(t, err, "axiom not found: nope")

	summary, err := p.Provenance().Summary(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Entities)
}

func TestValidateFile(t *testing.T) {
	p := newTestPipeline(t, nil)
	ctx := context.Background()
	dir := t.TempDir()

	wrapped := filepath.Join(dir, "wrapped.json")
	require.NoError(t, os.WriteFile(wrapped, []byte(`{
  "draft": {"answer": "Tourism is worth $29.27M.", "confidence": 0.8, "evidence": [{"doi": "`+tourismDOI+`", "tier": "T1"}]},
  "context": {"tourism_usd": 29270000},
  "allowed_dois": ["`+tourismDOI+`"]
}`), 0o644))
	resp, err := p.ValidateFile(ctx, wrapped)
	require.NoError(t, err)
	assert.Len(t, resp.VerifiedClaims, 1)

	rawText := filepath.Join(dir, "raw.txt")
	require.NoError(t, os.WriteFile(rawText, []byte("Sure! ```json\n{\"answer\": \"No data.\", \"confidence\": 0.2}\n```"), 0o644))
	resp, err = p.ValidateFile(ctx, rawText)
	require.NoError(t, err)
	assert.Equal(t, "No data.", resp.Answer)

	stringDraft := filepath.Join(dir, "string.json")
	require.NoError(t, os.WriteFile(stringDraft, []byte(`{"draft": "{\"answer\": \"Quoted.\"}"}`), 0o644))
	resp, err = p.ValidateFile(ctx, stringDraft)
	require.NoError(t, err)
	assert.Equal(t, "Quoted.", resp.Answer)

	_, err = p.ValidateFile(ctx, filepath.Join(dir, "missing.json"))
	assert.ErrorContains(t, err, "read draft")
}

func TestNew_UsesGivenBackend(t *testing.T) {
	backend := provenance.NewMemoryBackend()
	p, err := New(testConfig(), nil, WithBackend(backend))
	require.NoError(t, err)

	agent, err := p.Provenance().GetAgent(context.Background(), model.DefaultSoftwareID)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSoftwareName, agent.Name)
	require.NoError(t, p.Close())
}
