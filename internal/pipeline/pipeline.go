package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/bluebridge/internal/axiom"
	"github.com/ppiankov/bluebridge/internal/doi"
	"github.com/ppiankov/bluebridge/internal/inference"
	"github.com/ppiankov/bluebridge/internal/llm"
	"github.com/ppiankov/bluebridge/internal/logging"
	"github.com/ppiankov/bluebridge/internal/model"
	"github.com/ppiankov/bluebridge/internal/provenance"
	"github.com/ppiankov/bluebridge/internal/retrieve"
	"github.com/ppiankov/bluebridge/internal/score"
	"github.com/ppiankov/bluebridge/internal/validate"
)

var tracer = otel.Tracer("bluebridge.pipeline")

// Pipeline wires retrieval, axiom chains, generation, validation and
// provenance into one answering flow
type Pipeline struct {
	config    *model.Config
	logger    *zap.Logger
	registry  *axiom.Registry
	engine    *inference.Engine
	prov      *provenance.Manager
	verifier  *doi.Verifier
	scorer    *score.Scorer
	retriever *retrieve.HybridRetriever
	validator *validate.ResponseValidator
	generator llm.Generator // nil when no provider is configured
	newID     func() string
}

// Option overrides a component built by New
type Option func(*options)

type options struct {
	registry     *axiom.Registry
	backend      provenance.Backend
	generator    llm.Generator
	verifierOpts []doi.Option
}

// WithRegistry uses an already loaded registry instead of cfg.Registry
func WithRegistry(r *axiom.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithBackend uses an already opened provenance backend
func WithBackend(b provenance.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithGenerator uses g instead of the configured LLM provider
func WithGenerator(g llm.Generator) Option {
	return func(o *options) { o.generator = g }
}

// WithVerifierOptions passes options through to the DOI verifier
func WithVerifierOptions(opts ...doi.Option) Option {
	return func(o *options) { o.verifierOpts = append(o.verifierOpts, opts...) }
}

// New builds every component once from cfg
func New(cfg *model.Config, logger *zap.Logger, opts ...Option) (*Pipeline, error) {
	logger = logging.OrNop(logger)
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// 1. Axiom registry
	registry := o.registry
	if registry == nil {
		r, err := axiom.Load(cfg.Registry, logger)
		if err != nil {
			return nil, fmt.Errorf("load axioms: %w", err)
		}
		registry = r
	}

	// 2. Provenance
	backend := o.backend
	if backend == nil {
		b, err := provenance.OpenBackend(cfg.Provenance, logger)
		if err != nil {
			return nil, fmt.Errorf("open provenance backend: %w", err)
		}
		backend = b
	}
	prov := provenance.NewManager(backend, cfg.Provenance.MaxLineageDepth, logger)
	if _, err := prov.RegisterAgent(context.Background(), model.DefaultSoftwareID, model.AgentSoftware, model.DefaultSoftwareName); err != nil {
		_ = prov.Close()
		return nil, fmt.Errorf("register agent: %w", err)
	}

	// 3. Inference engine mirrors fired rules into provenance
	engine := inference.NewEngine(logger, inference.WithRecorder(prov))
	if err := engine.RegisterAxioms(registry.All()...); err != nil {
		_ = prov.Close()
		return nil, fmt.Errorf("register axioms: %w", err)
	}

	// 4. Guardrail components
	verifier := doi.NewVerifier(cfg.DOI, logger, o.verifierOpts...)
	scorer := score.NewScorer(cfg.Scoring)
	retriever := retrieve.NewHybridRetriever(cfg.Retrieval, logger, retrieve.WithAxioms(registry))
	validator := validate.NewResponseValidator(cfg.Validation, verifier, scorer, logger)

	// 5. Generator is optional; validation and chains work without it
	generator := o.generator
	if generator == nil {
		g, err := llm.NewGenerator(llm.ConfigFromModel(cfg.LLM))
		switch {
		case errors.Is(err, llm.ErrNoProvider):
		case err != nil:
			_ = prov.Close()
			return nil, fmt.Errorf("create generator: %w", err)
		default:
			generator = g
		}
	}

	return &Pipeline{
		config:    cfg,
		logger:    logger,
		registry:  registry,
		engine:    engine,
		prov:      prov,
		verifier:  verifier,
		scorer:    scorer,
		retriever: retriever,
		validator: validator,
		generator: generator,
		newID:     uuid.NewString,
	}, nil
}

// Close releases the provenance backend
func (p *Pipeline) Close() error {
	return p.prov.Close()
}

// Registry returns the loaded axioms
func (p *Pipeline) Registry() *axiom.Registry { return p.registry }

// Engine returns the inference engine
func (p *Pipeline) Engine() *inference.Engine { return p.engine }

// Provenance returns the provenance manager
func (p *Pipeline) Provenance() *provenance.Manager { return p.prov }

// Verifier returns the DOI verifier
func (p *Pipeline) Verifier() *doi.Verifier { return p.verifier }

// Generator returns the configured generator, or nil
func (p *Pipeline) Generator() llm.Generator { return p.generator }

// AnswerRequest is one question against a graph query result
type AnswerRequest struct {
	Question string            `json:"question"`
	Site     string            `json:"site,omitempty"`
	Category string            `json:"category,omitempty"`
	Query    model.QueryResult `json:"query"`

	// Axioms names a chain to apply to ChainInput. When empty and From/To
	// are set, the shortest rule path between the domains is used.
	Axioms     []string `json:"axioms,omitempty"`
	From       string   `json:"from,omitempty"`
	To         string   `json:"to,omitempty"`
	ChainInput *float64 `json:"chain_input,omitempty"`

	MaxHops int `json:"max_hops,omitempty"`
	TopK    int `json:"top_k,omitempty"`
}

// Answer is a validated answer with the material it was built from
type Answer struct {
	Response  *model.QueryResponse `json:"response"`
	Retrieval retrieve.Result      `json:"retrieval"`
	Chain     *ChainRun            `json:"chain,omitempty"`
	Generator string               `json:"generator"`
	RawOutput string               `json:"raw_output"`
	Prompt    string               `json:"-"`
}

// Answer retrieves context, explains the axiom chain, asks the generator
// and validates its draft. The response is recorded in provenance.
func (p *Pipeline) Answer(ctx context.Context, req AnswerRequest) (*Answer, error) {
	ctx, span := tracer.Start(ctx, "pipeline.Pipeline.Answer",
		trace.WithAttributes(
			attribute.String("category", req.Category),
			attribute.String("site", req.Site),
		),
	)
	defer span.End()

	if p.generator == nil {
		return nil, fmt.Errorf("answer: %w", llm.ErrNoProvider)
	}

	// 1. Retrieval
	retrieval := p.retriever.Retrieve(ctx, retrieve.Request{
		Question: req.Question,
		Site:     req.Site,
		MaxHops:  req.MaxHops,
		TopK:     req.TopK,
	}, req.Query)

	// 2. Chain explanation
	ids, err := p.chainIDs(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chain resolution failed")
		return nil, fmt.Errorf("answer: %w", err)
	}
	var run *ChainRun
	var chainLines []string
	if len(ids) > 0 {
		if req.ChainInput != nil {
			run, err = p.ApplyChain(ctx, ids, *req.ChainInput, req.Question)
			if err != nil {
				return nil, fmt.Errorf("answer: %w", err)
			}
			chainLines = describeRun(run)
		} else {
			chainLines, err = p.describeAxioms(ids)
			if err != nil {
				return nil, fmt.Errorf("answer: %w", err)
			}
		}
	}

	// 3. Prompt with a DOI allowlist drawn from retrieved material
	allowed := allowedDOIs(retrieval, run)
	prompt := llm.BuildPrompt(llm.PromptInput{
		Question:    req.Question,
		Site:        req.Site,
		Category:    req.Category,
		Context:     contextLines(retrieval.Items),
		Chain:       chainLines,
		AllowedDOIs: allowed,
	})

	// 4. Generation under the configured timeout
	genCtx := ctx
	if p.config.LLM.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, p.config.LLM.Timeout)
		defer cancel()
	}
	gen, err := p.generator.Generate(genCtx, llm.GenerateRequest{
		Prompt:    prompt,
		Model:     p.config.LLM.Model,
		MaxTokens: p.config.LLM.MaxTokens,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	// 5. Validation
	hops := retrieval.MaxHops()
	validationCtx := map[string]any{"query": req.Query, "retrieved": retrieval.Items}
	if run != nil {
		hops += len(run.Result.Steps)
		validationCtx["chain"] = run.Result
	}
	resp := p.validator.ValidateRaw(ctx, gen.Text, validate.Input{
		Context:     validationCtx,
		Category:    req.Category,
		AllowedDOIs: allowed,
		Hops:        hops,
	})
	if retrieval.GraphError != "" {
		resp.Caveats = append(resp.Caveats, "graph retrieval degraded: "+retrieval.GraphError)
	}

	// 6. Provenance is a side effect and never fails the answer
	if id, err := p.recordResponse(ctx, req, resp, run, p.generator.Name()); err != nil {
		p.logger.Warn("failed to record response provenance", zap.Error(err))
	} else {
		resp.ProvenanceEntityID = id
	}

	span.SetAttributes(
		attribute.String("provenance_risk", resp.ProvenanceRisk),
		attribute.Float64("confidence", resp.Confidence),
	)
	p.logger.Info("answered question",
		zap.String("category", req.Category),
		zap.String("generator", p.generator.Name()),
		zap.Int("retrieved", len(retrieval.Items)),
		zap.Int("tokens", gen.TokensUsed),
		zap.String("risk", resp.ProvenanceRisk),
		zap.Float64("confidence", resp.Confidence),
	)

	return &Answer{
		Response:  resp,
		Retrieval: retrieval,
		Chain:     run,
		Generator: p.generator.Name(),
		RawOutput: gen.Text,
		Prompt:    prompt,
	}, nil
}

// Validate checks raw generator output without generating
func (p *Pipeline) Validate(ctx context.Context, raw string, in validate.Input) *model.QueryResponse {
	return p.validator.ValidateRaw(ctx, raw, in)
}

// Certificate generates a provenance certificate for an entity
func (p *Pipeline) Certificate(ctx context.Context, entityID string) (*provenance.Certificate, error) {
	return p.prov.Certificate(ctx, entityID)
}

func (p *Pipeline) chainIDs(req AnswerRequest) ([]string, error) {
	if len(req.Axioms) > 0 {
		return req.Axioms, nil
	}
	if req.From == "" || req.To == "" {
		return nil, nil
	}
	rules := p.engine.FindChain(req.From, req.To)
	if len(rules) == 0 {
		return nil, fmt.Errorf("no axiom chain from %s to %s", req.From, req.To)
	}
	ids := make([]string, len(rules))
	for i, r := range rules {
		ids[i] = r.AxiomID
	}
	return ids, nil
}

func (p *Pipeline) describeAxioms(ids []string) ([]string, error) {
	chain, err := p.registry.BuildChain(ids...)
	if err != nil {
		return nil, err
	}
	lines := make([]string, len(chain.Axioms))
	for i, a := range chain.Axioms {
		lines[i] = fmt.Sprintf("%s (%s): %s -> %s, coefficient %g", a.ID, a.Name, a.InputDomain, a.OutputDomain, a.Coefficient.Value)
	}
	return lines, nil
}

func describeRun(run *ChainRun) []string {
	lines := make([]string, len(run.Result.Steps))
	for i, s := range run.Result.Steps {
		line := fmt.Sprintf("%s: %g x %g = %g", s.AxiomID, s.InputValue, s.Coefficient, s.OutputValue)
		if s.SourceDOI != "" {
			line += " (source " + s.SourceDOI + ")"
		}
		lines[i] = line
	}
	return lines
}

// contextLines renders retrieved items for the prompt
func contextLines(items []retrieve.Item) []string {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		line := fmt.Sprintf("%s (%s)", it.Name, it.Type)
		if len(it.Properties) > 0 {
			keys := make([]string, 0, len(it.Properties))
			for k := range it.Properties {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			pairs := make([]string, len(keys))
			for i, k := range keys {
				pairs[i] = fmt.Sprintf("%s=%v", k, it.Properties[k])
			}
			line += ": " + strings.Join(pairs, ", ")
		}
		lines = append(lines, line)
	}
	return lines
}

// allowedDOIs collects distinct DOIs from retrieved documents, axiom
// sources and chain steps
func allowedDOIs(r retrieve.Result, run *ChainRun) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(d string) {
		n := doi.Normalize(d)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, n)
	}
	for _, it := range r.Items {
		if d, ok := it.Properties["doi"].(string); ok {
			add(d)
		}
		add(it.Source)
	}
	if run != nil {
		for _, d := range run.Result.SourceDOIs {
			add(d)
		}
	}
	return out
}

func (p *Pipeline) recordResponse(ctx context.Context, req AnswerRequest, resp *model.QueryResponse, run *ChainRun, generator string) (string, error) {
	var used []string
	var dois []string
	for _, ev := range resp.Evidence {
		if !ev.Valid {
			continue
		}
		id, err := p.trackDocument(ctx, ev.NormalizedDOI, ev.Title, ev.Year)
		if err != nil {
			return "", err
		}
		used = append(used, id)
		dois = append(dois, ev.NormalizedDOI)
	}
	if run != nil {
		used = append(used, run.FinalEntityID)
	}

	agentID := "agent:llm:" + generator
	if _, err := p.prov.RegisterAgent(ctx, agentID, model.AgentSoftware, generator); err != nil {
		return "", err
	}

	id := "response:" + p.newID()
	act, err := p.prov.RecordActivity(ctx, model.ActivityGeneration, used, []string{id},
		provenance.WithAssociatedWith(agentID),
		provenance.WithActivityAttributes(map[string]any{"category": req.Category}),
	)
	if err != nil {
		return "", err
	}

	_, err = p.prov.TrackEntity(ctx, id, model.EntityResponse, map[string]any{
		"question":        req.Question,
		"answer":          resp.Answer,
		"confidence":      resp.Confidence,
		"provenance_risk": resp.ProvenanceRisk,
		"source_dois":     dois,
	},
		provenance.WithDerivedFrom(used...),
		provenance.WithGeneratedBy(act.ID),
		provenance.WithAttributedTo(agentID),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// trackDocument records a cited document under a stable id. Attributes
// already stored for the document are kept; new ones only fill gaps.
func (p *Pipeline) trackDocument(ctx context.Context, rawDOI, title string, year int) (string, error) {
	normalized := doi.Normalize(rawDOI)
	id := "doc:" + strings.ToLower(normalized)
	attrs := map[string]any{"doi": normalized}
	if title != "" {
		attrs["title"] = title
	}
	if year > 0 {
		attrs["year"] = year
	}

	existing, err := p.prov.GetEntity(ctx, id)
	switch {
	case err == nil:
		merged := make(map[string]any, len(existing.Attributes)+len(attrs))
		for k, v := range existing.Attributes {
			merged[k] = v
		}
		changed := false
		for k, v := range attrs {
			if _, ok := merged[k]; !ok {
				merged[k] = v
				changed = true
			}
		}
		if !changed {
			return id, nil
		}
		attrs = merged
	case !errors.Is(err, provenance.ErrNotFound):
		return "", err
	}

	if _, err := p.prov.TrackEntity(ctx, id, model.EntityDocument, attrs); err != nil {
		return "", err
	}
	return id, nil
}
