package retrieve

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/bluebridge/internal/logging"
	"github.com/ppiankov/bluebridge/internal/model"
)

var tracer = otel.Tracer("bluebridge.retrieve")

// Request is a retrieval query
type Request struct {
	Question string `json:"question"`
	Site     string `json:"site,omitempty"`
	MaxHops  int    `json:"max_hops"`
	TopK     int    `json:"top_k"`
}

// Item is one fused retrieval result
type Item struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Properties  map[string]any `json:"properties,omitempty"`
	Confidence  *float64       `json:"confidence,omitempty"`
	Source      string         `json:"source,omitempty"`
	Score       float64        `json:"score"`
	GraphRank   int            `json:"graph_rank,omitempty"`   // 1-based, 0 when absent
	KeywordRank int            `json:"keyword_rank,omitempty"` // 1-based, 0 when absent
	Hops        int            `json:"hops"`                   // -1 when not reached by traversal
}

// Result is the output of one retrieval call
type Result struct {
	Items      []Item              `json:"items"`
	GraphError string              `json:"graph_error,omitempty"`
	Graph      *model.ContextGraph `json:"-"`
}

// MaxHops returns the deepest traversal depth among the items
func (r Result) MaxHops() int {
	deepest := 0
	for _, it := range r.Items {
		if it.Hops > deepest {
			deepest = it.Hops
		}
	}
	return deepest
}

// HybridRetriever fuses graph traversal with keyword matching
type HybridRetriever struct {
	traverser Traverser
	axioms    AxiomSource
	rules     []KeywordRule
	cfg       model.RetrievalConfig
	logger    *zap.Logger
}

// RetrieverOption configures a HybridRetriever
type RetrieverOption func(*HybridRetriever)

// WithTraverser replaces the BFS traverser
func WithTraverser(t Traverser) RetrieverOption {
	return func(r *HybridRetriever) { r.traverser = t }
}

// WithAxioms enriches axiom nodes from a registry
func WithAxioms(a AxiomSource) RetrieverOption {
	return func(r *HybridRetriever) { r.axioms = a }
}

// WithKeywordRules replaces the default keyword rules
func WithKeywordRules(rules []KeywordRule) RetrieverOption {
	return func(r *HybridRetriever) { r.rules = rules }
}

// NewHybridRetriever creates a retriever
func NewHybridRetriever(cfg model.RetrievalConfig, logger *zap.Logger, opts ...RetrieverOption) *HybridRetriever {
	r := &HybridRetriever{
		traverser: BFSTraverser{},
		rules:     DefaultKeywordRules,
		cfg:       cfg,
		logger:    logging.OrNop(logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve ranks context nodes for a question. A traversal failure
// degrades to keyword-only ranking and is reported in GraphError.
func (r *HybridRetriever) Retrieve(ctx context.Context, req Request, qr model.QueryResult) Result {
	if req.MaxHops <= 0 {
		req.MaxHops = r.cfg.MaxHops
	}
	if req.TopK <= 0 {
		req.TopK = r.cfg.TopK
	}

	ctx, span := tracer.Start(ctx, "retrieve.HybridRetriever.Retrieve",
		trace.WithAttributes(
			attribute.String("site", req.Site),
			attribute.Int("max_hops", req.MaxHops),
			attribute.Int("top_k", req.TopK),
			attribute.Int("rows", len(qr.Results)),
		),
	)
	defer span.End()

	// 1. Build the context graph
	g := BuildContextGraph(qr, r.axioms)
	result := Result{Graph: g}

	// 2. Graph ranking
	var graphList []string
	depth := make(map[string]int)
	if site := strings.TrimSpace(req.Site); site != "" {
		visits, err := r.traverse(ctx, g, SiteNodeID(site), req.MaxHops)
		if err != nil {
			result.GraphError = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, "graph traversal failed")
			r.logger.Warn("graph retrieval failed, using keyword ranking only",
				zap.String("site", site),
				zap.Error(err),
			)
		}
		for _, v := range visits {
			graphList = append(graphList, v.ID)
			depth[v.ID] = v.Depth
		}
	}

	// 3. Keyword ranking
	keywordList := rankByKeywords(g, req.Question, r.rules)

	// 4. Fuse
	fused := ReciprocalRankFusion([][]string{graphList, keywordList}, r.cfg.RRFK)
	if len(fused) > req.TopK {
		fused = fused[:req.TopK]
	}

	// 5. Attach node data
	graphRank := rankIndex(graphList)
	keywordRank := rankIndex(keywordList)
	for _, f := range fused {
		node, ok := g.Node(f.ID)
		if !ok {
			continue
		}
		hops, reached := depth[f.ID]
		if !reached {
			hops = -1
		}
		result.Items = append(result.Items, Item{
			ID:          node.ID,
			Name:        node.Name,
			Type:        node.Type,
			Properties:  node.Properties,
			Confidence:  node.Confidence,
			Source:      node.Source,
			Score:       f.Score,
			GraphRank:   graphRank[f.ID],
			KeywordRank: keywordRank[f.ID],
			Hops:        hops,
		})
	}

	span.SetAttributes(
		attribute.Int("graph_candidates", len(graphList)),
		attribute.Int("keyword_candidates", len(keywordList)),
		attribute.Int("items", len(result.Items)),
	)
	return result
}

func (r *HybridRetriever) traverse(ctx context.Context, g *model.ContextGraph, start string, maxHops int) ([]Visit, error) {
	ctx, span := tracer.Start(ctx, "retrieve.HybridRetriever.traverse")
	defer span.End()

	visits, err := r.traverser.Traverse(ctx, g, start, maxHops)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("visits", len(visits)))
	return visits, nil
}

func rankIndex(list []string) map[string]int {
	idx := make(map[string]int, len(list))
	for i, id := range list {
		if _, ok := idx[id]; !ok {
			idx[id] = i + 1
		}
	}
	return idx
}
