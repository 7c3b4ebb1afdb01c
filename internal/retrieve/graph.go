package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/bluebridge/internal/axiom"
	"github.com/ppiankov/bluebridge/internal/model"
)

// ErrStartNotFound is returned when a traversal start node is not in the graph
var ErrStartNotFound = errors.New("start node not found")

// tierConfidence seeds document node confidence from the evidence tier
var tierConfidence = map[model.EvidenceTier]float64{
	model.TierT1: 0.95,
	model.TierT2: 0.80,
	model.TierT3: 0.65,
	model.TierT4: 0.50,
}

// AxiomSource looks up axioms to enrich axiom nodes
type AxiomSource interface {
	Get(id string) (*axiom.BridgeAxiom, error)
}

// BuildContextGraph turns graph query rows into a context graph. Axiom
// nodes are enriched from axioms when it is non-nil.
func BuildContextGraph(qr model.QueryResult, axioms AxiomSource) *model.ContextGraph {
	g := model.NewContextGraph()

	for _, row := range qr.Results {
		siteID := ""
		if row.Site != "" {
			siteID = SiteNodeID(row.Site)
			g.AddNode(model.ContextNode{
				ID:         siteID,
				Type:       model.NodeSite,
				Name:       row.Site,
				Properties: siteProperties(row),
			})
		}

		for _, svc := range row.Services {
			id := "service:" + slug(row.Site) + ":" + slug(svc.Service)
			props := map[string]any{"value_usd": svc.ValueUSD}
			if svc.Method != "" {
				props["method"] = svc.Method
			}
			if svc.CILow != nil {
				props["ci_low"] = *svc.CILow
			}
			if svc.CIHigh != nil {
				props["ci_high"] = *svc.CIHigh
			}
			g.AddNode(model.ContextNode{ID: id, Type: model.NodeService, Name: svc.Service, Properties: props})
			if siteID != "" {
				g.AddEdge(model.ContextEdge{Source: siteID, Target: id, Relationship: model.RelProvides})
			}
		}

		for _, ev := range row.Evidence {
			docID := addDocument(g, ev)
			if ev.AxiomID == "" {
				if siteID != "" && docID != "" {
					g.AddEdge(model.ContextEdge{Source: siteID, Target: docID, Relationship: model.RelSupportedBy})
				}
				continue
			}

			axID := addAxiom(g, ev.AxiomID, axioms)
			if siteID != "" {
				g.AddEdge(model.ContextEdge{Source: siteID, Target: axID, Relationship: model.RelAppliesAxiom})
			}
			if docID != "" {
				g.AddEdge(model.ContextEdge{Source: axID, Target: docID, Relationship: model.RelEvidencedBy})
			}
		}
	}

	return g
}

// SiteNodeID returns the context node id for a site name
func SiteNodeID(site string) string {
	return "site:" + slug(site)
}

func siteProperties(row model.ResultRow) map[string]any {
	props := make(map[string]any)
	if row.TotalESV != nil {
		props["total_esv"] = *row.TotalESV
	}
	if row.BiomassRatio != nil {
		props["biomass_ratio"] = *row.BiomassRatio
	}
	if row.NEOLIScore != nil {
		props["neoli_score"] = *row.NEOLIScore
	}
	if row.AssetRating != "" {
		props["asset_rating"] = row.AssetRating
	}
	return props
}

func addDocument(g *model.ContextGraph, ev model.EvidenceRef) string {
	doi := strings.TrimSpace(ev.DOI)
	if doi == "" {
		return ""
	}
	tier := model.ParseTier(ev.Tier)
	props := map[string]any{"doi": doi, "tier": string(tier)}
	if ev.Year > 0 {
		props["year"] = ev.Year
	}
	name := ev.Title
	if name == "" {
		name = doi
	}

	node := model.ContextNode{
		ID:         "doc:" + strings.ToLower(doi),
		Type:       model.NodeDocument,
		Name:       name,
		Properties: props,
		Source:     doi,
	}
	if c, ok := tierConfidence[tier]; ok {
		node.Confidence = &c
	}
	return g.AddNode(node).ID
}

func addAxiom(g *model.ContextGraph, id string, axioms AxiomSource) string {
	node := model.ContextNode{
		ID:         "axiom:" + id,
		Type:       model.NodeAxiom,
		Name:       id,
		Properties: map[string]any{"axiom_id": id},
	}
	if axioms != nil {
		if a, err := axioms.Get(id); err == nil {
			node.Name = a.Name
			node.Properties["rule"] = a.Rule
			node.Properties["coefficient"] = a.Coefficient.Value
			node.Properties["input_domain"] = a.InputDomain
			node.Properties["output_domain"] = a.OutputDomain
			c := a.Confidence.Value()
			node.Confidence = &c
			node.Source = a.Source.DOI
		}
	}
	return g.AddNode(node).ID
}

// Visit is a node reached by traversal
type Visit struct {
	ID    string
	Depth int
}

// Traverser ranks graph nodes by walking out from a start node
type Traverser interface {
	Traverse(ctx context.Context, g *model.ContextGraph, start string, maxHops int) ([]Visit, error)
}

// BFSTraverser walks outgoing edges breadth first. The start node itself
// is the first visit.
type BFSTraverser struct{}

// Traverse returns nodes in discovery order, up to maxHops from start
func (BFSTraverser) Traverse(ctx context.Context, g *model.ContextGraph, start string, maxHops int) ([]Visit, error) {
	if _, ok := g.Node(start); !ok {
		return nil, fmt.Errorf("traverse: %w: %s", ErrStartNotFound, start)
	}

	visits := []Visit{{ID: start}}
	seen := map[string]bool{start: true}
	for i := 0; i < len(visits); i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("traverse: %w", err)
		}
		cur := visits[i]
		if cur.Depth >= maxHops {
			continue
		}
		for _, e := range g.Outgoing(cur.ID) {
			if seen[e.Target] {
				continue
			}
			seen[e.Target] = true
			visits = append(visits, Visit{ID: e.Target, Depth: cur.Depth + 1})
		}
	}
	return visits, nil
}

func slug(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "_")
}
