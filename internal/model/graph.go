package model

import "sort"

// ContextNode is a node in the query-scoped context graph
type ContextNode struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"` // Site, EcosystemService, BridgeAxiom, Document
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Source     string         `json:"source,omitempty"`
}

// ContextEdge is a labeled directed edge between two context nodes
type ContextEdge struct {
	Source       string         `json:"source"`
	Target       string         `json:"target"`
	Relationship string         `json:"relationship"`
	Properties   map[string]any `json:"properties,omitempty"`
}

// Node types used in the context graph
const (
	NodeSite     = "Site"
	NodeService  = "EcosystemService"
	NodeAxiom    = "BridgeAxiom"
	NodeDocument = "Document"
)

// Relationship labels used in the context graph
const (
	RelProvides     = "PROVIDES"
	RelAppliesAxiom = "APPLIES_AXIOM"
	RelEvidencedBy  = "EVIDENCED_BY"
	RelSupportedBy  = "SUPPORTED_BY"
)

// ContextGraph is an in-memory graph built fresh for one retrieval call
type ContextGraph struct {
	Nodes map[string]*ContextNode `json:"nodes"`
	Edges []ContextEdge           `json:"edges"`

	order []string
	out   map[string][]int
}

// NewContextGraph creates an empty context graph
func NewContextGraph() *ContextGraph {
	return &ContextGraph{
		Nodes: make(map[string]*ContextNode),
		out:   make(map[string][]int),
	}
}

// AddNode adds a node. Adding an existing id merges properties into it.
func (g *ContextGraph) AddNode(n ContextNode) *ContextNode {
	if existing, ok := g.Nodes[n.ID]; ok {
		for k, v := range n.Properties {
			if existing.Properties == nil {
				existing.Properties = make(map[string]any)
			}
			existing.Properties[k] = v
		}
		return existing
	}
	node := n
	g.Nodes[n.ID] = &node
	g.order = append(g.order, n.ID)
	return &node
}

// AddEdge adds an edge unless an identical one already exists
func (g *ContextGraph) AddEdge(e ContextEdge) {
	for _, idx := range g.out[e.Source] {
		existing := g.Edges[idx]
		if existing.Target == e.Target && existing.Relationship == e.Relationship {
			return
		}
	}
	g.Edges = append(g.Edges, e)
	g.out[e.Source] = append(g.out[e.Source], len(g.Edges)-1)
}

// Node returns the node with the given id
func (g *ContextGraph) Node(id string) (*ContextNode, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// NodeIDs returns node ids in insertion order
func (g *ContextGraph) NodeIDs() []string {
	return append([]string(nil), g.order...)
}

// Outgoing returns the edges leaving a node, in insertion order
func (g *ContextGraph) Outgoing(id string) []ContextEdge {
	idxs := g.out[id]
	edges := make([]ContextEdge, 0, len(idxs))
	for _, idx := range idxs {
		edges = append(edges, g.Edges[idx])
	}
	return edges
}

// NodesByType returns nodes of the given type sorted by id
func (g *ContextGraph) NodesByType(nodeType string) []*ContextNode {
	var nodes []*ContextNode
	for _, n := range g.Nodes {
		if n.Type == nodeType {
			nodes = append(nodes, n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}
