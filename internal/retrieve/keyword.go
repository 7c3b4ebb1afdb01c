package retrieve

import (
	"sort"
	"strings"
	"unicode"

	"github.com/ppiankov/bluebridge/internal/model"
)

// KeywordRule boosts node types when the question mentions any keyword
type KeywordRule struct {
	Keywords  []string
	NodeTypes []string
	Weight    float64
}

// DefaultKeywordRules covers the common question shapes
var DefaultKeywordRules = []KeywordRule{
	{
		Keywords:  []string{"value", "worth", "esv", "dollar", "usd", "financial", "price", "valuation"},
		NodeTypes: []string{model.NodeSite, model.NodeService},
		Weight:    1,
	},
	{
		Keywords:  []string{"service", "services", "tourism", "fisheries", "carbon", "protection", "recreation"},
		NodeTypes: []string{model.NodeService},
		Weight:    1,
	},
	{
		Keywords:  []string{"evidence", "source", "sources", "citation", "doi", "study", "paper", "research"},
		NodeTypes: []string{model.NodeDocument},
		Weight:    1,
	},
	{
		Keywords:  []string{"axiom", "axioms", "bridge", "coefficient", "translate", "why", "how"},
		NodeTypes: []string{model.NodeAxiom},
		Weight:    1,
	},
	{
		Keywords:  []string{"biomass", "neoli", "rating", "health", "protected", "mpa"},
		NodeTypes: []string{model.NodeSite},
		Weight:    1,
	},
}

// stopwords are dropped from token overlap
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "is": true, "are": true,
	"what": true, "for": true, "and": true, "to": true, "on": true, "at": true, "by": true,
	"does": true, "do": true, "its": true, "it": true, "with": true, "this": true,
}

type keywordScore struct {
	id    string
	score float64
}

// rankByKeywords scores every node against the rules and the raw token
// overlap with the question. Nodes scoring zero are dropped.
func rankByKeywords(g *model.ContextGraph, question string, rules []KeywordRule) []string {
	qTokens := tokenize(question)
	qSet := make(map[string]bool, len(qTokens))
	for _, t := range qTokens {
		qSet[t] = true
	}

	var scored []keywordScore
	for _, id := range g.NodeIDs() {
		node, _ := g.Node(id)

		var s float64
		for _, rule := range rules {
			if containsString(rule.NodeTypes, node.Type) && mentionsAny(qSet, rule.Keywords) {
				s += rule.Weight
			}
		}
		for _, t := range uniqueTokens(nodeText(node)) {
			if qSet[t] {
				s++
			}
		}

		if s > 0 {
			scored = append(scored, keywordScore{id: id, score: s})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	ids := make([]string, len(scored))
	for i, ks := range scored {
		ids[i] = ks.id
	}
	return ids
}

func nodeText(n *model.ContextNode) string {
	parts := []string{n.Name}
	for _, v := range n.Properties {
		if s, ok := v.(string); ok {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) > 1 && !stopwords[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func uniqueTokens(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range tokenize(s) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func mentionsAny(qSet map[string]bool, keywords []string) bool {
	for _, k := range keywords {
		if qSet[k] {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
