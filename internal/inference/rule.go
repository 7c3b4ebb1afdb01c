package inference

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/bluebridge/internal/axiom"
)

// RulePrefix is prepended to axiom ids to form rule ids
const RulePrefix = "rule:"

// Rule is a bridge axiom viewed as a transition between two domains
type Rule struct {
	ID           string             `json:"rule_id"`
	AxiomID      string             `json:"axiom_id"`
	InputDomain  string             `json:"input_domain"`
	OutputDomain string             `json:"output_domain"`
	Condition    string             `json:"condition"`
	Axiom        *axiom.BridgeAxiom `json:"-"`
}

// Applies reports whether the rule may fire on the given input facts. A
// "habitat" fact restricts firing to axioms tagged for that habitat.
func (r Rule) Applies(facts map[string]any) bool {
	habitat, _ := facts["habitat"].(string)
	if habitat == "" || len(r.Axiom.Habitats) == 0 {
		return true
	}
	return r.Axiom.AppliesTo(habitat)
}

// Step is one fired rule during forward chaining
type Step struct {
	RuleID      string   `json:"rule_id"`
	AxiomID     string   `json:"axiom_id"`
	Input       string   `json:"input"`
	Output      string   `json:"output"`
	Coefficient float64  `json:"coefficient"`
	Confidence  float64  `json:"confidence"`
	SourceDOI   string   `json:"source_doi,omitempty"`
	InputValue  *float64 `json:"input_value,omitempty"`
	OutputValue *float64 `json:"output_value,omitempty"`
}

// RuleCompiler turns axioms into rules
type RuleCompiler struct{}

// Compile builds the rule for one axiom
func (RuleCompiler) Compile(a *axiom.BridgeAxiom) (Rule, error) {
	if a == nil || a.ID == "" {
		return Rule{}, errors.New("compile rule: axiom without id")
	}
	in := normalizeDomain(a.InputDomain)
	out := normalizeDomain(a.OutputDomain)
	if in == "" || out == "" {
		return Rule{}, fmt.Errorf("compile rule %s: missing input or output domain", a.ID)
	}

	condition := strings.TrimSpace(a.Rule)
	if condition == "" {
		condition = fmt.Sprintf("%s facts are known", in)
	}
	if len(a.Habitats) > 0 && !a.AppliesTo("all") {
		condition += fmt.Sprintf(" (habitats: %s)", strings.Join(a.Habitats, ", "))
	}

	return Rule{
		ID:           RulePrefix + a.ID,
		AxiomID:      a.ID,
		InputDomain:  in,
		OutputDomain: out,
		Condition:    condition,
		Axiom:        a,
	}, nil
}

func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSpace(d))
}
