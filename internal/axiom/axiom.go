package axiom

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrAxiomNotFound is returned when an axiom id is not registered
var ErrAxiomNotFound = errors.New("axiom not found")

// BridgeAxiom is a single declarative rule translating a value from one
// domain into another. Axioms are read-only once loaded.
type BridgeAxiom struct {
	ID           string      `json:"axiom_id"`
	Name         string      `json:"name"`
	Category     string      `json:"category,omitempty"`
	Rule         string      `json:"rule"`
	Pattern      string      `json:"pattern,omitempty"`
	Coefficient  Coefficient `json:"coefficient"`
	InputDomain  string      `json:"input_domain"`
	OutputDomain string      `json:"output_domain"`
	Source       Source      `json:"source"`
	Confidence   Confidence  `json:"confidence"`
	Habitats     []string    `json:"applicable_habitats,omitempty"`
	Evidence     []Source    `json:"evidence,omitempty"`
	Caveats      []string    `json:"caveats,omitempty"`
}

// Coefficient is the primary multiplier of an axiom, optionally bounded by
// a confidence interval
type Coefficient struct {
	Value   float64 `json:"value"`
	Low     float64 `json:"ci_low,omitempty"`
	High    float64 `json:"ci_high,omitempty"`
	Bounded bool    `json:"bounded"`
}

// Scalar returns an unbounded coefficient
func Scalar(v float64) Coefficient {
	return Coefficient{Value: v}
}

// Bounded returns a coefficient with a confidence interval
func Bounded(v, low, high float64) Coefficient {
	return Coefficient{Value: v, Low: low, High: high, Bounded: true}
}

// Source is a citation backing an axiom
type Source struct {
	DOI      string `json:"doi,omitempty"`
	Citation string `json:"citation,omitempty"`
	Finding  string `json:"finding,omitempty"`
	Title    string `json:"title,omitempty"`
	Year     int    `json:"year,omitempty"`
	Tier     string `json:"tier,omitempty"`
	Page     string `json:"page,omitempty"`
	Quote    string `json:"quote,omitempty"`
}

// Confidence is either a categorical level (high, medium, low) or a score
type Confidence struct {
	Level string
	Score float64
}

// ConfidenceLevel returns a categorical confidence
func ConfidenceLevel(level string) Confidence {
	return Confidence{Level: strings.ToLower(strings.TrimSpace(level))}
}

// ConfidenceScore returns a numeric confidence
func ConfidenceScore(score float64) Confidence {
	return Confidence{Score: score}
}

// Value returns the confidence as a number in [0,1]
func (c Confidence) Value() float64 {
	switch c.Level {
	case "high":
		return 0.9
	case "medium":
		return 0.7
	case "low":
		return 0.5
	case "":
		return clamp01(c.Score)
	}
	return 0.5
}

// IsZero reports whether no confidence was provided
func (c Confidence) IsZero() bool {
	return c.Level == "" && c.Score == 0
}

// MarshalJSON writes the level string when set, otherwise the score
func (c Confidence) MarshalJSON() ([]byte, error) {
	if c.Level != "" {
		return json.Marshal(c.Level)
	}
	return json.Marshal(c.Score)
}

// UnmarshalJSON accepts "high"/"medium"/"low" or a number
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var level string
	if err := json.Unmarshal(data, &level); err == nil {
		*c = ConfidenceLevel(level)
		return nil
	}
	var score float64
	if err := json.Unmarshal(data, &score); err != nil {
		return fmt.Errorf("confidence must be a level or a number: %s", string(data))
	}
	*c = ConfidenceScore(score)
	return nil
}

// StepResult is the outcome of applying one axiom to one value
type StepResult struct {
	AxiomID     string   `json:"axiom_id"`
	InputValue  float64  `json:"input_value"`
	OutputValue float64  `json:"output_value"`
	Coefficient float64  `json:"coefficient"`
	SourceDOI   string   `json:"source_doi,omitempty"`
	Confidence  float64  `json:"confidence"`
	CILow       *float64 `json:"ci_low,omitempty"`
	CIHigh      *float64 `json:"ci_high,omitempty"`
}

// Apply multiplies the input by the coefficient. Interval bounds scale with
// the input; an axiom without bounds yields a result without CI.
func (a *BridgeAxiom) Apply(input float64) StepResult {
	res := StepResult{
		AxiomID:     a.ID,
		InputValue:  input,
		OutputValue: input * a.Coefficient.Value,
		Coefficient: a.Coefficient.Value,
		SourceDOI:   a.Source.DOI,
		Confidence:  a.Confidence.Value(),
	}

	if a.Coefficient.Bounded {
		low := input * a.Coefficient.Low
		high := input * a.Coefficient.High
		// negative inputs flip the interval
		if low > high {
			low, high = high, low
		}
		res.CILow = &low
		res.CIHigh = &high
	}

	return res
}

// AppliesTo reports whether the axiom is tagged for the habitat. The "all"
// tag matches every habitat.
func (a *BridgeAxiom) AppliesTo(habitat string) bool {
	habitat = strings.ToLower(strings.TrimSpace(habitat))
	for _, h := range a.Habitats {
		h = strings.ToLower(h)
		if h == "all" || h == habitat {
			return true
		}
	}
	return false
}

// DOIs returns the distinct DOIs cited by the axiom, primary source first
func (a *BridgeAxiom) DOIs() []string {
	seen := make(map[string]bool)
	var dois []string
	add := func(doi string) {
		key := strings.ToLower(doi)
		if doi == "" || seen[key] {
			return
		}
		seen[key] = true
		dois = append(dois, doi)
	}
	add(a.Source.DOI)
	for _, s := range a.Evidence {
		add(s.DOI)
	}
	return dois
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
