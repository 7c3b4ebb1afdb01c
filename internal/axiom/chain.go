package axiom

import (
	"context"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/bluebridge/internal/metrics"
)

var tracer = otel.Tracer("bluebridge.axiom")

// Chain is an ordered sequence of axioms applied one after another
type Chain struct {
	Axioms []*BridgeAxiom
}

// NewChain creates a chain from axioms in application order
func NewChain(axioms ...*BridgeAxiom) *Chain {
	return &Chain{Axioms: axioms}
}

// IDs returns the axiom ids in order
func (c *Chain) IDs() []string {
	ids := make([]string, len(c.Axioms))
	for i, a := range c.Axioms {
		ids[i] = a.ID
	}
	return ids
}

// ChainResult is the outcome of executing a chain
type ChainResult struct {
	InitialValue  float64      `json:"initial_value"`
	FinalValue    float64      `json:"final_value"`
	Steps         []StepResult `json:"steps"`
	AxiomCount    int          `json:"axiom_count"`
	SourceDOIs    []string     `json:"source_dois"`
	Caveats       []string     `json:"caveats"`
	Confidence    float64      `json:"confidence"`
	RelativeError float64      `json:"relative_error,omitempty"`
	CILow         *float64     `json:"ci_low,omitempty"`
	CIHigh        *float64     `json:"ci_high,omitempty"`
}

// Execute feeds each axiom's output into the next. Step errors are assumed
// independent: the relative interval half-widths combine as root-sum-of-squares.
// Confidence is the product of the per-axiom confidences.
func (c *Chain) Execute(ctx context.Context, initial float64) ChainResult {
	_, span := tracer.Start(ctx, "axiom.Chain.Execute",
		trace.WithAttributes(
			attribute.StringSlice("axiom_ids", c.IDs()),
			attribute.Float64("initial_value", initial),
		),
	)
	defer span.End()

	res := ChainResult{
		InitialValue: initial,
		AxiomCount:   len(c.Axioms),
		Steps:        make([]StepResult, 0, len(c.Axioms)),
		SourceDOIs:   []string{},
		Caveats:      []string{},
		Confidence:   1.0,
	}

	seenCaveat := make(map[string]bool)
	var sumSquares float64
	hasCI := false
	value := initial

	for _, a := range c.Axioms {
		step := a.Apply(value)
		res.Steps = append(res.Steps, step)

		if step.SourceDOI != "" {
			res.SourceDOIs = append(res.SourceDOIs, step.SourceDOI)
		}
		for _, cv := range a.Caveats {
			if !seenCaveat[cv] {
				seenCaveat[cv] = true
				res.Caveats = append(res.Caveats, cv)
			}
		}
		res.Confidence *= step.Confidence

		if step.CILow != nil && step.CIHigh != nil {
			hasCI = true
			if out := math.Abs(step.OutputValue); out > 0 {
				rel := (*step.CIHigh - *step.CILow) / (2 * out)
				sumSquares += rel * rel
			}
		}

		value = step.OutputValue
	}

	res.FinalValue = value
	if len(c.Axioms) == 0 {
		res.Confidence = 0
	}

	if hasCI {
		res.RelativeError = math.Sqrt(sumSquares)
		low := value * (1 - res.RelativeError)
		high := value * (1 + res.RelativeError)
		if low > high {
			low, high = high, low
		}
		res.CILow = &low
		res.CIHigh = &high
	}

	span.SetAttributes(
		attribute.Float64("final_value", res.FinalValue),
		attribute.Float64("relative_error", res.RelativeError),
	)
	metrics.ChainExecutions.Inc()

	return res
}
