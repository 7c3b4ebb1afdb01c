package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ppiankov/bluebridge/internal/axiom"
	"github.com/ppiankov/bluebridge/internal/model"
	"github.com/ppiankov/bluebridge/internal/provenance"
)

// ChainRun is an executed chain and the provenance records it produced
type ChainRun struct {
	Result axiom.ChainResult `json:"result"`

	// InputEntityID is the measurement the chain started from
	InputEntityID string `json:"input_entity_id"`

	// StepEntityIDs holds one derived value per step, in order
	StepEntityIDs []string `json:"step_entity_ids"`

	// FinalEntityID is the last step's value, or the input for an empty chain
	FinalEntityID string `json:"final_entity_id"`
}

// ApplyChain executes the named axioms on value and records a measurement,
// one axiom_application activity per step and the derived values. Each
// derived value is derived from the previous value and the axiom's source
// documents.
func (p *Pipeline) ApplyChain(ctx context.Context, ids []string, value float64, subject string) (*ChainRun, error) {
	chain, err := p.registry.BuildChain(ids...)
	if err != nil {
		return nil, err
	}
	result := chain.Execute(ctx, value)
	run := p.newID()

	// 1. Input measurement
	inputID := fmt.Sprintf("measurement:%s", run)
	if _, err := p.prov.TrackEntity(ctx, inputID, model.EntityMeasurement, map[string]any{
		"subject": subject,
		"value":   value,
		"domain":  chain.Axioms[0].InputDomain,
	}, provenance.WithAttributedTo(model.DefaultSoftwareID)); err != nil {
		return nil, fmt.Errorf("record chain provenance: %w", err)
	}

	out := &ChainRun{
		Result:        result,
		InputEntityID: inputID,
		StepEntityIDs: make([]string, 0, len(result.Steps)),
		FinalEntityID: inputID,
	}

	// 2. One activity and derived value per step
	prev := inputID
	for i, step := range result.Steps {
		a := chain.Axioms[i]
		parents := []string{prev}
		for _, d := range a.DOIs() {
			docID, err := p.trackDocument(ctx, d, "", 0)
			if err != nil {
				return nil, fmt.Errorf("record chain provenance: %w", err)
			}
			parents = append(parents, docID)
		}

		valueID := fmt.Sprintf("value:%s:%d", run, i+1)
		act, err := p.prov.RecordActivity(ctx, model.ActivityAxiomApply, parents, []string{valueID},
			provenance.WithAssociatedWith(model.DefaultSoftwareID),
			provenance.WithActivityAttributes(map[string]any{
				"axiom_id":     step.AxiomID,
				"coefficient":  step.Coefficient,
				"input_value":  step.InputValue,
				"output_value": step.OutputValue,
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("record chain provenance: %w", err)
		}

		attrs := map[string]any{
			"subject":     subject,
			"value":       step.OutputValue,
			"domain":      a.OutputDomain,
			"axiom_id":    step.AxiomID,
			"confidence":  step.Confidence,
			"source_dois": a.DOIs(),
		}
		if step.CILow != nil && step.CIHigh != nil {
			attrs["ci_low"] = *step.CILow
			attrs["ci_high"] = *step.CIHigh
		}
		if _, err := p.prov.TrackEntity(ctx, valueID, model.EntityDerivedValue, attrs,
			provenance.WithDerivedFrom(parents...),
			provenance.WithGeneratedBy(act.ID),
			provenance.WithAttributedTo(model.DefaultSoftwareID),
		); err != nil {
			return nil, fmt.Errorf("record chain provenance: %w", err)
		}

		out.StepEntityIDs = append(out.StepEntityIDs, valueID)
		prev = valueID
	}
	out.FinalEntityID = prev

	p.logger.Debug("applied axiom chain",
		zap.Strings("axiom_ids", chain.IDs()),
		zap.Float64("input", value),
		zap.Float64("output", result.FinalValue),
		zap.String("entity_id", out.FinalEntityID),
	)
	return out, nil
}
