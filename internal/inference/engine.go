package inference

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ppiankov/bluebridge/internal/axiom"
	"github.com/ppiankov/bluebridge/internal/logging"
	"github.com/ppiankov/bluebridge/internal/model"
	"github.com/ppiankov/bluebridge/internal/provenance"
)

var tracer = otel.Tracer("bluebridge.inference")

// DefaultMaxDepth bounds backward chaining when the caller gives no depth
const DefaultMaxDepth = 5

// Facts maps a known domain to the facts recorded for it
type Facts map[string]map[string]any

// Recorder receives inference steps as provenance records
type Recorder interface {
	TrackEntity(ctx context.Context, id, entityType string, attrs map[string]any, opts ...provenance.EntityOption) (*model.Entity, error)
	RecordActivity(ctx context.Context, activityType string, used, generated []string, opts ...provenance.ActivityOption) (*model.Activity, error)
}

// Engine chains bridge axioms as rules between domains
type Engine struct {
	mu       sync.RWMutex
	compiler RuleCompiler
	rules    []Rule
	index    map[string]int // rule id -> position in rules
	recorder Recorder
	logger   *zap.Logger
	newID    func() string
}

// Option configures an Engine
type Option func(*Engine)

// WithRecorder mirrors fired steps into provenance
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// NewEngine creates an empty engine
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		index:  make(map[string]int),
		logger: logging.OrNop(logger),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterAxiom compiles and registers one axiom. Re-registering an id
// replaces its rule in place.
func (e *Engine) RegisterAxiom(a *axiom.BridgeAxiom) error {
	rule, err := e.compiler.Compile(a)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if i, ok := e.index[rule.ID]; ok {
		e.rules[i] = rule
		return nil
	}
	e.index[rule.ID] = len(e.rules)
	e.rules = append(e.rules, rule)
	return nil
}

// RegisterAxioms registers axioms in order, stopping at the first failure
func (e *Engine) RegisterAxioms(axioms ...*axiom.BridgeAxiom) error {
	for _, a := range axioms {
		if err := e.RegisterAxiom(a); err != nil {
			return fmt.Errorf("register axioms: %w", err)
		}
	}
	return nil
}

// Rules returns the registered rules in registration order
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules...)
}

// Rule returns a rule by rule id or axiom id
func (e *Engine) Rule(id string) (Rule, error) {
	if !strings.HasPrefix(id, RulePrefix) {
		id = RulePrefix + id
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	i, ok := e.index[id]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %s", axiom.ErrAxiomNotFound, strings.TrimPrefix(id, RulePrefix))
	}
	return e.rules[i], nil
}

// LookupAxiom returns the axiom behind a registered rule
func (e *Engine) LookupAxiom(id string) (*axiom.BridgeAxiom, error) {
	r, err := e.Rule(id)
	if err != nil {
		return nil, err
	}
	return r.Axiom, nil
}

// ForwardResult is the outcome of forward chaining
type ForwardResult struct {
	Steps []Step `json:"steps"`
	Facts Facts  `json:"facts"`
}

// ForwardChain fires rules whose input domain is known until a full pass
// fires nothing or maxSteps is reached. Each rule fires at most once. A
// numeric "value" fact propagates through the axiom coefficient.
// maxSteps <= 0 allows every rule to fire.
func (e *Engine) ForwardChain(ctx context.Context, facts Facts, maxSteps int) ForwardResult {
	rules := e.Rules()
	if maxSteps <= 0 {
		maxSteps = len(rules)
	}

	ctx, span := tracer.Start(ctx, "inference.Engine.ForwardChain",
		trace.WithAttributes(
			attribute.Int("rules", len(rules)),
			attribute.Int("max_steps", maxSteps),
		),
	)
	defer span.End()

	known := make(Facts, len(facts))
	for domain, f := range facts {
		known[normalizeDomain(domain)] = cloneFacts(f)
	}

	run := e.newID()
	entities := e.trackSeeds(ctx, run, known)
	used := make([]bool, len(rules))
	var steps []Step

	for len(steps) < maxSteps {
		fired := false
		for i, rule := range rules {
			if used[i] || len(steps) >= maxSteps {
				continue
			}
			input, ok := known[rule.InputDomain]
			if !ok || !rule.Applies(input) {
				continue
			}

			step := fire(rule, input)
			used[i] = true
			fired = true
			steps = append(steps, step)

			// the first derivation of a domain is the one later rules use
			outID := factEntityID(run, rule.OutputDomain)
			if _, exists := known[rule.OutputDomain]; exists {
				outID += ":" + rule.AxiomID
			} else {
				known[rule.OutputDomain] = derivedFacts(rule, input, step)
				entities[rule.OutputDomain] = outID
			}

			e.logger.Debug("rule fired",
				zap.String("rule_id", rule.ID),
				zap.String("input", rule.InputDomain),
				zap.String("output", rule.OutputDomain),
			)
			e.mirror(ctx, rule, step, entities[rule.InputDomain], outID)
		}
		if !fired {
			break
		}
	}

	span.SetAttributes(attribute.Int("steps", len(steps)))
	return ForwardResult{Steps: steps, Facts: known}
}

func fire(rule Rule, input map[string]any) Step {
	a := rule.Axiom
	step := Step{
		RuleID:      rule.ID,
		AxiomID:     a.ID,
		Input:       describe(rule.InputDomain, input),
		Coefficient: a.Coefficient.Value,
		Confidence:  a.Confidence.Value(),
		SourceDOI:   a.Source.DOI,
	}

	if v, ok := numeric(input["value"]); ok {
		res := a.Apply(v)
		step.InputValue = &res.InputValue
		step.OutputValue = &res.OutputValue
		step.Output = fmt.Sprintf("%s = %s", rule.OutputDomain, formatValue(res.OutputValue))
	} else {
		step.Output = rule.OutputDomain
	}
	return step
}

func derivedFacts(rule Rule, input map[string]any, step Step) map[string]any {
	f := map[string]any{
		"derived_from": rule.InputDomain,
		"axiom_id":     rule.AxiomID,
		"confidence":   step.Confidence,
	}
	if step.OutputValue != nil {
		f["value"] = *step.OutputValue
	}
	if habitat, ok := input["habitat"]; ok {
		f["habitat"] = habitat
	}
	return f
}

// trackSeeds records the starting facts as measurement entities and
// returns the entity id of every known domain. Failures are logged.
func (e *Engine) trackSeeds(ctx context.Context, run string, known Facts) map[string]string {
	domains := make([]string, 0, len(known))
	for domain := range known {
		domains = append(domains, domain)
	}
	sort.Strings(domains)

	entities := make(map[string]string, len(known))
	for _, domain := range domains {
		id := factEntityID(run, domain)
		entities[domain] = id
		if e.recorder == nil {
			continue
		}
		attrs := cloneFacts(known[domain])
		attrs["domain"] = domain
		if _, err := e.recorder.TrackEntity(ctx, id, model.EntityMeasurement, attrs); err != nil {
			e.logger.Warn("failed to record seed fact", zap.String("domain", domain), zap.Error(err))
		}
	}
	return entities
}

// mirror records a fired step as an inference activity. Failures are logged.
func (e *Engine) mirror(ctx context.Context, rule Rule, step Step, inID, outID string) {
	if e.recorder == nil {
		return
	}

	attrs := map[string]any{
		"domain":   rule.OutputDomain,
		"axiom_id": rule.AxiomID,
	}
	if step.OutputValue != nil {
		attrs["value"] = *step.OutputValue
	}
	if step.SourceDOI != "" {
		attrs["doi"] = step.SourceDOI
	}

	if _, err := e.recorder.TrackEntity(ctx, outID, model.EntityInferredFact, attrs,
		provenance.WithDerivedFrom(inID),
	); err != nil {
		e.logger.Warn("failed to record inferred fact", zap.String("rule_id", rule.ID), zap.Error(err))
		return
	}
	if _, err := e.recorder.RecordActivity(ctx, model.ActivityInference, []string{inID}, []string{outID},
		provenance.WithAssociatedWith(model.DefaultSoftwareID),
		provenance.WithActivityAttributes(map[string]any{"rule_id": rule.ID, "coefficient": step.Coefficient}),
	); err != nil {
		e.logger.Warn("failed to record inference activity", zap.String("rule_id", rule.ID), zap.Error(err))
	}
}

// Requirement is a domain that would supply a conclusion through an axiom
type Requirement struct {
	Domain     string `json:"domain"`
	AxiomID    string `json:"axiom_id"`
	RuleID     string `json:"rule_id"`
	FromDomain string `json:"from_domain"`
	Depth      int    `json:"depth"`
}

// BackwardChain walks rules in reverse from target, breadth first, and
// lists which axiom would supply each domain and from which input.
// maxDepth <= 0 uses DefaultMaxDepth.
func (e *Engine) BackwardChain(target string, maxDepth int) []Requirement {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	rules := e.Rules()
	target = normalizeDomain(target)

	type item struct {
		domain string
		depth  int
	}
	queue := []item{{target, 0}}
	visited := map[string]bool{target: true}
	var reqs []Requirement

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		for _, r := range rules {
			if r.OutputDomain != cur.domain {
				continue
			}
			reqs = append(reqs, Requirement{
				Domain:     cur.domain,
				AxiomID:    r.AxiomID,
				RuleID:     r.ID,
				FromDomain: r.InputDomain,
				Depth:      cur.depth + 1,
			})
			if !visited[r.InputDomain] {
				visited[r.InputDomain] = true
				queue = append(queue, item{r.InputDomain, cur.depth + 1})
			}
		}
	}
	return reqs
}

// MissingEvidence returns the backward-chain requirements whose source
// domain is not among the known domains
func (e *Engine) MissingEvidence(target string, known []string) []Requirement {
	have := make(map[string]bool, len(known))
	for _, d := range known {
		have[normalizeDomain(d)] = true
	}

	var missing []Requirement
	for _, req := range e.BackwardChain(target, 0) {
		if !have[req.FromDomain] {
			missing = append(missing, req)
		}
	}
	return missing
}

// FindChain returns the shortest rule path from input to output. It is
// empty when output is unreachable or equal to input.
func (e *Engine) FindChain(input, output string) []Rule {
	input = normalizeDomain(input)
	output = normalizeDomain(output)
	if input == output {
		return nil
	}
	rules := e.Rules()

	via := map[string]int{input: -1} // domain -> rule index that reached it
	queue := []string{input}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for i, r := range rules {
			if r.InputDomain != cur {
				continue
			}
			if _, seen := via[r.OutputDomain]; seen {
				continue
			}
			via[r.OutputDomain] = i
			if r.OutputDomain == output {
				return walkBack(rules, via, output)
			}
			queue = append(queue, r.OutputDomain)
		}
	}
	return nil
}

func walkBack(rules []Rule, via map[string]int, output string) []Rule {
	var path []Rule
	for d := output; via[d] >= 0; {
		r := rules[via[d]]
		path = append([]Rule{r}, path...)
		d = r.InputDomain
	}
	return path
}

func factEntityID(run, domain string) string {
	return "fact:" + run + ":" + domain
}

func describe(domain string, facts map[string]any) string {
	if v, ok := numeric(facts["value"]); ok {
		return fmt.Sprintf("%s = %s", domain, formatValue(v))
	}
	return domain
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func cloneFacts(f map[string]any) map[string]any {
	out := make(map[string]any, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
