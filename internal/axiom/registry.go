package axiom

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ppiankov/bluebridge/internal/logging"
	"github.com/ppiankov/bluebridge/internal/model"
)

// Well-known coefficient names, most preferred first
var coefficientPriority = []string{
	"coefficient",
	"value",
	"primary",
	"ratio",
	"multiplier",
	"conversion_factor",
	"rate",
	"factor",
}

// Keys that describe an interval rather than a coefficient
var boundKeys = map[string]bool{
	"ci_low":  true,
	"ci_high": true,
	"min":     true,
	"max":     true,
}

var templateValidator = validator.New()

type templateFile struct {
	Axioms []templateAxiom `json:"axioms" validate:"dive"`
}

type templateAxiom struct {
	AxiomID      string          `json:"axiom_id" validate:"required"`
	Name         string          `json:"name" validate:"required"`
	Category     string          `json:"category"`
	Description  string          `json:"description"`
	Pattern      string          `json:"pattern"`
	Coefficients json.RawMessage `json:"coefficients"`
	Habitats     []string        `json:"applicable_habitats"`
	Sources      []Source        `json:"sources"`
	Caveats      []string        `json:"caveats"`
	Confidence   *Confidence     `json:"confidence"`
}

type evidenceFile struct {
	Axioms []evidenceAxiom `json:"bridge_axioms" validate:"dive"`
}

type evidenceAxiom struct {
	AxiomID    string      `json:"axiom_id" validate:"required"`
	DomainFrom string      `json:"domain_from"`
	DomainTo   string      `json:"domain_to"`
	Confidence *Confidence `json:"confidence"`
	Evidence   []Source    `json:"evidence_sources"`
	Caveats    []string    `json:"caveats"`
}

// Registry holds the loaded axioms, in template order
type Registry struct {
	axioms map[string]*BridgeAxiom
	order  []string
}

// NewRegistry creates a registry from already-built axioms
func NewRegistry(axioms ...*BridgeAxiom) (*Registry, error) {
	r := &Registry{axioms: make(map[string]*BridgeAxiom)}
	for _, a := range axioms {
		if err := r.add(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Load reads the axiom template and the optional evidence override file
func Load(cfg model.RegistryConfig, logger *zap.Logger) (*Registry, error) {
	template, err := os.ReadFile(cfg.TemplatePath)
	if err != nil {
		return nil, fmt.Errorf("read axiom template: %w", err)
	}

	var evidence []byte
	if cfg.EvidencePath != "" {
		evidence, err = os.ReadFile(cfg.EvidencePath)
		if err != nil {
			return nil, fmt.Errorf("read evidence file: %w", err)
		}
	}

	return Parse(template, evidence, logger)
}

// Parse builds a registry from template and evidence documents. evidence may be nil.
func Parse(template, evidence []byte, logger *zap.Logger) (*Registry, error) {
	logger = logging.OrNop(logger)

	var tf templateFile
	if err := json.Unmarshal(template, &tf); err != nil {
		return nil, fmt.Errorf("parse axiom template: %w", err)
	}
	if err := templateValidator.Struct(tf); err != nil {
		return nil, fmt.Errorf("validate axiom template: %w", err)
	}

	overrides := make(map[string]evidenceAxiom)
	if len(evidence) > 0 {
		var ef evidenceFile
		if err := json.Unmarshal(evidence, &ef); err != nil {
			return nil, fmt.Errorf("parse evidence file: %w", err)
		}
		if err := templateValidator.Struct(ef); err != nil {
			return nil, fmt.Errorf("validate evidence file: %w", err)
		}
		for _, ev := range ef.Axioms {
			overrides[ev.AxiomID] = ev
		}
	}

	r := &Registry{axioms: make(map[string]*BridgeAxiom)}
	for _, ta := range tf.Axioms {
		a, err := buildAxiom(ta, logger)
		if err != nil {
			return nil, err
		}
		if ev, ok := overrides[ta.AxiomID]; ok {
			mergeEvidence(a, ev)
		}
		if err := r.add(a); err != nil {
			return nil, err
		}
		logger.Debug("loaded axiom",
			zap.String("axiom_id", a.ID),
			zap.Float64("coefficient", a.Coefficient.Value),
			zap.Bool("bounded", a.Coefficient.Bounded),
			zap.String("input_domain", a.InputDomain),
			zap.String("output_domain", a.OutputDomain),
		)
	}

	for id := range overrides {
		if _, ok := r.axioms[id]; !ok {
			logger.Warn("evidence override for unknown axiom", zap.String("axiom_id", id))
		}
	}

	return r, nil
}

func (r *Registry) add(a *BridgeAxiom) error {
	if _, exists := r.axioms[a.ID]; exists {
		return fmt.Errorf("duplicate axiom id %s", a.ID)
	}
	r.axioms[a.ID] = a
	r.order = append(r.order, a.ID)
	return nil
}

func buildAxiom(ta templateAxiom, logger *zap.Logger) (*BridgeAxiom, error) {
	coef, err := parseCoefficients(ta.Coefficients)
	if err != nil {
		return nil, fmt.Errorf("axiom %s: %w", ta.AxiomID, err)
	}
	if coef.dropped {
		logger.Warn("confidence interval does not bracket coefficient, ignoring bounds",
			zap.String("axiom_id", ta.AxiomID),
			zap.Float64("coefficient", coef.Value),
		)
	}

	a := &BridgeAxiom{
		ID:          ta.AxiomID,
		Name:        ta.Name,
		Category:    ta.Category,
		Rule:        ta.Description,
		Pattern:     ta.Pattern,
		Coefficient: coef.Coefficient,
		Habitats:    ta.Habitats,
		Evidence:    ta.Sources,
		Caveats:     ta.Caveats,
		Confidence:  ConfidenceLevel("medium"),
	}
	a.InputDomain, a.OutputDomain = splitCategory(ta.Category)
	if len(ta.Sources) > 0 {
		a.Source = ta.Sources[0]
	}
	if ta.Confidence != nil && !ta.Confidence.IsZero() {
		a.Confidence = *ta.Confidence
	}
	return a, nil
}

func mergeEvidence(a *BridgeAxiom, ev evidenceAxiom) {
	if ev.DomainFrom != "" {
		a.InputDomain = ev.DomainFrom
	}
	if ev.DomainTo != "" {
		a.OutputDomain = ev.DomainTo
	}
	if ev.Confidence != nil && !ev.Confidence.IsZero() {
		a.Confidence = *ev.Confidence
	}
	a.Evidence = append(a.Evidence, ev.Evidence...)
	if a.Source.DOI == "" {
		for _, s := range ev.Evidence {
			if s.DOI != "" {
				a.Source = s
				break
			}
		}
	}
	for _, c := range ev.Caveats {
		if !containsString(a.Caveats, c) {
			a.Caveats = append(a.Caveats, c)
		}
	}
}

// splitCategory maps "ecological_to_service" to ("ecological", "service")
func splitCategory(category string) (string, string) {
	from, to, ok := strings.Cut(strings.ToLower(category), "_to_")
	if !ok {
		return "", ""
	}
	return from, to
}

// coefNode is one value in a coefficients document, in document order
type coefNode struct {
	name   string
	depth  int
	number *float64
	fields map[string]float64 // numeric members, for objects
	object bool
}

type parsedCoefficient struct {
	Coefficient
	dropped bool
}

func parseCoefficients(raw json.RawMessage) (parsedCoefficient, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return parsedCoefficient{}, errors.New("no coefficients")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return parsedCoefficient{}, fmt.Errorf("parse coefficients: %w", err)
	}

	// a bare scalar coefficient
	if num, ok := tok.(json.Number); ok {
		v, err := num.Float64()
		if err != nil {
			return parsedCoefficient{}, fmt.Errorf("parse coefficients: %w", err)
		}
		return parsedCoefficient{Coefficient: Scalar(v)}, nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return parsedCoefficient{}, errors.New("coefficients must be an object or a number")
	}

	var nodes []coefNode
	if _, err := walkObject(dec, 0, &nodes); err != nil {
		return parsedCoefficient{}, fmt.Errorf("parse coefficients: %w", err)
	}

	value, ok := primaryValue(nodes)
	if !ok {
		return parsedCoefficient{}, errors.New("no numeric coefficient")
	}

	low, high, ok := primaryBounds(nodes)
	if !ok {
		return parsedCoefficient{Coefficient: Scalar(value)}, nil
	}
	if low > high {
		low, high = high, low
	}
	if low >= high || value < low || value > high {
		return parsedCoefficient{Coefficient: Scalar(value), dropped: true}, nil
	}
	return parsedCoefficient{Coefficient: Bounded(value, low, high)}, nil
}

// walkObject records every member of the object just opened, depth first
func walkObject(dec *json.Decoder, depth int, nodes *[]coefNode) (map[string]float64, error) {
	fields := make(map[string]float64)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}

		tok, err = dec.Token()
		if err != nil {
			return nil, err
		}
		switch v := tok.(type) {
		case json.Number:
			n, err := v.Float64()
			if err != nil {
				return nil, err
			}
			fields[key] = n
			*nodes = append(*nodes, coefNode{name: key, depth: depth, number: &n})
		case json.Delim:
			switch v {
			case '{':
				idx := len(*nodes)
				*nodes = append(*nodes, coefNode{name: key, depth: depth, object: true})
				members, err := walkObject(dec, depth+1, nodes)
				if err != nil {
					return nil, err
				}
				(*nodes)[idx].fields = members
			case '[':
				if err := skipArray(dec); err != nil {
					return nil, err
				}
			}
		}
	}
	// closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return fields, nil
}

func skipArray(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '[', '{':
				depth++
			case ']', '}':
				depth--
			}
		}
	}
	return nil
}

func primaryValue(nodes []coefNode) (float64, bool) {
	// 1. Well-known names at the top level
	for _, name := range coefficientPriority {
		for _, n := range nodes {
			if n.depth != 0 || n.name != name {
				continue
			}
			if n.number != nil {
				return *n.number, true
			}
			if v, ok := n.fields["value"]; ok {
				return v, true
			}
		}
	}

	// 2. First object carrying a value
	for _, n := range nodes {
		if n.object {
			if v, ok := n.fields["value"]; ok {
				return v, true
			}
		}
	}

	// 3. First bare number that is not an interval bound
	for _, n := range nodes {
		if n.number != nil && !boundKeys[n.name] {
			return *n.number, true
		}
	}
	return 0, false
}

func primaryBounds(nodes []coefNode) (float64, float64, bool) {
	for _, name := range coefficientPriority {
		for _, n := range nodes {
			if n.depth == 0 && n.name == name && n.object {
				if low, high, ok := bounds(n.fields); ok {
					return low, high, true
				}
			}
		}
	}
	for _, n := range nodes {
		if n.object {
			if low, high, ok := bounds(n.fields); ok {
				return low, high, true
			}
		}
	}
	return 0, 0, false
}

func bounds(fields map[string]float64) (float64, float64, bool) {
	if low, ok := fields["ci_low"]; ok {
		if high, ok := fields["ci_high"]; ok {
			return low, high, true
		}
	}
	if low, ok := fields["min"]; ok {
		if high, ok := fields["max"]; ok {
			return low, high, true
		}
	}
	return 0, 0, false
}

// Get returns the axiom with the given id
func (r *Registry) Get(id string) (*BridgeAxiom, error) {
	a, ok := r.axioms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAxiomNotFound, id)
	}
	return a, nil
}

// All returns every axiom in template order
func (r *Registry) All() []*BridgeAxiom {
	out := make([]*BridgeAxiom, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.axioms[id])
	}
	return out
}

// Len returns the number of loaded axioms
func (r *Registry) Len() int {
	return len(r.order)
}

// ByHabitat returns axioms applicable to the habitat, including "all" axioms
func (r *Registry) ByHabitat(habitat string) []*BridgeAxiom {
	var out []*BridgeAxiom
	for _, a := range r.All() {
		if a.AppliesTo(habitat) {
			out = append(out, a)
		}
	}
	return out
}

// ByDomain returns axioms translating from input to output. An empty
// domain matches any.
func (r *Registry) ByDomain(input, output string) []*BridgeAxiom {
	var out []*BridgeAxiom
	for _, a := range r.All() {
		if input != "" && !strings.EqualFold(a.InputDomain, input) {
			continue
		}
		if output != "" && !strings.EqualFold(a.OutputDomain, output) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// BuildChain resolves ids into a chain. Unknown ids are an error.
func (r *Registry) BuildChain(ids ...string) (*Chain, error) {
	if len(ids) == 0 {
		return nil, errors.New("build chain: no axiom ids")
	}
	axioms := make([]*BridgeAxiom, 0, len(ids))
	for _, id := range ids {
		a, err := r.Get(id)
		if err != nil {
			return nil, fmt.Errorf("build chain: %w", err)
		}
		axioms = append(axioms, a)
	}
	return NewChain(axioms...), nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
