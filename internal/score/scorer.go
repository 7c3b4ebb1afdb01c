package score

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ppiankov/bluebridge/internal/model"
)

// Tier base confidences
var tierBase = map[model.EvidenceTier]float64{
	model.TierT1:      0.95,
	model.TierT2:      0.80,
	model.TierT3:      0.65,
	model.TierT4:      0.50,
	model.TierUnknown: 0.50,
}

const (
	hopDecay           = 0.95
	pathFloor          = 0.1
	stalenessFloor     = 0.3
	noYearDiscount     = 0.85
	singleSourceFactor = 0.6
)

// EvidenceNode is one cited node contributing to an answer
type EvidenceNode struct {
	ID         string
	DOI        string
	Tier       model.EvidenceTier
	Confidence *float64 // explicit confidence overrides the tier
	Year       int
}

// Scorer computes composite confidence from evidence tier, path length,
// staleness and corroborating-source count
type Scorer struct {
	freshnessWindow  int
	stalenessPerYear float64
	now              func() time.Time
}

// NewScorer creates a scorer from configuration
func NewScorer(cfg model.ScoringConfig) *Scorer {
	perYear := cfg.StalenessPerYear
	if perYear <= 0 {
		perYear = 0.05
	}
	return &Scorer{
		freshnessWindow:  cfg.FreshnessWindowYears,
		stalenessPerYear: perYear,
		now:              time.Now,
	}
}

// Score combines the four factors into a breakdown
func (s *Scorer) Score(nodes []EvidenceNode, hops int) model.ConfidenceBreakdown {
	var signals []model.Signal

	// 1. Tier base (mean across nodes)
	tier, tierSignal := s.tierBase(nodes)
	signals = append(signals, tierSignal)

	// 2. Path discount
	path, pathSignal := s.pathDiscount(hops)
	signals = append(signals, pathSignal)

	// 3. Staleness
	staleness, stalenessSignal := s.staleness(nodes)
	signals = append(signals, stalenessSignal)

	// 4. Sample size
	sources := distinctSources(nodes)
	sample, sampleSignal := s.sampleFactor(sources)
	signals = append(signals, sampleSignal)

	composite := clamp01(tier * path * staleness * sample)

	return model.ConfidenceBreakdown{
		TierBase:          round4(tier),
		PathDiscount:      round4(path),
		StalenessDiscount: round4(staleness),
		SampleFactor:      round4(sample),
		Composite:         round4(composite),
		Level:             Level(composite),
		Explanation: fmt.Sprintf("tier %.2f x path %.2f x staleness %.2f x sample %.2f = %.2f (%d source(s), %d hop(s))",
			tier, path, staleness, sample, composite, sources, hops),
		Signals: signals,
	}
}

// TierBase returns the mean base confidence of the nodes, or 0 with no nodes
func TierBase(nodes []EvidenceNode) float64 {
	if len(nodes) == 0 {
		return 0
	}
	var sum float64
	for _, n := range nodes {
		sum += nodeBase(n)
	}
	return sum / float64(len(nodes))
}

func nodeBase(n EvidenceNode) float64 {
	if n.Confidence != nil {
		return clamp01(*n.Confidence)
	}
	if base, ok := tierBase[n.Tier]; ok {
		return base
	}
	return tierBase[model.TierUnknown]
}

// PathDiscount returns 0.95^hops, floored at 0.1
func PathDiscount(hops int) float64 {
	if hops <= 0 {
		return 1
	}
	return math.Max(math.Pow(hopDecay, float64(hops)), pathFloor)
}

// StalenessDiscount is 1 while the newest year is inside the window, then
// drops by perYear for each year beyond it, floored at 0.3. With no years
// at all it is 0.85.
func StalenessDiscount(years []int, now time.Time, window int, perYear float64) float64 {
	newest := 0
	for _, y := range years {
		if y > newest {
			newest = y
		}
	}
	if newest == 0 {
		return noYearDiscount
	}

	age := now.Year() - newest
	if age <= window {
		return 1
	}
	return math.Max(stalenessFloor, 1-perYear*float64(age-window))
}

// SampleFactor is 0 for no sources, 0.6 for one, rising toward 1
func SampleFactor(sources int) float64 {
	if sources <= 0 {
		return 0
	}
	return singleSourceFactor + (1-singleSourceFactor)*(1-1/float64(sources))
}

// Level buckets a composite confidence
func Level(composite float64) string {
	switch {
	case composite >= 0.75:
		return "high"
	case composite >= 0.5:
		return "medium"
	default:
		return "low"
	}
}

func (s *Scorer) tierBase(nodes []EvidenceNode) (float64, model.Signal) {
	base := TierBase(nodes)
	if len(nodes) == 0 {
		return 0, model.Signal{
			Type:        model.SignalTierBase,
			Severity:    model.SeverityCritical,
			Description: "No cited evidence nodes",
			Data:        map[string]any{"nodes": 0},
		}
	}

	counts := make(map[model.EvidenceTier]int)
	explicit := 0
	for _, n := range nodes {
		if n.Confidence != nil {
			explicit++
			continue
		}
		counts[n.Tier]++
	}

	severity := model.SeverityInfo
	if base < 0.65 {
		severity = model.SeverityWarning
	}

	return base, model.Signal{
		Type:        model.SignalTierBase,
		Severity:    severity,
		Description: fmt.Sprintf("Mean source tier confidence %.2f over %d node(s)", base, len(nodes)),
		Data: map[string]any{
			"nodes":    len(nodes),
			"explicit": explicit,
			"t1":       counts[model.TierT1],
			"t2":       counts[model.TierT2],
			"t3":       counts[model.TierT3],
			"t4":       counts[model.TierT4],
			"unknown":  counts[model.TierUnknown],
			"value":    base,
			"formula":  "mean(explicit_confidence or tier_base[T1=.95,T2=.80,T3=.65,T4=.50,N/A=.50])",
		},
	}
}

func (s *Scorer) pathDiscount(hops int) (float64, model.Signal) {
	d := PathDiscount(hops)

	severity := model.SeverityInfo
	if hops > 3 {
		severity = model.SeverityWarning
	}

	return d, model.Signal{
		Type:        model.SignalPathLength,
		Severity:    severity,
		Description: fmt.Sprintf("%d inference hop(s) between data and answer", hops),
		Data: map[string]any{
			"hops":    hops,
			"value":   d,
			"formula": "max(0.95^hops, 0.1)",
		},
	}
}

func (s *Scorer) staleness(nodes []EvidenceNode) (float64, model.Signal) {
	var years []int
	newest := 0
	for _, n := range nodes {
		if n.Year > 0 {
			years = append(years, n.Year)
			if n.Year > newest {
				newest = n.Year
			}
		}
	}
	now := s.now()
	d := StalenessDiscount(years, now, s.freshnessWindow, s.stalenessPerYear)

	if newest == 0 {
		return d, model.Signal{
			Type:        model.SignalFreshness,
			Severity:    model.SeverityInfo,
			Description: "No publication years available (assuming moderate staleness)",
			Data:        map[string]any{"samples": 0, "value": d},
		}
	}

	age := now.Year() - newest
	severity := model.SeverityInfo
	if d < 0.6 {
		severity = model.SeverityCritical
	} else if d < 1 {
		severity = model.SeverityWarning
	}

	return d, model.Signal{
		Type:        model.SignalFreshness,
		Severity:    severity,
		Description: fmt.Sprintf("Newest source published %d (%d year(s) old)", newest, age),
		Data: map[string]any{
			"samples":  len(years),
			"newest":   newest,
			"age":      age,
			"window":   s.freshnessWindow,
			"per_year": s.stalenessPerYear,
			"value":    d,
			"formula":  "age <= window ? 1 : max(0.3, 1 - per_year*(age - window))",
		},
	}
}

func (s *Scorer) sampleFactor(sources int) (float64, model.Signal) {
	f := SampleFactor(sources)

	severity := model.SeverityInfo
	switch {
	case sources == 0:
		severity = model.SeverityCritical
	case sources == 1:
		severity = model.SeverityWarning
	}

	return f, model.Signal{
		Type:        model.SignalSampleSize,
		Severity:    severity,
		Description: fmt.Sprintf("%d independent source(s)", sources),
		Data: map[string]any{
			"sources": sources,
			"value":   f,
			"formula": "n == 0 ? 0 : 0.6 + 0.4*(1 - 1/n)",
		},
	}
}

// distinctSources counts nodes by DOI, falling back to node id, then to one per node
func distinctSources(nodes []EvidenceNode) int {
	seen := make(map[string]bool)
	anonymous := 0
	for _, n := range nodes {
		key := strings.ToLower(n.DOI)
		if key == "" {
			key = n.ID
		}
		if key == "" {
			anonymous++
			continue
		}
		seen[key] = true
	}
	return len(seen) + anonymous
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
