package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/bluebridge/internal/model"
)

// defaultTierAliases maps common free-form labels to tiers
var defaultTierAliases = map[string]model.EvidenceTier{
	"1":                 model.TierT1,
	"primary":           model.TierT1,
	"peer-reviewed":     model.TierT1,
	"peer reviewed":     model.TierT1,
	"journal":           model.TierT1,
	"2":                 model.TierT2,
	"secondary":         model.TierT2,
	"review":            model.TierT2,
	"meta-analysis":     model.TierT2,
	"systematic review": model.TierT2,
	"institutional":     model.TierT2,
	"government":        model.TierT2,
	"3":                 model.TierT3,
	"tertiary":          model.TierT3,
	"industry":          model.TierT3,
	"ngo":               model.TierT3,
	"report":            model.TierT3,
	"4":                 model.TierT4,
	"grey":              model.TierT4,
	"gray":              model.TierT4,
	"grey literature":   model.TierT4,
	"gray literature":   model.TierT4,
	"preprint":          model.TierT4,
	"news":              model.TierT4,
	"blog":              model.TierT4,
}

// tierNumberPattern matches "T2", "tier 2", "tier-2", "Tier_3"
var tierNumberPattern = regexp.MustCompile(`(?i)^t(?:ier)?[\s_-]*([1-4])$`)

type compiledPattern struct {
	pattern *regexp.Regexp
	tier    model.EvidenceTier
}

// TierClassifier normalizes evidence tier labels to T1-T4 or N/A
type TierClassifier struct {
	aliases  map[string]model.EvidenceTier
	patterns []*compiledPattern
}

// NewTierClassifier creates a classifier. Configured aliases override the
// defaults; configured patterns with invalid expressions are skipped.
func NewTierClassifier(cfg model.ValidationConfig) *TierClassifier {
	c := &TierClassifier{
		aliases: make(map[string]model.EvidenceTier, len(defaultTierAliases)+len(cfg.TierAliases)),
	}

	for label, tier := range defaultTierAliases {
		c.aliases[label] = tier
	}
	for label, tier := range cfg.TierAliases {
		if t := model.ParseTier(tier); t.Known() {
			c.aliases[normalizeLabel(label)] = t
		}
	}

	for _, p := range cfg.TierPatterns {
		re, err := regexp.Compile("(?i)" + p.Pattern)
		if err != nil {
			continue
		}
		if t := model.ParseTier(p.Tier); t.Known() {
			c.patterns = append(c.patterns, &compiledPattern{pattern: re, tier: t})
		}
	}

	return c
}

// Classify maps a label to a tier. Unrecognized labels are N/A, never blank.
func (c *TierClassifier) Classify(label string) model.EvidenceTier {
	l := normalizeLabel(label)
	if l == "" {
		return model.TierUnknown
	}

	// Canonical labels and "tier N" forms
	if m := tierNumberPattern.FindStringSubmatch(l); m != nil {
		return model.ParseTier("T" + m[1])
	}

	if t, ok := c.aliases[l]; ok {
		return t
	}

	for _, cp := range c.patterns {
		if cp.pattern.MatchString(l) {
			return cp.tier
		}
	}

	return model.TierUnknown
}

// ClassifyValue accepts a label or a number such as 2 or 2.0
func (c *TierClassifier) ClassifyValue(v any) model.EvidenceTier {
	switch t := v.(type) {
	case string:
		return c.Classify(t)
	case float64:
		if t == math.Trunc(t) {
			return c.Classify(strconv.Itoa(int(t)))
		}
	case int:
		return c.Classify(strconv.Itoa(t))
	}
	return model.TierUnknown
}

func normalizeLabel(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
