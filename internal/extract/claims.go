package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/ppiankov/bluebridge/internal/model"
)

// magnitudes maps unit suffixes to multipliers
var magnitudes = map[string]float64{
	"k":        1e3,
	"thousand": 1e3,
	"m":        1e6,
	"mm":       1e6,
	"million":  1e6,
	"b":        1e9,
	"bn":       1e9,
	"billion":  1e9,
}

type claimPattern struct {
	kind model.ClaimKind
	re   *regexp.Regexp
}

// ClaimExtractor finds numeric claims in answer text
type ClaimExtractor struct {
	patterns []claimPattern
}

// NewClaimExtractor creates a new claim extractor
func NewClaimExtractor() *ClaimExtractor {
	return &ClaimExtractor{
		patterns: []claimPattern{
			{
				kind: model.ClaimKindCurrency,
				re:   regexp.MustCompile(`(?i)(?:US\$|\$|USD\s?)\s?(\d[\d,]*(?:\.\d+)?)\s*(thousand|million|billion|bn|mm|k|m|b)?\b`),
			},
			{
				kind: model.ClaimKindPercent,
				re:   regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s?(?:%|percent\b|per cent\b)`),
			},
			{
				kind: model.ClaimKindRatio,
				re:   regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s?(?:x|×|-fold|fold|times)(?:\W|$)`),
			},
			{
				kind: model.ClaimKindRatio,
				re:   regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s?:\s?1\b`),
			},
		},
	}
}

type span struct{ start, end int }

// Extract returns numeric claims in order of appearance. Matches that
// overlap an earlier pattern's match are skipped.
func (e *ClaimExtractor) Extract(text string) []model.NumericClaim {
	type located struct {
		claim model.NumericClaim
		start int
	}

	var taken []span
	var found []located
	for _, p := range e.patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			s := span{loc[0], loc[1]}
			if overlaps(taken, s) {
				continue
			}

			number := text[loc[2]:loc[3]]
			suffix := ""
			if len(loc) > 5 && loc[4] >= 0 {
				suffix = text[loc[4]:loc[5]]
			}
			value, ok := parseNumber(number, suffix)
			if !ok {
				continue
			}

			taken = append(taken, s)
			found = append(found, located{
				claim: model.NumericClaim{
					Text:  strings.TrimSpace(strings.TrimRight(text[loc[0]:loc[1]], " ,;.)")),
					Kind:  p.kind,
					Value: value,
				},
				start: loc[0],
			})
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].start < found[j].start })
	claims := make([]model.NumericClaim, len(found))
	for i, f := range found {
		claims[i] = f.claim
	}
	return dedupeClaims(claims)
}

// ParseAmount parses a number with optional thousands separators and a
// K/M/B or word suffix, e.g. "29.27M" or "1,200 million"
func ParseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	i := strings.IndexFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9') && r != ',' && r != '.' && r != '-'
	})
	if i < 0 {
		return parseNumber(s, "")
	}
	return parseNumber(s[:i], strings.TrimSpace(s[i:]))
}

func parseNumber(number, suffix string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	if suffix == "" {
		return v, true
	}
	mult, ok := magnitudes[strings.ToLower(suffix)]
	if !ok {
		return 0, false
	}
	return v * mult, true
}

func overlaps(taken []span, s span) bool {
	for _, t := range taken {
		if s.start < t.end && t.start < s.end {
			return true
		}
	}
	return false
}

// dedupeClaims removes repeated claims of the same kind and value
func dedupeClaims(claims []model.NumericClaim) []model.NumericClaim {
	seen := make(map[string]bool)
	var unique []model.NumericClaim

	for _, claim := range claims {
		key := string(claim.Kind) + "|" + strconv.FormatFloat(claim.Value, 'g', -1, 64)
		if !seen[key] {
			seen[key] = true
			unique = append(unique, claim)
		}
	}

	return unique
}
