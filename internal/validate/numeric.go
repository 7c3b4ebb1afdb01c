package validate

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/ppiankov/bluebridge/internal/extract"
	"github.com/ppiankov/bluebridge/internal/model"
)

// unitShifts are applied to every context number to catch unit mismatches
// such as millions vs raw dollars or fractions vs percentages
var unitShifts = []float64{1, 1e6, 100, 1e-6}

// FlattenNumbers collects every numeric leaf in a context value, plus its
// unit-shifted forms. Text leaves that parse as amounts ("$29.27M") count.
func FlattenNumbers(ctx any) []float64 {
	var generic any
	switch v := ctx.(type) {
	case nil:
		return nil
	case map[string]any, []any:
		generic = v
	default:
		data, err := json.Marshal(ctx)
		if err != nil {
			return nil
		}
		if err := json.Unmarshal(data, &generic); err != nil {
			return nil
		}
	}

	var leaves []float64
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case float64:
			leaves = append(leaves, t)
		case int:
			leaves = append(leaves, float64(t))
		case string:
			if n, ok := extract.ParseAmount(t); ok {
				leaves = append(leaves, n)
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			for _, item := range t {
				walk(item)
			}
		}
	}
	walk(generic)

	seen := make(map[float64]bool)
	var out []float64
	for _, leaf := range leaves {
		for _, shift := range unitShifts {
			n := leaf * shift
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	sort.Float64s(out)
	return out
}

// verifyClaims splits claims into those backed by a context number within
// the relative tolerance and those that are not
func verifyClaims(claims []model.NumericClaim, numbers []float64, tolerance float64) (verified, unverified []model.NumericClaim) {
	verified = []model.NumericClaim{}
	unverified = []model.NumericClaim{}

	for _, c := range claims {
		if match, ok := closestWithin(c.Value, numbers, tolerance); ok {
			c.Match = match
			verified = append(verified, c)
			continue
		}
		unverified = append(unverified, c)
	}
	return verified, unverified
}

func closestWithin(value float64, numbers []float64, tolerance float64) (float64, bool) {
	best := 0.0
	bestErr := math.Inf(1)
	for _, n := range numbers {
		var rel float64
		switch {
		case n == 0 && value == 0:
			rel = 0
		case n == 0:
			continue
		default:
			rel = math.Abs(value-n) / math.Abs(n)
		}
		if rel < bestErr {
			best, bestErr = n, rel
		}
	}
	return best, bestErr <= tolerance
}
