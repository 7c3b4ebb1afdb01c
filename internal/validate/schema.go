package validate

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ppiankov/bluebridge/internal/model"
)

// coerceDraft fixes the shape of a decoded generator object. Every fix is
// reported as a caveat.
func coerceDraft(raw map[string]any) (model.Draft, []string) {
	var d model.Draft
	var caveats []string

	if msg, ok := raw["error"].(string); ok && msg != "" {
		caveats = append(caveats, "generator output could not be parsed: "+msg)
	}

	// answer
	switch v := raw["answer"].(type) {
	case string:
		d.Answer = strings.TrimSpace(v)
	case nil:
		caveats = append(caveats, "answer missing; defaulted to empty")
	default:
		d.Answer = fmt.Sprint(v)
		caveats = append(caveats, fmt.Sprintf("answer was %s; converted to text", typeName(v)))
	}

	// confidence
	conf, ok := toFloat(raw["confidence"])
	switch {
	case raw["confidence"] == nil:
		caveats = append(caveats, "confidence missing; defaulted to 0")
	case !ok:
		caveats = append(caveats, fmt.Sprintf("confidence %v is not a number; defaulted to 0", raw["confidence"]))
	case conf < 0 || conf > 1:
		clamped := clamp01(conf)
		caveats = append(caveats, fmt.Sprintf("confidence %g clamped to %g", conf, clamped))
		d.Confidence = clamped
	default:
		d.Confidence = conf
	}
	if _, isText := raw["confidence"].(string); isText && ok {
		caveats = append(caveats, "confidence was text; parsed as a number")
	}

	// evidence
	d.Evidence, caveats = coerceEvidence(raw["evidence"], caveats)

	// string lists
	d.AxiomsUsed, caveats = coerceStrings("axioms_used", raw["axioms_used"], caveats)
	d.GraphPath, caveats = coerceStrings("graph_path", raw["graph_path"], caveats)
	d.Caveats, caveats = coerceStrings("caveats", raw["caveats"], caveats)

	return d, caveats
}

func coerceEvidence(v any, caveats []string) ([]map[string]any, []string) {
	var items []any
	switch t := v.(type) {
	case nil:
		return []map[string]any{}, append(caveats, "evidence missing; defaulted to empty list")
	case []any:
		items = t
	case map[string]any:
		items = []any{t}
		caveats = append(caveats, "evidence was a single object; wrapped in a list")
	case string:
		items = []any{t}
		caveats = append(caveats, "evidence was a string; treated as one DOI")
	default:
		return []map[string]any{}, append(caveats, fmt.Sprintf("evidence was %s; defaulted to empty list", typeName(v)))
	}

	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		switch e := item.(type) {
		case map[string]any:
			out = append(out, e)
		case string:
			out = append(out, map[string]any{"doi": e})
		default:
			caveats = append(caveats, fmt.Sprintf("evidence %d was %s; dropped", i+1, typeName(item)))
		}
	}
	return out, caveats
}

func coerceStrings(field string, v any, caveats []string) ([]string, []string) {
	switch t := v.(type) {
	case nil:
		return []string{}, caveats
	case string:
		if t == "" {
			return []string{}, caveats
		}
		return []string{t}, append(caveats, field+" was a string; wrapped in a list")
	case []any:
		out := make([]string, 0, len(t))
		fixed := false
		for _, item := range t {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case nil:
				fixed = true
			default:
				out = append(out, fmt.Sprint(s))
				fixed = true
			}
		}
		if fixed {
			caveats = append(caveats, field+" contained non-text items; converted")
		}
		return out, caveats
	}
	return []string{}, append(caveats, fmt.Sprintf("%s was %s; defaulted to empty list", field, typeName(v)))
}

// toFloat accepts finite numbers and numeric text
func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		return float64(t), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case string:
		n, _ := strconv.Atoi(strings.TrimSpace(t))
		return n
	}
	return 0
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func typeName(v any) string {
	switch v.(type) {
	case bool:
		return "a boolean"
	case float64, int:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "a list"
	case map[string]any:
		return "an object"
	}
	return fmt.Sprintf("%T", v)
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
