package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Extraction methods, in the order they are tried
const (
	MethodFenced   = "fenced"
	MethodWhole    = "whole"
	MethodBraces   = "braces"
	MethodRepaired = "repaired"
	MethodFailed   = "failed"
)

const rawPreviewLimit = 500

var fencedRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// JSONResult is a decoded generator object and how it was recovered
type JSONResult struct {
	Data   map[string]any
	Method string
}

// OK reports whether an object was recovered
func (r JSONResult) OK() bool {
	return r.Method != MethodFailed
}

// ExtractJSON recovers a JSON object from free-form generator output. It
// tries a fenced code block, the whole string, the span from the first "{"
// to the last "}", and a bracket-balancing repair of a truncated fragment.
// When everything fails Data holds an error object.
func ExtractJSON(raw string) JSONResult {
	text := strings.TrimSpace(raw)

	// 1. Fenced code block
	for _, m := range fencedRe.FindAllStringSubmatch(text, -1) {
		if obj, ok := decodeObject(m[1]); ok {
			return JSONResult{Data: obj, Method: MethodFenced}
		}
	}

	// 2. Whole string
	if obj, ok := decodeObject(text); ok {
		return JSONResult{Data: obj, Method: MethodWhole}
	}

	// 3. First "{" to last "}"
	start := strings.Index(text, "{")
	if end := strings.LastIndex(text, "}"); start >= 0 && end > start {
		if obj, ok := decodeObject(text[start : end+1]); ok {
			return JSONResult{Data: obj, Method: MethodBraces}
		}
	}

	// 4. Balance repair of a truncated fragment
	if start >= 0 {
		if obj, ok := decodeObject(repairJSON(text[start:])); ok {
			return JSONResult{Data: obj, Method: MethodRepaired}
		}
	}

	// 5. Structured error object
	preview := raw
	if len(preview) > rawPreviewLimit {
		preview = preview[:rawPreviewLimit]
	}
	return JSONResult{
		Data: map[string]any{
			"error":      "could not parse generator output as JSON",
			"raw_output": preview,
		},
		Method: MethodFailed,
	}
}

func decodeObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return obj, true
}

// repairJSON closes an unterminated string and any open objects or arrays.
// A dangling key or trailing comma is dropped first.
func repairJSON(fragment string) string {
	var stack []byte
	inString := false
	escaped := false
	var b strings.Builder

	for i := 0; i < len(fragment); i++ {
		c := fragment[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				continue // stray closer
			}
			stack = stack[:len(stack)-1]
		}
		b.WriteByte(c)
		if len(stack) == 0 && c == '}' {
			break
		}
	}

	out := b.String()
	if inString {
		if escaped {
			out = out[:len(out)-1]
		}
		out += `"`
	}
	out = trimDangling(out)
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}

// danglingKeyRe matches a trailing `"key"` or `"key":` after "{" or ","
var danglingKeyRe = regexp.MustCompile(`(?s)([,{])\s*"(?:[^"\\]|\\.)*"\s*:?$`)

func trimDangling(s string) string {
	for {
		s = strings.TrimRight(s, " \t\r\n")
		switch {
		case strings.HasSuffix(s, ","):
			s = s[:len(s)-1]
		case strings.HasSuffix(s, ":"):
			return s + "null"
		default:
			loc := danglingKeyRe.FindStringSubmatchIndex(s)
			if loc == nil || innermost(s[:loc[2]+1]) != '{' {
				return s
			}
			// keep the opening brace, drop a leading comma
			if s[loc[2]] == '{' {
				return s[:loc[2]+1]
			}
			s = s[:loc[2]]
		}
	}
}

// innermost returns the innermost open container of s, '{' or '[', or 0
func innermost(s string) byte {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 {
		return 0
	}
	return stack[len(stack)-1]
}
