package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_Cascade(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		method string
		answer string
	}{
		{
			name:   "fenced",
			raw:    "Here you go:\n```json\n{\"answer\": \"fenced\", \"confidence\": 0.8}\n```\nThanks.",
			method: MethodFenced,
			answer: "fenced",
		},
		{
			name:   "whole",
			raw:    `  {"answer": "whole"}  `,
			method: MethodWhole,
			answer: "whole",
		},
		{
			name:   "braces",
			raw:    `Sure! {"answer": "braces", "caveats": []} Hope that helps.`,
			method: MethodBraces,
			answer: "braces",
		},
		{
			name:   "truncated string",
			raw:    `{"answer": "The reef is valued at $29.27M`,
			method: MethodRepaired,
			answer: "The reef is valued at $29.27M",
		},
		{
			name:   "truncated nested",
			raw:    `{"answer": "nested", "evidence": [{"doi": "10.1038/ngeo1123", "tier": "T1"}, {"doi": "10.10`,
			method: MethodRepaired,
			answer: "nested",
		},
		{
			name:   "dangling key",
			raw:    `{"answer": "dangling", "confid`,
			method: MethodRepaired,
			answer: "dangling",
		},
		{
			name:   "dangling colon",
			raw:    `{"answer": "colon", "confidence":`,
			method: MethodRepaired,
			answer: "colon",
		},
		{
			name:   "trailing comma",
			raw:    `{"answer": "comma", "caveats": ["a",`,
			method: MethodRepaired,
			answer: "comma",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ExtractJSON(tt.raw)
			require.True(t, res.OK(), "data: %v", res.Data)
			assert.Equal(t, tt.method, res.Method)
			assert.Equal(t, tt.answer, res.Data["answer"])
		})
	}
}

func TestExtractJSON_RepairedShapes(t *testing.T) {
	res := ExtractJSON(`{"answer": "nested", "evidence": [{"doi": "10.1038/ngeo1123"}, {"doi": "10.10`)
	require.True(t, res.OK())
	evidence, ok := res.Data["evidence"].([]any)
	require.True(t, ok)
	assert.Len(t, evidence, 2)

	res = ExtractJSON(`{"answer": "colon", "confidence":`)
	require.True(t, res.OK())
	assert.Contains(t, res.Data, "confidence")
	assert.Nil(t, res.Data["confidence"])

	res = ExtractJSON(`{"caveats": ["a", "b`)
	require.True(t, res.OK())
	assert.Equal(t, []any{"a", "b"}, res.Data["caveats"])
}

func TestExtractJSON_ErrorObject(t *testing.T) {
	for _, raw := range []string{"", "I cannot answer that.", "[1, 2, 3]", strings.Repeat("x", 2000)} {
		res := ExtractJSON(raw)
		assert.False(t, res.OK())
		assert.Equal(t, MethodFailed, res.Method)
		assert.Contains(t, res.Data, "error")
		assert.LessOrEqual(t, len(res.Data["raw_output"].(string)), rawPreviewLimit)
	}
}
