package llm

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt_Structure(t *testing.T) {
	prompt := BuildPrompt(PromptInput{
		Question:    "What is the tourism value of Cabo Pulmo?",
		Site:        "Cabo Pulmo",
		Category:    "valuation",
		Context:     []string{"tourism (service): annual_value_usd=29270000"},
		Chain:       []string{"BA-001: fish biomass 4.63 -> tourism uplift 0.84"},
		AllowedDOIs: []string{"10.1371/journal.pone.0023601"},
	})

	assert.Contains(t, prompt, "Question: What is the tourism value of Cabo Pulmo?")
	assert.Contains(t, prompt, "Site: Cabo Pulmo")
	assert.Contains(t, prompt, "Category: valuation")
	assert.Contains(t, prompt, "\n- 10.1371/journal.pone.0023601")
	assert.Contains(t, prompt, "- tourism (service): annual_value_usd=29270000\n")
	assert.Contains(t, prompt, "1. BA-001: fish biomass 4.63 -> tourism uplift 0.84\n")
	assert.Contains(t, prompt, `"axioms_used"`)
}

func TestBuildPrompt_NoEvidence(t *testing.T) {
	prompt := BuildPrompt(PromptInput{Question: "q"})

	assert.Contains(t, prompt, "No DOIs available")
	assert.Contains(t, prompt, "(no context retrieved)")
	assert.NotContains(t, prompt, "Translation steps")
	assert.NotContains(t, prompt, "Site:")
}

func TestBuildPrompt_CapsAllowlist(t *testing.T) {
	dois := make([]string, 25)
	for i := range dois {
		dois[i] = fmt.Sprintf("10.1000/test%02d", i)
	}
	prompt := BuildPrompt(PromptInput{Question: "q", AllowedDOIs: dois})

	assert.Contains(t, prompt, "10.1000/test19")
	assert.NotContains(t, prompt, "10.1000/test20")
	assert.Contains(t, prompt, "... and 5 more DOIs")
}

func TestExtractDOIs(t *testing.T) {
	text := `See 10.1038/ngeo1123, and (10.1371/journal.pone.0023601). Also 10.1038/NGEO1123.`
	assert.Equal(t, []string{"10.1038/ngeo1123", "10.1371/journal.pone.0023601"}, extractDOIs(text))
	assert.Empty(t, extractDOIs(strings.Repeat("no dois here ", 3)))
}
