package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/bluebridge/internal/model"
)

// ErrNoProvider is returned when no generator is configured
var ErrNoProvider = errors.New("no LLM provider configured")

// Generator drafts answers from a grounded prompt
type Generator interface {
	// Name returns the provider name
	Name() string

	// Generate returns the raw draft text for a prompt
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is configured and reachable
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest is one generation call
type GenerateRequest struct {
	Prompt    string
	Model     string
	MaxTokens int
}

// GenerateResponse is the generator's raw output
type GenerateResponse struct {
	// Text is expected to hold a JSON draft, possibly fenced or malformed
	Text string

	// CitedDOIs are DOIs found in Text, in order of first appearance
	CitedDOIs []string

	Model      string
	TokensUsed int
}

// Config holds provider configuration
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns defaults with generation disabled
func DefaultConfig() Config {
	return Config{
		Timeout:   30 * time.Second,
		MaxTokens: 1000,
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(m model.LLMConfig) Config {
	return Config{
		Provider:  m.Provider,
		Model:     m.Model,
		APIKey:    m.APIKey,
		BaseURL:   m.BaseURL,
		Timeout:   m.Timeout,
		MaxTokens: m.MaxTokens,
	}
}

const systemPrompt = "You answer questions about marine ecosystem services using only the supplied evidence and respond with a single JSON object."

// PromptInput is the retrieved context a prompt is built from
type PromptInput struct {
	Question    string
	Site        string
	Category    string
	Context     []string
	Chain       []string
	AllowedDOIs []string
}

// maxPromptDOIs caps the allowlist rendered into a prompt
const maxPromptDOIs = 20

// BuildPrompt renders a prompt that restricts citations to AllowedDOIs
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n", in.Question)
	if in.Site != "" {
		fmt.Fprintf(&b, "Site: %s\n", in.Site)
	}
	if in.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", in.Category)
	}

	b.WriteString(`
RULES:
1. You MUST ONLY cite DOIs from this allowed list:
`)
	b.WriteString(joinDOIs(in.AllowedDOIs))
	b.WriteString(`

2. Every number in your answer must appear in the context below or follow from a listed translation step.
3. If the evidence is insufficient, say so and lower your confidence.
4. Do not cite any source that is not in the allowed list.

Context:
`)
	if len(in.Context) == 0 {
		b.WriteString("(no context retrieved)\n")
	}
	for _, line := range in.Context {
		fmt.Fprintf(&b, "- %s\n", line)
	}

	if len(in.Chain) > 0 {
		b.WriteString("\nTranslation steps:\n")
		for i, line := range in.Chain {
			fmt.Fprintf(&b, "%d. %s\n", i+1, line)
		}
	}

	b.WriteString(`
Respond with JSON only:
{"answer": string, "confidence": number between 0 and 1, "evidence": [{"doi": string, "title": string, "year": number, "tier": "T1"|"T2"|"T3"|"T4"}], "axioms_used": [string], "graph_path": [string], "caveats": [string]}
`)
	return b.String()
}

func joinDOIs(dois []string) string {
	if len(dois) == 0 {
		return "(No DOIs available; answer that evidence is insufficient)"
	}
	var b strings.Builder
	for i, d := range dois {
		if i >= maxPromptDOIs {
			fmt.Fprintf(&b, "\n... and %d more DOIs", len(dois)-maxPromptDOIs)
			break
		}
		fmt.Fprintf(&b, "\n- %s", d)
	}
	return b.String()
}

var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s"'<>,;\]\)]+`)

// extractDOIs returns distinct DOIs mentioned in text
func extractDOIs(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range doiPattern.FindAllString(text, -1) {
		m = strings.TrimRight(m, ".:!?")
		key := strings.ToLower(m)
		if !seen[key] {
			seen[key] = true
			out = append(out, m)
		}
	}
	return out
}

// resolve fills request defaults from the provider config
func (c Config) resolve(req GenerateRequest, fallbackModel string) GenerateRequest {
	if req.Model == "" {
		req.Model = c.Model
	}
	if req.Model == "" {
		req.Model = fallbackModel
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.MaxTokens
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 1000
	}
	return req
}
