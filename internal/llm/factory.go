package llm

import (
	"fmt"
	"strings"
)

// NewGenerator creates a generator for config.Provider. An empty provider
// returns ErrNoProvider.
func NewGenerator(config Config) (Generator, error) {
	switch strings.ToLower(config.Provider) {
	case "openai":
		return NewOpenAIProvider(config)
	case "ollama":
		return NewOllamaProvider(config)
	case "":
		return nil, ErrNoProvider
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, ollama)", config.Provider)
	}
}
