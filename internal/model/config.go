package model

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete bluebridge configuration
type Config struct {
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	Provenance ProvenanceConfig `yaml:"provenance" mapstructure:"provenance"`
	DOI        DOIConfig        `yaml:"doi" mapstructure:"doi"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" mapstructure:"retrieval"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Logging    LoggingConfig    `yaml:"logging" mapstructure:"logging"`
}

// RegistryConfig locates the axiom template and optional evidence overrides
type RegistryConfig struct {
	TemplatePath string `yaml:"template_path" mapstructure:"template_path"`
	EvidencePath string `yaml:"evidence_path,omitempty" mapstructure:"evidence_path"`
}

// ProvenanceConfig selects the provenance backend
type ProvenanceConfig struct {
	Backend         string `yaml:"backend" mapstructure:"backend" validate:"oneof=memory badger sqlite"`
	Path            string `yaml:"path,omitempty" mapstructure:"path" validate:"required_unless=Backend memory"`
	MaxLineageDepth int    `yaml:"max_lineage_depth" mapstructure:"max_lineage_depth" validate:"min=1,max=100"`
}

// DOIConfig controls DOI verification and live resolution
type DOIConfig struct {
	LiveResolution    bool          `yaml:"live_resolution" mapstructure:"live_resolution"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	HandleURL         string        `yaml:"handle_url" mapstructure:"handle_url" validate:"url"`
	CrossrefURL       string        `yaml:"crossref_url" mapstructure:"crossref_url" validate:"url"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	CacheTTL          time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheDir          string        `yaml:"cache_dir,omitempty" mapstructure:"cache_dir"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gt=0"`
	BurstSize         int           `yaml:"burst_size" mapstructure:"burst_size" validate:"gt=0"`
	HTTPProxy         string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy           string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// ScoringConfig tunes the confidence scorer
type ScoringConfig struct {
	FreshnessWindowYears int     `yaml:"freshness_window_years" mapstructure:"freshness_window_years" validate:"min=0"`
	StalenessPerYear     float64 `yaml:"staleness_per_year" mapstructure:"staleness_per_year" validate:"gte=0,lte=1"`
}

// RetrievalConfig tunes hybrid retrieval
type RetrievalConfig struct {
	MaxHops int `yaml:"max_hops" mapstructure:"max_hops" validate:"min=0"`
	TopK    int `yaml:"top_k" mapstructure:"top_k" validate:"min=1"`
	RRFK    int `yaml:"rrf_k" mapstructure:"rrf_k" validate:"min=1"`
}

// ValidationConfig tunes the response guardrail
type ValidationConfig struct {
	StrictCategories []string          `yaml:"strict_categories" mapstructure:"strict_categories"`
	ClaimTolerance   float64           `yaml:"claim_tolerance" mapstructure:"claim_tolerance" validate:"gt=0,lt=1"`
	TierAliases      map[string]string `yaml:"tier_aliases,omitempty" mapstructure:"tier_aliases"`
	TierPatterns     []TierPattern     `yaml:"tier_patterns,omitempty" mapstructure:"tier_patterns" validate:"dive"`
}

// TierPattern maps labels matching a regular expression to a tier
type TierPattern struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
	Tier    string `yaml:"tier" mapstructure:"tier" validate:"oneof=T1 T2 T3 T4"`
}

// LLMConfig configures the text-generation provider
type LLMConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"` // openai, ollama, or "" (disabled)
	Model     string        `yaml:"model" mapstructure:"model"`
	APIKey    string        `yaml:"-" mapstructure:"api_key"`
	BaseURL   string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens int           `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LoggingConfig configures zap
type LoggingConfig struct {
	Level       string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `yaml:"development" mapstructure:"development"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Registry: RegistryConfig{
			TemplatePath: "data/bridge_axiom_templates.json",
		},
		Provenance: ProvenanceConfig{
			Backend:         "memory",
			MaxLineageDepth: 10,
		},
		DOI: DOIConfig{
			LiveResolution:    false,
			Timeout:           800 * time.Millisecond,
			HandleURL:         "https://doi.org/api/handles/",
			CrossrefURL:       "https://api.crossref.org/works/",
			UserAgent:         "bluebridge/0.1 (+https://github.com/ppiankov/bluebridge)",
			CacheTTL:          7 * 24 * time.Hour,
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Scoring: ScoringConfig{
			FreshnessWindowYears: 5,
			StalenessPerYear:     0.05,
		},
		Retrieval: RetrievalConfig{
			MaxHops: 2,
			TopK:    10,
			RRFK:    60,
		},
		Validation: ValidationConfig{
			StrictCategories: []string{"valuation", "financial", "risk"},
			ClaimTolerance:   0.05,
		},
		LLM: LLMConfig{
			Provider:  "",
			Timeout:   30 * time.Second,
			MaxTokens: 1000,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

var configValidator = validator.New()

// Validate checks the configuration for values that cannot work
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
