package model

// QueryResponse is the validated answer returned to a caller
type QueryResponse struct {
	Answer     string         `json:"answer"`
	Confidence float64        `json:"confidence"`
	Evidence   []EvidenceItem `json:"evidence"`
	AxiomsUsed []string       `json:"axioms_used"`
	GraphPath  []string       `json:"graph_path"`
	Caveats    []string       `json:"caveats"`

	VerifiedClaims   []NumericClaim `json:"verified_claims"`
	UnverifiedClaims []NumericClaim `json:"unverified_claims"`

	ConfidenceBreakdown ConfidenceBreakdown `json:"confidence_breakdown"`

	EvidenceCount             int      `json:"evidence_count"`
	DOICitationCount          int      `json:"doi_citation_count"`
	EvidenceCompletenessScore float64  `json:"evidence_completeness_score"`
	ProvenanceWarnings        []string `json:"provenance_warnings"`
	ProvenanceRisk            string   `json:"provenance_risk"` // low, medium, high
	InsufficientEvidence      bool     `json:"insufficient_evidence,omitempty"`
	ProvenanceEntityID        string   `json:"provenance_entity_id,omitempty"`
}

// Provenance risk levels
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// ConfidenceBreakdown explains how a composite confidence was produced
type ConfidenceBreakdown struct {
	TierBase          float64  `json:"tier_base"`
	PathDiscount      float64  `json:"path_discount"`
	StalenessDiscount float64  `json:"staleness_discount"`
	SampleFactor      float64  `json:"sample_factor"`
	Composite         float64  `json:"composite"`
	Level             string   `json:"level"` // low, medium, high
	Explanation       string   `json:"explanation"`
	Signals           []Signal `json:"signals,omitempty"`
}

// Signal represents a diagnostic signal with transparent scoring data
type Signal struct {
	Type        SignalType     `json:"type"`
	Severity    SignalSeverity `json:"severity"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"` // Formula and inputs
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalTierBase    SignalType = "tier_base"    // Source tier of cited evidence
	SignalPathLength  SignalType = "path_length"  // Inference hops between data and answer
	SignalFreshness   SignalType = "freshness"    // Age of the newest source
	SignalSampleSize  SignalType = "sample_size"  // Number of corroborating sources
	SignalUnverified  SignalType = "unverified"   // Numerical claims without context support
	SignalMissingDOIs SignalType = "missing_dois" // Evidence without citation-grade DOIs
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)

// Draft is a generator answer after schema coercion, before evidence checks
type Draft struct {
	Answer     string           `json:"answer"`
	Confidence float64          `json:"confidence"`
	Evidence   []map[string]any `json:"evidence"`
	AxiomsUsed []string         `json:"axioms_used"`
	GraphPath  []string         `json:"graph_path"`
	Caveats    []string         `json:"caveats"`
}
