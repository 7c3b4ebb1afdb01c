package model

import "strings"

// EvidenceItem is a single citation attached to an answer after DOI verification
type EvidenceItem struct {
	DOI           string       `json:"doi"`
	NormalizedDOI string       `json:"normalized_doi,omitempty"`
	Valid         bool         `json:"valid"`
	Status        string       `json:"verification_status"`           // missing, placeholder_blocked, invalid_format, unverified, unresolvable, verified
	Reason        string       `json:"verification_reason,omitempty"` // Human-readable reason for the status
	Resolver      string       `json:"resolver,omitempty"`            // Which resolver confirmed the DOI
	Title         string       `json:"title,omitempty"`
	Year          int          `json:"year,omitempty"`
	Tier          EvidenceTier `json:"tier"`
	Page          string       `json:"page,omitempty"`
	Quote         string       `json:"quote,omitempty"`
	AxiomID       string       `json:"axiom_id,omitempty"`
}

// URL returns the resolver link for the evidence DOI, or "" when there is none
func (e EvidenceItem) URL() string {
	if e.NormalizedDOI == "" {
		return ""
	}
	return "https://doi.org/" + e.NormalizedDOI
}

// EvidenceTier is a coarse trust ranking of a citation source
type EvidenceTier string

const (
	TierT1      EvidenceTier = "T1"  // Peer-reviewed primary research
	TierT2      EvidenceTier = "T2"  // Reviews, meta-analyses, institutional reports
	TierT3      EvidenceTier = "T3"  // Industry and NGO reports
	TierT4      EvidenceTier = "T4"  // Grey literature
	TierUnknown EvidenceTier = "N/A" // Not classified
)

// Known reports whether the tier is one of T1-T4
func (t EvidenceTier) Known() bool {
	switch t {
	case TierT1, TierT2, TierT3, TierT4:
		return true
	}
	return false
}

// ParseTier parses a canonical tier label. Anything else is TierUnknown.
func ParseTier(s string) EvidenceTier {
	switch EvidenceTier(strings.ToUpper(strings.TrimSpace(s))) {
	case TierT1:
		return TierT1
	case TierT2:
		return TierT2
	case TierT3:
		return TierT3
	case TierT4:
		return TierT4
	}
	return TierUnknown
}

// EvidenceRef is an evidence record as it arrives from a graph query row
type EvidenceRef struct {
	AxiomID string `json:"axiom_id,omitempty"`
	DOI     string `json:"doi"`
	Title   string `json:"title,omitempty"`
	Year    int    `json:"year,omitempty"`
	Tier    string `json:"tier,omitempty"`
}
