package model

// NumericClaim is a number asserted in generated answer text
type NumericClaim struct {
	Text  string    `json:"text"`            // Matched text, e.g. "$29.27M"
	Kind  ClaimKind `json:"kind"`            // currency, percent, ratio
	Value float64   `json:"value"`           // Normalized raw number
	Match float64   `json:"match,omitempty"` // Closest context value when verified
}

// ClaimKind categorizes a numeric claim
type ClaimKind string

const (
	ClaimKindCurrency ClaimKind = "currency" // Dollar amounts
	ClaimKindPercent  ClaimKind = "percent"  // Percentages
	ClaimKindRatio    ClaimKind = "ratio"    // Ratios such as "2.5x" or "3:1"
)
