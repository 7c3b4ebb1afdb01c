// Package doi normalizes, checks and optionally resolves DOI citations.
package doi

import (
	"regexp"
	"strings"
)

// Status is the outcome of verifying a DOI
type Status string

const (
	StatusMissing            Status = "missing"
	StatusPlaceholderBlocked Status = "placeholder_blocked"
	StatusInvalidFormat      Status = "invalid_format"
	StatusUnverified         Status = "unverified"   // well-formed, not confirmed by a resolver
	StatusUnresolvable       Status = "unresolvable" // every resolver answered "not found"
	StatusVerified           Status = "verified"
)

// CitationGrade reports whether a DOI with this status may back a claim
func (s Status) CitationGrade() bool {
	return s == StatusVerified || s == StatusUnverified
}

// Definitive reports whether the status came from a resolver answer and can be cached
func (s Status) Definitive() bool {
	return s == StatusVerified || s == StatusUnresolvable
}

var (
	formatPattern      = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	placeholderPattern = regexp.MustCompile(`(?i)x{3,}|unknown|tbd|not[\s_-]*available|placeholder`)
)

// Prefixes stripped by Normalize, matched case-insensitively
var resolverPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
	"dx.doi.org/",
	"doi:",
}

// Normalize strips resolver URLs, "doi:" schemes, surrounding whitespace and
// trailing punctuation. Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	for {
		prev := s
		lower := strings.ToLower(s)
		for _, p := range resolverPrefixes {
			if strings.HasPrefix(lower, p) {
				s = strings.TrimSpace(s[len(p):])
				break
			}
		}
		s = strings.TrimRight(s, " .,;")
		if s == prev {
			return s
		}
	}
}

// IsPlaceholder reports whether the DOI is a stand-in such as "10.xxxx/xxxxx" or "TBD"
func IsPlaceholder(doi string) bool {
	return placeholderPattern.MatchString(doi)
}

// ValidFormat reports whether a normalized DOI looks like 10.<4-9 digits>/<suffix>
func ValidFormat(doi string) bool {
	return formatPattern.MatchString(doi)
}

// Check classifies a DOI without any network access. It returns the
// normalized DOI and either a terminal failure status or StatusUnverified.
func Check(raw string) (string, Status, string) {
	normalized := Normalize(raw)
	switch {
	case normalized == "":
		return "", StatusMissing, "no DOI provided"
	case IsPlaceholder(normalized):
		return normalized, StatusPlaceholderBlocked, "DOI is a placeholder"
	case !ValidFormat(normalized):
		return normalized, StatusInvalidFormat, "DOI does not match 10.<registrant>/<suffix>"
	}
	return normalized, StatusUnverified, "format valid, live resolution disabled"
}
