package provenance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/bluebridge/internal/integrity"
	"github.com/ppiankov/bluebridge/internal/model"
)

// Certificate is an audit export of an entity, its lineage and the
// activities around it. Checksum covers every other field.
type Certificate struct {
	Entity       model.Entity     `json:"entity"`
	Lineage      []LineageRecord  `json:"lineage"`
	Activities   []model.Activity `json:"activities"`
	SourceDOIs   []string         `json:"source_dois"`
	LineageDepth int              `json:"lineage_depth"`
	GeneratedAt  time.Time        `json:"generated_at"`
	Checksum     string           `json:"checksum,omitempty"`
}

// Certificate assembles and checksums a certificate for entityID
func (m *Manager) Certificate(ctx context.Context, entityID string) (*Certificate, error) {
	lineage, err := m.GetLineage(ctx, entityID, -1)
	if err != nil {
		return nil, fmt.Errorf("generate certificate: %w", err)
	}

	cert := &Certificate{
		Entity:      lineage[0].Entity,
		Lineage:     lineage,
		Activities:  []model.Activity{},
		SourceDOIs:  []string{},
		GeneratedAt: m.now(),
	}

	seenActivity := make(map[string]bool)
	seenDOI := make(map[string]bool)
	for _, rec := range lineage {
		if rec.Depth > cert.LineageDepth {
			cert.LineageDepth = rec.Depth
		}

		for _, doi := range entityDOIs(rec.Entity) {
			key := strings.ToLower(doi)
			if !seenDOI[key] {
				seenDOI[key] = true
				cert.SourceDOIs = append(cert.SourceDOIs, doi)
			}
		}

		activities, err := m.GetActivitiesForEntity(ctx, rec.Entity.ID)
		if err != nil {
			return nil, fmt.Errorf("generate certificate: %w", err)
		}
		for _, a := range activities {
			if !seenActivity[a.ID] {
				seenActivity[a.ID] = true
				cert.Activities = append(cert.Activities, a)
			}
		}
	}
	sort.SliceStable(cert.Activities, func(i, j int) bool {
		return cert.Activities[i].StartedAt.Before(cert.Activities[j].StartedAt)
	})

	checksum, err := integrity.ComputeChecksum(cert)
	if err != nil {
		return nil, fmt.Errorf("checksum certificate: %w", err)
	}
	cert.Checksum = checksum
	return cert, nil
}

// Verify recomputes the checksum without the checksum field
func (c *Certificate) Verify() (bool, error) {
	if c.Checksum == "" {
		return false, nil
	}
	stripped := *c
	stripped.Checksum = ""
	return integrity.Verify(stripped, c.Checksum)
}

// entityDOIs reads DOIs from the "doi" and "source_dois" attributes
func entityDOIs(e model.Entity) []string {
	var dois []string
	if doi, ok := e.Attributes["doi"].(string); ok && doi != "" {
		dois = append(dois, doi)
	}
	switch v := e.Attributes["source_dois"].(type) {
	case []string:
		dois = append(dois, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				dois = append(dois, s)
			}
		}
	}
	return dois
}

// Markdown renders the certificate for a human auditor
func (c *Certificate) Markdown() string {
	var b strings.Builder

	b.WriteString("# Provenance Certificate\n\n")
	fmt.Fprintf(&b, "- **Entity:** `%s` (%s)\n", c.Entity.ID, c.Entity.Type)
	fmt.Fprintf(&b, "- **Generated:** %s\n", c.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- **Lineage depth:** %d\n", c.LineageDepth)
	if c.Checksum != "" {
		fmt.Fprintf(&b, "- **Checksum (SHA-256):** `%s`\n", c.Checksum)
	}

	b.WriteString("\n## Attributes\n\n")
	if len(c.Entity.Attributes) == 0 {
		b.WriteString("_none_\n")
	} else {
		keys := make([]string, 0, len(c.Entity.Attributes))
		for k := range c.Entity.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("| Attribute | Value |\n|---|---|\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "| %s | %v |\n", k, c.Entity.Attributes[k])
		}
	}

	b.WriteString("\n## Evidence Sources\n\n")
	if len(c.SourceDOIs) == 0 {
		b.WriteString("_no DOI-backed sources_\n")
	}
	for _, doi := range c.SourceDOIs {
		fmt.Fprintf(&b, "- [%s](https://doi.org/%s)\n", doi, doi)
	}

	b.WriteString("\n## Lineage\n\n")
	for _, rec := range c.Lineage {
		fmt.Fprintf(&b, "%s- `%s` (%s)\n", strings.Repeat("  ", rec.Depth), rec.Entity.ID, rec.Entity.Type)
	}

	b.WriteString("\n## Activities\n\n")
	if len(c.Activities) == 0 {
		b.WriteString("_none recorded_\n")
	}
	for _, a := range c.Activities {
		fmt.Fprintf(&b, "### %s (%s)\n\n", a.ID, a.Type)
		fmt.Fprintf(&b, "- Started: %s\n", a.StartedAt.Format(time.RFC3339))
		if a.AssociatedWith != "" {
			fmt.Fprintf(&b, "- Agent: `%s`\n", a.AssociatedWith)
		}
		fmt.Fprintf(&b, "- Used: %s\n", codeList(a.Used))
		fmt.Fprintf(&b, "- Generated: %s\n\n", codeList(a.Generated))
	}

	return b.String()
}

func codeList(ids []string) string {
	if len(ids) == 0 {
		return "_none_"
	}
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = "`" + id + "`"
	}
	return strings.Join(quoted, ", ")
}
