package model

// QueryResult is the record returned by the external graph query layer
type QueryResult struct {
	Template    string         `json:"template"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Results     []ResultRow    `json:"results"`
	RecordCount int            `json:"record_count"`
}

// ResultRow is one row of a graph query result. Every field is optional.
type ResultRow struct {
	Site         string         `json:"site,omitempty"`
	TotalESV     *float64       `json:"total_esv,omitempty"`
	BiomassRatio *float64       `json:"biomass_ratio,omitempty"`
	NEOLIScore   *float64       `json:"neoli_score,omitempty"`
	AssetRating  string         `json:"asset_rating,omitempty"`
	Services     []ServiceValue `json:"services,omitempty"`
	Evidence     []EvidenceRef  `json:"evidence,omitempty"`
}

// ServiceValue is a valued ecosystem service attached to a site
type ServiceValue struct {
	Service  string   `json:"service"`
	ValueUSD float64  `json:"value_usd"`
	Method   string   `json:"method,omitempty"`
	CILow    *float64 `json:"ci_low,omitempty"`
	CIHigh   *float64 `json:"ci_high,omitempty"`
}

// Sites returns the distinct site names in row order
func (q QueryResult) Sites() []string {
	seen := make(map[string]bool)
	var sites []string
	for _, row := range q.Results {
		if row.Site != "" && !seen[row.Site] {
			seen[row.Site] = true
			sites = append(sites, row.Site)
		}
	}
	return sites
}

// EvidenceRefs returns all evidence records across rows, deduplicated by DOI
func (q QueryResult) EvidenceRefs() []EvidenceRef {
	seen := make(map[string]bool)
	var refs []EvidenceRef
	for _, row := range q.Results {
		for _, ev := range row.Evidence {
			key := ev.DOI + "|" + ev.AxiomID
			if seen[key] {
				continue
			}
			seen[key] = true
			refs = append(refs, ev)
		}
	}
	return refs
}
