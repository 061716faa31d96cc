// Package record defines the canonical record shared by every lookout screen
// and the functions that normalize raw backend documents into it.
package record

// Kind identifies which backend collection a record came from. It selects the
// field-resolution table used by Map.
type Kind string

const (
	KindOwnReport      Kind = "own_report"
	KindSighting       Kind = "sighting"
	KindMatchCandidate Kind = "match_candidate"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindOwnReport, KindSighting, KindMatchCandidate:
		return true
	}
	return false
}

// Document is a raw backend document as decoded from JSON.
type Document = map[string]any

// Record is the unified representation of a report, sighting or match candidate.
type Record struct {
	ID           string  `json:"id"`
	Kind         Kind    `json:"kind"`
	DisplayName  string  `json:"display_name"`
	Description  string  `json:"description"`
	ImageURI     string  `json:"image_uri"`
	When         string  `json:"when"`
	Location     string  `json:"location"`
	Score        float64 `json:"score"`
	ContactPhone string  `json:"contact_phone"`
	Status       bool    `json:"status"`

	// SourceReportID is set on match candidates: the own report the
	// candidate was scored against.
	SourceReportID string `json:"source_report_id,omitempty"`
}

// Tier buckets a match score for display.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// ScoreTier returns the display tier for score.
func ScoreTier(score float64) Tier {
	switch {
	case score > 80:
		return TierHigh
	case score > 60:
		return TierMedium
	default:
		return TierLow
	}
}

// ResolvedCount returns how many records have their status flag set.
func ResolvedCount(records []Record) int {
	n := 0
	for _, r := range records {
		if r.Status {
			n++
		}
	}
	return n
}

// Group pairs an own report with the match candidates scored against it.
type Group struct {
	Report     Record   `json:"report"`
	Candidates []Record `json:"candidates"`
}

// GroupBySource regroups a flat candidate list under the own reports it was
// returned for. Candidates whose source report is not in own are left out;
// they remain in the flat list the caller already holds.
func GroupBySource(own, candidates []Record) []Group {
	byReport := make(map[string][]Record, len(own))
	for _, c := range candidates {
		if c.SourceReportID == "" {
			continue
		}
		byReport[c.SourceReportID] = append(byReport[c.SourceReportID], c)
	}
	groups := make([]Group, 0, len(own))
	for _, r := range own {
		cs := byReport[r.ID]
		if cs == nil {
			cs = []Record{}
		}
		groups = append(groups, Group{Report: r, Candidates: cs})
	}
	return groups
}
