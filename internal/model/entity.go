package model

import (
	"strings"
	"time"
)

// Layer identifies the discovery track a lead came from.
type Layer string

const (
	LayerEstablished Layer = "est" // established multi-location operator
	LayerNew         Layer = "new" // newly filed business
)

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool {
	return l == LayerEstablished || l == LayerNew
}

// RawEntity is a single registry row as extracted from a search results page.
// FilingDate and PhysicalAddress may be empty strings.
type RawEntity struct {
	EntityName      string `json:"entity_name"`
	EntityID        string `json:"entity_id,omitempty"`
	Status          string `json:"status"`
	FilingDate      string `json:"filing_date"`
	PhysicalAddress string `json:"physical_address"`
	County          string `json:"county,omitempty"`
	Type            string `json:"type,omitempty"`
	DBACount        *int   `json:"dba_count,omitempty"`
	Locations       *int   `json:"locations,omitempty"`
}

// IsActive reports whether the registry status reads as active.
func (e RawEntity) IsActive() bool {
	return e.Status == "ACTIVE" || e.Status == "Active"
}

// FiledAt parses FilingDate. The second return is false when the date is
// empty or in an unrecognized layout.
func (e RawEntity) FiledAt() (time.Time, bool) {
	return ParseFilingDate(e.FilingDate)
}

var filingDateLayouts = []string{
	"01/02/2006",
	"1/2/2006",
	"2006-01-02",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	time.RFC3339,
}

// ParseFilingDate parses the date formats seen across state registries.
func ParseFilingDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range filingDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ScoredLead is a RawEntity with its source, layer and qualification score.
type ScoredLead struct {
	RawEntity
	Source    string    `json:"source"`
	Layer     Layer     `json:"layer"`
	Score     int       `json:"score"`
	TechFit   string    `json:"tech_fit,omitempty"`
	Contact   string    `json:"contact,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
