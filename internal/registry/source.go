package registry

import (
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// State is a supported registry state code.
type State string

const (
	StateFL State = "FL"
	StateGA State = "GA"
	StateAL State = "AL"
)

// ParseState normalizes a state code.
func ParseState(s string) (State, error) {
	switch st := State(strings.ToUpper(strings.TrimSpace(s))); st {
	case StateFL, StateGA, StateAL:
		return st, nil
	}
	return "", eris.Errorf("registry: unsupported state %q", s)
}

const (
	DefaultFLBaseURL = "https://search.sunbiz.org/Inquiry/CorporationSearch/SearchResults"
	DefaultGABaseURL = "https://ecorp.sos.ga.gov/BusinessSearch"
	DefaultALBaseURL = "https://arc-sos.state.al.us/cgi/corpname.mbr/output"
)

// Source describes how to query and parse one state registry.
type Source struct {
	State   State
	BaseURL string
	Parse   ParseFunc
	// StrictStatus requires an exact ACTIVE status.
	StrictStatus bool
}

// SearchURL builds an entity-name search. dateFrom is only honored by
// Sunbiz; the zero time omits it.
func (s Source) SearchURL(term string, dateFrom time.Time) string {
	switch s.State {
	case StateGA:
		return s.BaseURL + "?name=" + url.QueryEscape(term)
	case StateAL:
		return s.BaseURL + "?corpname=" + url.QueryEscape(term)
	}

	q := url.Values{}
	q.Set("SearchTerm", term)
	q.Set("SearchType", "EntityName")
	q.Set("SearchStatus", "A")
	if !dateFrom.IsZero() {
		q.Set("DateFrom", dateFrom.Format("2006-01-02"))
	}
	return s.BaseURL + "?" + q.Encode()
}

// Label is the lower-case fetch label for the source.
func (s Source) Label() string {
	switch s.State {
	case StateGA:
		return "ga_sos"
	case StateAL:
		return "al_sos"
	}
	return "sunbiz"
}

// DefaultSources returns the three registries with their live URLs unless
// overridden by non-empty arguments.
func DefaultSources(flURL, gaURL, alURL string) map[State]Source {
	return map[State]Source{
		StateFL: {State: StateFL, BaseURL: orDefault(flURL, DefaultFLBaseURL), Parse: ParseSunbiz, StrictStatus: true},
		StateGA: {State: StateGA, BaseURL: orDefault(gaURL, DefaultGABaseURL), Parse: ParseGA},
		StateAL: {State: StateAL, BaseURL: orDefault(alURL, DefaultALBaseURL), Parse: ParseAL},
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// LeadSource is the source label stamped on scored leads from this state.
func (s State) LeadSource() string {
	switch s {
	case StateGA:
		return "GA-SoS"
	case StateAL:
		return "AL-SoS"
	}
	return "FL-Sunbiz"
}
