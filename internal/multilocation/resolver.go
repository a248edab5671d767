// Package multilocation decides whether a registry candidate is an operator
// with many locations, and which category it belongs to.
package multilocation

import (
	"math"
	"strings"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// Defaults for location qualification.
const (
	DefaultMinLocations  = 10
	DefaultMaxLocations  = 200
	DefaultMinSources    = 2
	dbaOverrideThreshold = 5
	employeesPerLocation = 15
)

var multiIndicatorKeywords = []string{"group", "concepts", "holdings", "partners", "ventures", "enterprises"}

// Resolution is a combined location count.
type Resolution struct {
	Count      int
	Sources    []model.LocationSource
	Confidence model.Confidence
}

// SourceTags joins the source names with commas.
func (r Resolution) SourceTags() string {
	tags := make([]string, len(r.Sources))
	for i, s := range r.Sources {
		tags[i] = string(s)
	}
	return strings.Join(tags, ",")
}

// Resolver combines per-source location counts.
type Resolver struct {
	MinLocations int
	MaxLocations int
	MinSources   int
}

// DefaultResolver returns min 10, max 200, 2 sources.
func DefaultResolver() Resolver {
	return Resolver{
		MinLocations: DefaultMinLocations,
		MaxLocations: DefaultMaxLocations,
		MinSources:   DefaultMinSources,
	}
}

// Resolve merges the Places count, the headcount estimate and an optional
// manual override. Without enough corroborating sources and no override the
// count is 0. Otherwise the override wins unchanged, then the midpoint of mean and max
// across sources, then the single source's value.
func (r Resolver) Resolve(googleCount, headcountEstimate int, manualOverride *int) Resolution {
	var (
		sources []model.LocationSource
		counts  []int
	)
	add := func(src model.LocationSource, n int) {
		if n > 0 {
			sources = append(sources, src)
			counts = append(counts, r.cap(n))
		}
	}
	add(model.SourceGooglePlaces, googleCount)
	add(model.SourceHeadcount, headcountEstimate)
	hasManual := manualOverride != nil && *manualOverride > 0
	if hasManual {
		add(model.SourceManual, *manualOverride)
	}

	if len(sources) < r.MinSources && !hasManual {
		return Resolution{Count: 0, Sources: sources, Confidence: model.ConfidenceLow}
	}

	var count int
	switch {
	case hasManual:
		count = *manualOverride
	case len(sources) >= 2:
		sum, hi := 0, 0
		for _, c := range counts {
			sum += c
			hi = max(hi, c)
		}
		avg := float64(sum) / float64(len(counts))
		count = int(math.Round((avg + float64(hi)) / 2))
	default:
		count = counts[0]
	}

	return Resolution{Count: count, Sources: sources, Confidence: r.confidence(len(sources), count)}
}

func (r Resolver) confidence(sources, count int) model.Confidence {
	switch {
	case sources >= 2 && count >= r.MinLocations:
		return model.ConfidenceHigh
	case sources >= 1 && count >= r.MinLocations:
		return model.ConfidenceMedium
	}
	return model.ConfidenceLow
}

func (r Resolver) cap(n int) int {
	if r.MaxLocations > 0 && n > r.MaxLocations {
		return r.MaxLocations
	}
	return n
}

// HeadcountEstimate converts an employee count to a location estimate at
// 15 employees per location, minimum 1.
func HeadcountEstimate(employees int) int {
	return max(1, employees/employeesPerLocation)
}

// HasMultiIndicators reports whether a candidate's name or DBA count hints
// at multiple locations.
func HasMultiIndicators(c model.Candidate) bool {
	name := strings.ToLower(c.CompanyName)
	for _, k := range multiIndicatorKeywords {
		if strings.Contains(name, k) {
			return true
		}
	}
	return c.DBACount >= dbaOverrideThreshold
}
