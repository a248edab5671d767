package multilocation

import (
	"github.com/sells-group/lead-pipeline/internal/model"
)

// Verdict explains a detection outcome.
type Verdict string

const (
	VerdictQualified      Verdict = "qualified"
	VerdictBelowMinimum   Verdict = "below_minimum"
	VerdictUncorroborated Verdict = "uncorroborated"
)

// SourceDBA tags a count derived from registry DBA filings.
const SourceDBA model.LocationSource = "sunbiz_dba"

// Detection is the resolved location picture for one candidate.
type Detection struct {
	CompanyName string
	Resolution
	Verdict Verdict
}

// Detector applies the qualification gates on top of a Resolver.
type Detector struct {
	Resolver
}

// NewDetector returns a Detector using r.
func NewDetector(r Resolver) *Detector {
	return &Detector{Resolver: r}
}

// Detect resolves the candidate's location count and reports whether it
// qualifies: corroborated by enough sources (or 5+ DBAs) and at least
// MinLocations. employees <= 0 means no headcount is known.
func (d *Detector) Detect(c model.Candidate, googleCount, employees int, manual *int) (*Detection, bool) {
	headcount := 0
	if employees > 0 {
		headcount = HeadcountEstimate(employees)
	}

	res := d.Resolve(googleCount, headcount, manual)
	dbaOverride := c.DBACount >= dbaOverrideThreshold
	corroborated := len(res.Sources) >= d.MinSources || dbaOverride

	if dbaOverride && res.Count == 0 {
		// Each DBA counts as one location when external sources are thin.
		count := d.cap(c.DBACount)
		for _, n := range []int{googleCount, headcount} {
			count = max(count, d.cap(n))
		}
		res.Count = count
		res.Sources = append(res.Sources, SourceDBA)
		res.Confidence = d.confidence(1, count)
	}

	det := &Detection{CompanyName: c.CompanyName, Resolution: res}
	switch {
	case !corroborated:
		det.Verdict = VerdictUncorroborated
	case res.Count < d.MinLocations:
		det.Verdict = VerdictBelowMinimum
	default:
		det.Verdict = VerdictQualified
	}
	return det, det.Verdict == VerdictQualified
}
