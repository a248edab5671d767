package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/model"
)

const maxExpansionScore = 10

var newsKeywords = []string{"expansion", "opening", "growth", "new location", "acquired"}

// FundingRound is one reported funding event.
type FundingRound struct {
	Date   string
	Amount string
}

// ExpansionInputs are the raw observations scored by ExpansionDetector.
type ExpansionInputs struct {
	Funding             []FundingRound
	NewDBAsLast90Days   int
	JobOpenings         int
	JobOpeningsBaseline int
	NewsMentions        []string
}

// Expansion is the scored set of expansion signals for an operator.
type Expansion struct {
	Signals []model.ExpansionSignal
	Score   int
}

// FilingCounter counts registry filings for a name since a date.
type FilingCounter interface {
	RecentFilings(ctx context.Context, name string, since time.Time) (int, error)
}

// ExpansionDetector scores growth signals for an operator.
type ExpansionDetector struct {
	filings  FilingCounter
	lookback time.Duration
}

// NewExpansionDetector returns a detector that counts new filings over
// lookback. filings may be nil.
func NewExpansionDetector(filings FilingCounter, lookback time.Duration) *ExpansionDetector {
	if lookback <= 0 {
		lookback = 90 * 24 * time.Hour
	}
	return &ExpansionDetector{filings: filings, lookback: lookback}
}

// Detect scores inputs as of now. The score is clamped to [0, 10].
func (d *ExpansionDetector) Detect(in ExpansionInputs, now time.Time) Result[Expansion] {
	var out Expansion
	score := 0

	cutoff := now.AddDate(0, -12, 0)
	var recent []FundingRound
	for _, f := range in.Funding {
		if t, ok := model.ParseFilingDate(f.Date); ok && !t.Before(cutoff) {
			recent = append(recent, f)
		}
	}
	if len(recent) > 0 {
		out.Signals = append(out.Signals, model.ExpansionSignal{
			Source:      model.ExpansionCrunchbase,
			Description: fmt.Sprintf("Recent funding: %d round(s)", len(recent)),
			Date:        recent[0].Date,
		})
		score += 3
	}

	if in.NewDBAsLast90Days >= 2 {
		out.Signals = append(out.Signals, model.ExpansionSignal{
			Source:      model.ExpansionSunbiz,
			Description: fmt.Sprintf("%d new DBAs in last 90 days", in.NewDBAsLast90Days),
		})
		score += 2
	}

	if float64(in.JobOpenings) >= float64(in.JobOpeningsBaseline)*1.5 && in.JobOpenings >= 5 {
		out.Signals = append(out.Signals, model.ExpansionSignal{
			Source:      model.ExpansionJobPostings,
			Description: fmt.Sprintf("Job openings surge: %d (baseline ~%d)", in.JobOpenings, in.JobOpeningsBaseline),
		})
		score += 2
	}

	mentions := 0
	for _, m := range in.NewsMentions {
		lower := strings.ToLower(m)
		for _, k := range newsKeywords {
			if strings.Contains(lower, k) {
				mentions++
				break
			}
		}
	}
	if mentions > 0 {
		out.Signals = append(out.Signals, model.ExpansionSignal{
			Source:      model.ExpansionGoogleNews,
			Description: fmt.Sprintf("Expansion mentioned in %d article(s)", mentions),
		})
		score += 2
	}

	out.Score = min(maxExpansionScore, max(0, score))
	if len(out.Signals) == 0 {
		return noSignal(out)
	}
	return found(out)
}

// DetectOperator gathers registry filings for name and scores them along
// with any extra inputs supplied by the caller.
func (d *ExpansionDetector) DetectOperator(ctx context.Context, name string, extra ExpansionInputs, now time.Time) Result[Expansion] {
	in := extra
	if d.filings != nil && name != "" {
		n, err := d.filings.RecentFilings(ctx, name, now.Add(-d.lookback))
		if err != nil {
			return failed[Expansion](eris.Wrapf(err, "enrich: count recent filings for %s", name))
		}
		in.NewDBAsLast90Days = n
	}
	return d.Detect(in, now)
}
