package enrich

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/pkg/hunter"
)

// DefaultTitles are the positions treated as decision makers for every
// category.
var DefaultTitles = []string{
	"VP Operations", "VP of Operations", "Vice President Operations",
	"Director F&B", "Director of F&B", "Director of Food",
	"COO", "Chief Operating Officer",
	"Regional Manager", "Regional Director",
	"GM", "General Manager",
}

// DataSourceHunter tags contacts found through Hunter.
const DataSourceHunter = "hunter"

const defaultSearchLimit = 10

// DecisionMakerFinder looks up operator contacts by company domain.
type DecisionMakerFinder struct {
	client hunter.Client
	limit  int
}

// NewDecisionMakerFinder returns a finder. A nil client disables lookups.
func NewDecisionMakerFinder(client hunter.Client, limit int) *DecisionMakerFinder {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &DecisionMakerFinder{client: client, limit: limit}
}

// Find returns contacts at domain whose position matches DefaultTitles or
// any of extraTitles. Contacts without an email are dropped.
func (f *DecisionMakerFinder) Find(ctx context.Context, domain string, extraTitles []string) Result[[]model.DecisionMaker] {
	if f.client == nil || domain == "" {
		return noSignal[[]model.DecisionMaker](nil)
	}

	emails, err := f.client.DomainSearch(ctx, domain, f.limit)
	if err != nil {
		zap.L().Warn("enrich: decision maker search failed",
			zap.String("domain", domain),
			zap.Error(err),
		)
		return failed[[]model.DecisionMaker](eris.Wrapf(err, "enrich: find decision makers for %s", domain))
	}

	titles := append(append([]string(nil), DefaultTitles...), extraTitles...)

	var out []model.DecisionMaker
	for _, e := range emails {
		if strings.TrimSpace(e.Value) == "" {
			continue
		}
		if !titleMatches(e.Position, titles) {
			continue
		}
		out = append(out, model.DecisionMaker{
			FullName:        fullName(e.FirstName, e.LastName),
			Title:           e.Position,
			Email:           strings.TrimSpace(e.Value),
			Phone:           e.Phone,
			LinkedInURL:     e.LinkedIn,
			DataSources:     []string{DataSourceHunter},
			EmailConfidence: emailConfidence(e.Confidence),
			IsVerified:      e.Verified,
		})
	}

	if len(out) == 0 {
		return noSignal(out)
	}
	return found(out)
}

func titleMatches(position string, titles []string) bool {
	p := strings.ToLower(position)
	if p == "" {
		return false
	}
	for _, t := range titles {
		if strings.Contains(p, strings.ToLower(t)) {
			return true
		}
	}
	return false
}

func fullName(first, last string) string {
	if n := strings.TrimSpace(first + " " + last); n != "" {
		return n
	}
	return "Unknown"
}

func emailConfidence(score int) model.Confidence {
	switch {
	case score >= 90:
		return model.ConfidenceHigh
	case score >= 70:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// DomainFromURL returns the bare host of a website URL, without a leading
// "www.". It returns "" when raw cannot be parsed.
func DomainFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
