package registry

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/fetcher"
	"github.com/sells-group/lead-pipeline/internal/model"
)

// DefaultCandidateKeywords are the name fragments searched for when looking
// for multi-location operators.
var DefaultCandidateKeywords = []string{
	"group", "concepts", "holdings", "partners", "ventures",
	"enterprises", "restaurant", "hospitality", "concessions",
}

// DefaultEstablishedFrom is the filing cutoff for established entities.
var DefaultEstablishedFrom = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// Options configures a Scraper.
type Options struct {
	Sources         map[State]Source
	EstablishedFrom time.Time
	// EstSearchTerms seed the established-layer search. Sunbiz joins them
	// with OR; GA and AL use the first term.
	EstSearchTerms []string
	// DBALookup runs one extra Sunbiz name search per candidate and counts
	// active registrations sharing its name stem as the candidate's DBAs.
	DBALookup bool
}

// Scraper runs registry searches and applies the qualification filters.
type Scraper struct {
	fetcher fetcher.Fetcher
	opts    Options
}

// NewScraper returns a Scraper using f for all requests.
func NewScraper(f fetcher.Fetcher, opts Options) *Scraper {
	if opts.Sources == nil {
		opts.Sources = DefaultSources("", "", "")
	}
	if opts.EstablishedFrom.IsZero() {
		opts.EstablishedFrom = DefaultEstablishedFrom
	}
	if len(opts.EstSearchTerms) == 0 {
		opts.EstSearchTerms = []string{"restaurant", "group", "holdings", "concepts"}
	}
	return &Scraper{fetcher: f, opts: opts}
}

func (s *Scraper) source(state State) (Source, error) {
	src, ok := s.opts.Sources[state]
	if !ok {
		return Source{}, eris.Errorf("registry: no source configured for %s", state)
	}
	return src, nil
}

func (s *Scraper) search(ctx context.Context, src Source, term string, dateFrom time.Time) ([]model.RawEntity, error) {
	html, err := s.fetcher.Fetch(ctx, src.SearchURL(term, dateFrom), src.Label())
	if err != nil {
		return nil, eris.Wrapf(err, "registry: search %s for %q", src.State, term)
	}
	rows, err := src.Parse(html)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Established returns active entities filed since the established cutoff
// with a physical address. Failures return an empty slice and the error.
func (s *Scraper) Established(ctx context.Context, state State) ([]model.RawEntity, error) {
	log := zap.L().With(zap.String("state", string(state)), zap.String("layer", string(model.LayerEstablished)))

	src, err := s.source(state)
	if err != nil {
		return []model.RawEntity{}, err
	}

	term := s.opts.EstSearchTerms[0]
	if state == StateFL {
		term = strings.Join(s.opts.EstSearchTerms, " OR ")
	}

	raw, err := s.search(ctx, src, term, time.Time{})
	if err != nil {
		log.Warn("registry: source unreachable, skipping", zap.Error(err))
		return []model.RawEntity{}, err
	}

	return Apply(log, raw,
		FilterActive(src.StrictStatus),
		FilterFiledSince(s.opts.EstablishedFrom),
		FilterPhysicalAddress(),
	), nil
}

// NewBusiness returns active entities filed since cutoff with a physical
// address and a name matching one of keywords.
func (s *Scraper) NewBusiness(ctx context.Context, state State, keywords []string, cutoff time.Time) ([]model.RawEntity, error) {
	log := zap.L().With(zap.String("state", string(state)), zap.String("layer", string(model.LayerNew)))

	src, err := s.source(state)
	if err != nil {
		return []model.RawEntity{}, err
	}

	term := "restaurant"
	if len(keywords) > 0 {
		term = keywords[0]
		if state == StateFL {
			term = strings.Join(keywords, " ")
		}
	}

	raw, err := s.search(ctx, src, term, cutoff)
	if err != nil {
		log.Warn("registry: source unreachable, skipping", zap.Error(err))
		return []model.RawEntity{}, err
	}

	return Apply(log, raw,
		FilterActive(src.StrictStatus),
		FilterFiledSince(cutoff),
		FilterPhysicalAddress(),
		FilterKeywords(keywords),
	), nil
}

// SearchCandidates runs one Sunbiz name search per keyword and returns up to
// limit distinct active entities as candidates. Per-keyword failures are
// collected and returned alongside whatever was found.
func (s *Scraper) SearchCandidates(ctx context.Context, keywords []string, limit int) ([]model.Candidate, []error) {
	log := zap.L().With(zap.String("stage", "candidate_search"))

	src, err := s.source(StateFL)
	if err != nil {
		return nil, []error{err}
	}

	lower := make([]string, 0, len(keywords))
	for _, k := range keywords {
		lower = append(lower, strings.ToLower(k))
	}

	seen := make(map[string]struct{})
	var (
		out  []model.Candidate
		errs []error
	)
	active := FilterActive(true)

	for _, kw := range keywords {
		if ctx.Err() != nil || len(out) >= limit {
			break
		}

		rows, err := s.search(ctx, src, kw, time.Time{})
		if err != nil {
			log.Warn("registry: candidate search failed", zap.String("keyword", kw), zap.Error(err))
			errs = append(errs, err)
			continue
		}

		for _, e := range rows {
			if !active.Keep(e) {
				continue
			}
			key := e.EntityID
			if key == "" {
				key = strings.ToLower(e.EntityName)
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			out = append(out, model.Candidate{
				CompanyName:    e.EntityName,
				DocumentNumber: e.EntityID,
				DBACount:       derefInt(e.DBACount),
				EntityKeywords: matchedKeywords(strings.ToLower(e.EntityName), lower),
				FilingDate:     e.FilingDate,
			})
			if len(out) >= limit {
				break
			}
		}
	}

	if s.opts.DBALookup {
		for i := range out {
			if out[i].DBACount > 0 || ctx.Err() != nil {
				continue
			}
			n, err := s.relatedRegistrations(ctx, src, out[i])
			if err != nil {
				log.Warn("registry: dba lookup failed", zap.String("company", out[i].CompanyName), zap.Error(err))
				continue
			}
			out[i].DBACount = n
		}
	}

	log.Info("registry: candidates found", zap.Int("count", len(out)), zap.Int("errors", len(errs)))
	return out, errs
}

// RecentFilings counts Sunbiz entities filed since since whose name contains
// name. It approximates new DBAs opened by an operator.
func (s *Scraper) RecentFilings(ctx context.Context, name string, since time.Time) (int, error) {
	src, err := s.source(StateFL)
	if err != nil {
		return 0, err
	}

	rows, err := s.search(ctx, src, name, since)
	if err != nil {
		return 0, err
	}

	needle := strings.ToLower(strings.TrimSpace(name))
	var n int
	for _, e := range rows {
		filed, ok := e.FiledAt()
		if !ok || filed.Before(since) {
			continue
		}
		if strings.Contains(strings.ToLower(e.EntityName), needle) {
			n++
		}
	}
	return n, nil
}

// relatedRegistrations searches the candidate's name stem and counts other
// active entities registered under the same stem.
func (s *Scraper) relatedRegistrations(ctx context.Context, src Source, c model.Candidate) (int, error) {
	stem := NameStem(c.CompanyName)
	if stem == "" {
		return 0, nil
	}
	rows, err := s.search(ctx, src, stem, time.Time{})
	if err != nil {
		return 0, err
	}

	self := c.DocumentNumber
	if self == "" {
		self = strings.ToLower(c.CompanyName)
	}
	active := FilterActive(true)
	related := make(map[string]struct{})
	for _, e := range rows {
		if !active.Keep(e) {
			continue
		}
		other := NameStem(e.EntityName)
		if other != stem && !strings.HasPrefix(other, stem+" ") {
			continue
		}
		key := e.EntityID
		if key == "" {
			key = strings.ToLower(e.EntityName)
		}
		if key == self {
			continue
		}
		related[key] = struct{}{}
	}
	return len(related), nil
}

var stemDropWords = map[string]bool{
	"llc": true, "inc": true, "corp": true, "corporation": true, "co": true,
	"company": true, "ltd": true, "lp": true, "llp": true, "pllc": true, "pa": true,
	"group": true, "holdings": true, "concepts": true, "partners": true,
	"ventures": true, "enterprises": true, "hospitality": true, "management": true,
	"the": true,
}

// NameStem lower-cases name, drops a trailing "of <place>" and strips
// trailing corporate suffixes and holding-company words.
// "Sunshine Stadium Events Group, LLC" and "SUNSHINE STADIUM EVENTS OF
// TAMPA LLC" both stem to "sunshine stadium events".
func NameStem(name string) string {
	words := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	for i, w := range words {
		if w == "of" && i > 0 {
			words = words[:i]
			break
		}
	}
	for len(words) > 0 && stemDropWords[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

func matchedKeywords(name string, keywords []string) []string {
	var out []string
	for _, k := range keywords {
		if k != "" && strings.Contains(name, k) {
			out = append(out, k)
		}
	}
	return out
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
