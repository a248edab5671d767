package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-pipeline/internal/cost"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/multilocation"
	"github.com/sells-group/lead-pipeline/internal/registry"
	"github.com/sells-group/lead-pipeline/pkg/google"
	"github.com/sells-group/lead-pipeline/pkg/hunter"
)

// discover searches the registry for candidates, resolves their location
// counts and persists the ones that qualify.
func (p *Pipeline) discover(ctx context.Context, rs *runState) (*model.PhaseResult, error) {
	candidates, searchErrs := p.deps.Registry.SearchCandidates(ctx, p.searchKeywords(), p.cfg.Registry.MaxCandidates)
	for _, err := range searchErrs {
		rs.errs.add(StageDiscovery, err)
	}
	if len(candidates) == 0 && len(searchErrs) > 0 {
		return nil, eris.Errorf("discovery: registry search failed (%d errors)", len(searchErrs))
	}

	var screened []model.Candidate
	for _, c := range candidates {
		if multilocation.HasMultiIndicators(c) {
			screened = append(screened, c)
		}
	}
	rs.log.Info("pipeline: candidates screened",
		zap.Int("candidates", len(candidates)),
		zap.Int("with_indicators", len(screened)),
	)

	resolved := make([]*model.Operator, len(screened))
	g := new(errgroup.Group)
	for i, c := range screened {
		g.Go(func() error {
			resolved[i] = p.resolveCandidate(ctx, rs, c)
			return nil
		})
	}
	_ = g.Wait()

	saved := 0
	for _, op := range resolved {
		if op == nil {
			continue
		}
		if _, err := p.deps.Store.UpsertOperator(ctx, op); err != nil {
			rs.errs.addf(StageDiscovery, "upsert %s: %v", op.CompanyName, err)
			continue
		}
		saved++
		rs.totalLocations += op.EstimatedLocationCount
		rs.hist.CategoriesBreakdown[string(op.Category)]++
	}
	rs.hist.OperatorsFound = saved
	p.deps.Metrics.AddOperators(saved)

	return &model.PhaseResult{
		Metadata: map[string]any{
			"candidates": len(candidates),
			"screened":   len(screened),
			"qualified":  saved,
		},
	}, nil
}

// searchKeywords is the union of enabled category keywords, or the
// registry defaults when no category is enabled.
func (p *Pipeline) searchKeywords() []string {
	seen := make(map[string]bool)
	var out []string
	for _, cat := range p.deps.Categories.Enabled() {
		for _, kw := range cat.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" || seen[kw] {
				continue
			}
			seen[kw] = true
			out = append(out, kw)
		}
	}
	if len(out) == 0 {
		return registry.DefaultCandidateKeywords
	}
	return out
}

func (p *Pipeline) cachedLocations(ctx context.Context, name string) (google.BrandLocations, bool) {
	cl, ok := p.deps.Locations.(cachedLocations)
	if !ok {
		return google.BrandLocations{}, false
	}
	return cl.CachedLocations(ctx, name, p.cfg.Google.Region)
}

// resolveCandidate gathers location evidence for one candidate and returns
// the operator to persist, or nil when it does not qualify.
func (p *Pipeline) resolveCandidate(ctx context.Context, rs *runState, c model.Candidate) *model.Operator {
	log := rs.log.With(zap.String("company", c.CompanyName))

	var err error
	places, cached := p.cachedLocations(ctx, c.CompanyName)
	if !cached {
		places, err = GateVal(ctx, rs.gate, cost.ServicePlaces, func(ctx context.Context) (google.BrandLocations, error) {
			return p.deps.Locations.CountLocationsForBrand(ctx, c.CompanyName, p.cfg.Google.Region), nil
		})
		if err != nil {
			rs.errs.addf(StageDiscovery, "location count %s: %v", c.CompanyName, err)
		}
	}

	var company *hunter.Company
	if p.cfg.MultiLocation.HeadcountLookup && p.deps.Companies != nil {
		company, err = GateVal(ctx, rs.gate, cost.ServiceHunter, func(ctx context.Context) (*hunter.Company, error) {
			return p.deps.Companies.CompanySearch(ctx, c.CompanyName)
		})
		if err != nil {
			rs.errs.addf(StageDiscovery, "headcount %s: %v", c.CompanyName, err)
			company = nil
		}
	}
	employees := 0
	if company != nil {
		employees = company.Headcount
	}

	det, ok := p.detector.Detect(c, places.Count, employees, p.manualCount(c.CompanyName))
	if !ok {
		log.Debug("pipeline: candidate not qualified",
			zap.String("verdict", string(det.Verdict)),
			zap.Int("count", det.Count),
		)
		return nil
	}

	cls := p.classifier.Classify(c.CompanyName)
	cat, found := p.deps.Categories.Lookup(string(cls.Category))
	if !found || !cat.Enabled {
		log.Debug("pipeline: category not enabled", zap.String("category", string(cls.Category)))
		return nil
	}
	if cat.MinLocations > 0 && det.Count < cat.MinLocations {
		log.Debug("pipeline: below category minimum",
			zap.String("category", cat.Name),
			zap.Int("count", det.Count),
			zap.Int("min", cat.MinLocations),
		)
		return nil
	}

	catConfidence := cls.Confidence
	if len(places.Types) > 0 {
		catConfidence = multilocation.ValidateWithPlaceTypes(cls.Category, places.Types)
	}

	op := &model.Operator{
		CompanyName:            c.CompanyName,
		DocumentNumber:         c.DocumentNumber,
		Category:               cls.Category,
		EstimatedLocationCount: det.Count,
		LocationCountSource:    det.SourceTags(),
		Confidence:             det.Confidence,
		CategoryConfidence:     catConfidence,
		Indicators:             model.Indicators{EntityKeywords: c.EntityKeywords, DBACount: c.DBACount},
		Website:                places.Website,
		HQState:                p.cfg.MultiLocation.HQState,
		IsQualified:            true,
	}
	if company != nil {
		if op.Website == "" && company.Domain != "" {
			op.Website = "https://" + company.Domain
		}
		if company.City != "" {
			op.HQCity = company.City
		}
		if company.State != "" {
			op.HQState = company.State
		}
	}
	return op
}

// manualCount returns the configured override for name. Config keys are
// lower-cased by the loader, so the lookup is case-insensitive.
func (p *Pipeline) manualCount(name string) *int {
	if n, ok := p.cfg.MultiLocation.ManualCounts[strings.ToLower(name)]; ok {
		return model.IntPtr(n)
	}
	return nil
}
