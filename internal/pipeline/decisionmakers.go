package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lead-pipeline/internal/cost"
	"github.com/sells-group/lead-pipeline/internal/enrich"
	"github.com/sells-group/lead-pipeline/internal/model"
)

// findDecisionMakers looks up contacts for every qualified operator with a
// derivable domain and upserts them by (company, email).
func (p *Pipeline) findDecisionMakers(ctx context.Context, rs *runState) (*model.PhaseResult, error) {
	ops, err := p.deps.Store.ListQualifiedOperators(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "decision makers: list operators")
	}

	type lookup struct {
		op     model.Operator
		domain string
		titles []string
	}
	var lookups []lookup
	for _, op := range ops {
		domain := enrich.DomainFromURL(op.Website)
		if domain == "" {
			continue
		}
		cat, _ := p.deps.Categories.Lookup(string(op.Category))
		lookups = append(lookups, lookup{op: op, domain: domain, titles: cat.DecisionMakerTitles})
	}

	results := make([][]model.DecisionMaker, len(lookups))
	g := new(errgroup.Group)
	for i, l := range lookups {
		g.Go(func() error {
			res, gateErr := GateVal(ctx, rs.gate, cost.ServiceHunter, func(ctx context.Context) (enrich.Result[[]model.DecisionMaker], error) {
				return p.deps.DecisionMakers.Find(ctx, l.domain, l.titles), nil
			})
			switch {
			case gateErr != nil:
				rs.errs.addf(StageDecisionMakers, "%s: %v", l.op.CompanyName, gateErr)
			case res.Outcome == enrich.OutcomeFailed:
				rs.errs.addf(StageDecisionMakers, "%s: %v", l.op.CompanyName, res.Err)
			case res.Found():
				results[i] = res.Value
			}
			return nil
		})
	}
	_ = g.Wait()

	saved := 0
	for i, dms := range results {
		for _, dm := range dms {
			if dm.Email == "" {
				continue
			}
			dm.CompanyID = lookups[i].op.ID
			if _, err := p.deps.Store.UpsertDecisionMaker(ctx, &dm); err != nil {
				rs.errs.addf(StageDecisionMakers, "upsert %s: %v", dm.Email, err)
				continue
			}
			saved++
		}
	}
	rs.hist.DecisionMakersFound = saved

	return &model.PhaseResult{
		Metadata: map[string]any{
			"operators":       len(ops),
			"with_domain":     len(lookups),
			"decision_makers": saved,
		},
	}, nil
}
