package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/config"
	"github.com/sells-group/lead-pipeline/internal/metrics"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/registry"
	"github.com/sells-group/lead-pipeline/internal/scorer"
	"github.com/sells-group/lead-pipeline/internal/store"
)

// LeadSource scrapes registry entities for one layer.
type LeadSource interface {
	Established(ctx context.Context, state registry.State) ([]model.RawEntity, error)
	NewBusiness(ctx context.Context, state registry.State, keywords []string, cutoff time.Time) ([]model.RawEntity, error)
}

// LeadRunResult summarizes one single-layer lead run.
type LeadRunResult struct {
	Layer      model.Layer        `json:"layer"`
	State      registry.State     `json:"state"`
	Scraped    int                `json:"scraped"`
	Duplicates int                `json:"duplicates"`
	Qualified  int                `json:"qualified"`
	Saved      int                `json:"saved"`
	Errors     []string           `json:"errors,omitempty"`
	Leads      []model.ScoredLead `json:"leads"`
}

// LeadRunner scrapes, dedups, scores and persists registry leads.
type LeadRunner struct {
	store   store.Store
	source  LeadSource
	scorer  *scorer.Scorer
	cfg     config.LeadsConfig
	metrics *metrics.Metrics
}

// NewLeadRunner creates a LeadRunner. m may be nil.
func NewLeadRunner(st store.Store, src LeadSource, sc *scorer.Scorer, cfg config.LeadsConfig, m *metrics.Metrics) *LeadRunner {
	return &LeadRunner{store: st, source: src, scorer: sc, cfg: cfg, metrics: m}
}

// Run executes one layer against one state's registry.
func (r *LeadRunner) Run(ctx context.Context, layer model.Layer, state registry.State) (*LeadRunResult, error) {
	if !layer.Valid() {
		return nil, eris.Errorf("leads: unknown layer %q", layer)
	}
	log := zap.L().With(zap.String("layer", string(layer)), zap.String("state", string(state)))

	names, err := r.store.ExistingLeadNames(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "leads: load existing names")
	}

	var entities []model.RawEntity
	switch layer {
	case model.LayerNew:
		now := time.Now
		if r.scorer.Now != nil {
			now = r.scorer.Now
		}
		cutoff := now().AddDate(0, 0, -r.cutoffDays())
		entities, err = r.source.NewBusiness(ctx, state, r.cfg.NewKeywords, cutoff)
	default:
		entities, err = r.source.Established(ctx, state)
	}
	// An unreachable registry degrades to whatever rows came back.
	var scrapeErrs []string
	if err != nil {
		err = eris.Wrapf(err, "leads: scrape %s %s", layer, state)
		log.Warn("leads: scrape failed, continuing with partial results",
			zap.Int("entities", len(entities)),
			zap.Error(err),
		)
		scrapeErrs = append(scrapeErrs, err.Error())
	}

	fresh := scorer.Dedup(entities, scorer.NameSet(names))
	qualified := r.scorer.Qualify(fresh, layer, state.LeadSource())

	res := &LeadRunResult{
		Layer:      layer,
		State:      state,
		Scraped:    len(entities),
		Duplicates: len(entities) - len(fresh),
		Qualified:  len(qualified),
		Errors:     scrapeErrs,
		Leads:      qualified,
	}
	r.metrics.AddQualified(string(layer), len(qualified))

	if len(qualified) > 0 {
		saved, err := r.store.SaveLeads(ctx, qualified)
		if err != nil {
			return res, eris.Wrap(err, "leads: save")
		}
		res.Saved = saved
	}

	log.Info("leads: run complete",
		zap.Int("scraped", res.Scraped),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("qualified", res.Qualified),
		zap.Int("saved", res.Saved),
	)
	return res, nil
}

func (r *LeadRunner) cutoffDays() int {
	if r.cfg.NewCutoffDays > 0 {
		return r.cfg.NewCutoffDays
	}
	return 548
}
