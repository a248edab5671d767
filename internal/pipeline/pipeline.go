// Package pipeline runs multi-location operator discovery, enrichment and
// CRM sync, and the single-layer registry lead runs.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/config"
	"github.com/sells-group/lead-pipeline/internal/cost"
	"github.com/sells-group/lead-pipeline/internal/crm"
	"github.com/sells-group/lead-pipeline/internal/enrich"
	"github.com/sells-group/lead-pipeline/internal/metrics"
	"github.com/sells-group/lead-pipeline/internal/model"
	"github.com/sells-group/lead-pipeline/internal/monitoring"
	"github.com/sells-group/lead-pipeline/internal/multilocation"
	"github.com/sells-group/lead-pipeline/internal/store"
	"github.com/sells-group/lead-pipeline/pkg/google"
	"github.com/sells-group/lead-pipeline/pkg/hunter"
)

// Stage names, in run order.
const (
	StageDiscovery       = "discovery"
	StageDecisionMakers  = "decision_makers"
	StageBonusEnrichment = "bonus_enrichment"
	StageCRMSync         = "crm_sync"
)

// CandidateSearcher finds multi-location candidates in the state registry.
type CandidateSearcher interface {
	SearchCandidates(ctx context.Context, keywords []string, limit int) ([]model.Candidate, []error)
}

// LocationCounter estimates a brand's location count.
type LocationCounter interface {
	CountLocationsForBrand(ctx context.Context, name, region string) google.BrandLocations
}

// cachedLocations is implemented by location counters that can answer from
// a cache without a paid call.
type cachedLocations interface {
	CachedLocations(ctx context.Context, name, region string) (google.BrandLocations, bool)
}

// CompanyLookup resolves a company's domain and headcount.
type CompanyLookup interface {
	CompanySearch(ctx context.Context, company string) (*hunter.Company, error)
}

// DecisionMakerFinder finds contacts at a domain.
type DecisionMakerFinder interface {
	Find(ctx context.Context, domain string, extraTitles []string) enrich.Result[[]model.DecisionMaker]
}

// POSDetector detects the POS system from an operator's website.
type POSDetector interface {
	DetectSite(ctx context.Context, website string) enrich.Result[enrich.POSMatch]
}

// ExpansionDetector scores growth signals for an operator.
type ExpansionDetector interface {
	DetectOperator(ctx context.Context, name string, extra enrich.ExpansionInputs, now time.Time) enrich.Result[enrich.Expansion]
}

// Deps are the collaborators of a Pipeline. Companies, CRM, Notifier,
// Alerter and Metrics are optional.
type Deps struct {
	Store          store.Store
	Registry       CandidateSearcher
	Locations      LocationCounter
	Companies      CompanyLookup
	DecisionMakers DecisionMakerFinder
	POS            POSDetector
	Expansion      ExpansionDetector
	CRM            crm.Target
	Categories     *config.CategoryTable
	Notifier       *monitoring.Notifier
	Alerter        *monitoring.Alerter
	Metrics        *metrics.Metrics
}

// Pipeline orchestrates one multi-location discovery run.
type Pipeline struct {
	cfg        *config.Config
	deps       Deps
	calc       *cost.Calculator
	detector   *multilocation.Detector
	classifier *multilocation.Classifier
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a Pipeline.
func New(cfg *config.Config, deps Deps) *Pipeline {
	resolver := multilocation.DefaultResolver()
	if cfg.MultiLocation.MinLocations > 0 {
		resolver.MinLocations = cfg.MultiLocation.MinLocations
	}
	if cfg.MultiLocation.MaxLocations > 0 {
		resolver.MaxLocations = cfg.MultiLocation.MaxLocations
	}
	if cfg.MultiLocation.MinConfirmationSources > 0 {
		resolver.MinSources = cfg.MultiLocation.MinConfirmationSources
	}

	return &Pipeline{
		cfg:        cfg,
		deps:       deps,
		calc:       cost.NewCalculator(ratesFromConfig(cfg.Pricing)),
		detector:   multilocation.NewDetector(resolver),
		classifier: multilocation.NewClassifier(deps.Categories),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func ratesFromConfig(p config.PricingConfig) cost.Rates {
	return cost.Rates{
		PlacesPerCall:      p.PlacesPerCall,
		HunterPerSearch:    p.HunterPerSearch,
		SalesforcePerCall:  p.SalesforcePerCall,
		RegistryPerFetch:   p.RegistryPerFetch,
		BaseRunOverheadUSD: p.BaseRunOverheadUSD,
	}
}

// errorList collects per-item and per-stage failures for the run record.
type errorList struct {
	mu    sync.Mutex
	items []string
}

func (l *errorList) add(stage string, err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	l.items = append(l.items, fmt.Sprintf("%s: %v", stage, err))
	l.mu.Unlock()
}

func (l *errorList) addf(stage, format string, args ...any) {
	l.add(stage, fmt.Errorf(format, args...))
}

func (l *errorList) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.items...)
}

// runState carries counters between stages of one run.
type runState struct {
	gate   *Gate
	meter  *cost.Meter
	errs   *errorList
	log    *zap.Logger
	hist   *model.RunHistory
	phases []model.PhaseResult

	totalLocations int
}

// Run executes every stage in order and records a RunHistory. Stage
// failures are logged and recorded, never returned; the error is non-nil
// only when the run history itself could not be written.
func (p *Pipeline) Run(ctx context.Context) (*model.RunHistory, error) {
	start := p.now()
	log := zap.L().With(zap.String("component", "pipeline"))
	log.Info("pipeline: starting run")

	meter := cost.NewMeter(p.calc, p.cfg.Run.CostCapUSD)
	delay := DefaultGateDelay
	if p.cfg.Run.DelayBetweenRequestsMs >= 0 {
		delay = time.Duration(p.cfg.Run.DelayBetweenRequestsMs) * time.Millisecond
	}
	gate := NewGate(p.cfg.Run.Concurrency, delay,
		WithMeter(meter),
		WithGateMetrics(p.deps.Metrics),
		WithCallTimeout(time.Duration(p.cfg.Run.CallTimeoutSecs)*time.Second),
	)
	gate.sleep = p.sleep

	rs := &runState{
		gate:  gate,
		meter: meter,
		errs:  &errorList{},
		log:   log,
		hist: &model.RunHistory{
			RunDate:             start.UTC().Format("2006-01-02"),
			CategoriesBreakdown: map[string]int{},
		},
	}

	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) *model.PhaseResult {
		phaseStart := time.Now()
		phaseResult, fnErr := fn()
		duration := time.Since(phaseStart).Milliseconds()

		if phaseResult == nil {
			phaseResult = &model.PhaseResult{Name: name}
		}
		phaseResult.Name = name
		phaseResult.Duration = duration

		switch {
		case fnErr != nil:
			phaseResult.Status = model.PhaseStatusFailed
			phaseResult.Error = fnErr.Error()
			rs.errs.add(name, fnErr)
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		case phaseResult.Status == model.PhaseStatusSkipped:
			log.Info("pipeline: phase skipped", zap.String("phase", name))
		default:
			phaseResult.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", duration),
			)
		}

		p.deps.Metrics.ObserveStage(name, string(phaseResult.Status), time.Duration(duration)*time.Millisecond)
		rs.phases = append(rs.phases, *phaseResult)
		return phaseResult
	}

	trackPhase(StageDiscovery, func() (*model.PhaseResult, error) {
		return p.discover(ctx, rs)
	})
	trackPhase(StageDecisionMakers, func() (*model.PhaseResult, error) {
		return p.findDecisionMakers(ctx, rs)
	})
	trackPhase(StageBonusEnrichment, func() (*model.PhaseResult, error) {
		return p.enrichOperators(ctx, rs)
	})
	trackPhase(StageCRMSync, func() (*model.PhaseResult, error) {
		return p.syncCRM(ctx, rs)
	})

	return p.finish(ctx, rs, start)
}

// finish writes the run history and sends the notification and alerts.
func (p *Pipeline) finish(ctx context.Context, rs *runState, start time.Time) (*model.RunHistory, error) {
	h := rs.hist
	if h.OperatorsFound > 0 {
		avg := float64(rs.totalLocations) / float64(h.OperatorsFound)
		h.AvgLocationsPerOperator = math.Round(avg*10) / 10
	}
	h.CostEstimateUSD = math.Round(rs.meter.Total()*100) / 100
	h.DurationSeconds = int(p.now().Sub(start).Seconds())
	h.Phases = rs.phases
	h.Errors = rs.errs.list()
	h.CreatedAt = p.now().UTC()

	p.deps.Metrics.RecordRun(h.CostEstimateUSD, len(h.Errors))

	var insertErr error
	if err := p.deps.Store.InsertRunHistory(ctx, h); err != nil {
		insertErr = eris.Wrap(err, "pipeline: insert run history")
		rs.log.Error("pipeline: failed to record run history", zap.Error(err))
	}

	rs.log.Info("pipeline: run complete",
		zap.String("run_id", h.ID),
		zap.Int("operators", h.OperatorsFound),
		zap.Int("decision_makers", h.DecisionMakersFound),
		zap.Int("synced", h.Synced),
		zap.Int("errors", len(h.Errors)),
		zap.Float64("cost_usd", h.CostEstimateUSD),
	)

	if err := p.deps.Notifier.Notify(ctx, h); err != nil {
		rs.log.Warn("pipeline: summary notification failed", zap.Error(err))
	}
	if p.deps.Alerter != nil {
		if alerts := p.deps.Alerter.Evaluate(h); len(alerts) > 0 {
			p.deps.Alerter.SendAlerts(ctx, alerts)
		}
	}
	return h, insertErr
}
