package main

import (
	"context"
	"os"
	"time"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/cache"
	"github.com/sells-group/lead-pipeline/internal/config"
	"github.com/sells-group/lead-pipeline/internal/crm"
	"github.com/sells-group/lead-pipeline/internal/db"
	"github.com/sells-group/lead-pipeline/internal/enrich"
	"github.com/sells-group/lead-pipeline/internal/fetcher"
	"github.com/sells-group/lead-pipeline/internal/metrics"
	"github.com/sells-group/lead-pipeline/internal/monitoring"
	"github.com/sells-group/lead-pipeline/internal/pipeline"
	"github.com/sells-group/lead-pipeline/internal/registry"
	"github.com/sells-group/lead-pipeline/internal/resilience"
	"github.com/sells-group/lead-pipeline/internal/scorer"
	"github.com/sells-group/lead-pipeline/internal/store"
	"github.com/sells-group/lead-pipeline/pkg/google"
	"github.com/sells-group/lead-pipeline/pkg/hunter"
	sfpkg "github.com/sells-group/lead-pipeline/pkg/salesforce"
)

// pipelineEnv holds the store, clients and pipeline needed by the run and
// serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
	Breakers *resilience.ServiceBreakers
	Metrics  *metrics.Metrics
	Redis    *redis.Client // may be nil
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Redis != nil {
		_ = pe.Redis.Close()
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "leads.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, db.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens the configured store and applies migrations.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initSalesforce() (sfpkg.Client, error) {
	if cfg.Salesforce.ClientID == "" {
		return nil, eris.New("salesforce client ID is required (LEADS_SALESFORCE_CLIENT_ID)")
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf, sfpkg.WithRateLimit(cfg.Salesforce.RateLimit)), nil
}

// newFetcher builds the registry fetcher from config, reporting fetch
// latency to m.
func newFetcher(m *metrics.Metrics) *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   cfg.Registry.UserAgent,
		Timeout:     time.Duration(cfg.Registry.TimeoutSecs) * time.Second,
		MaxAttempts: cfg.Registry.MaxAttempts,
		RetryDelay:  time.Duration(cfg.Registry.RetryDelayMs) * time.Millisecond,
		Observe:     m.ObserveFetch,
	})
}

// newScraper builds the registry scraper over f.
func newScraper(f fetcher.Fetcher) *registry.Scraper {
	opts := registry.Options{
		Sources:        registry.DefaultSources(cfg.Registry.FLBaseURL, cfg.Registry.GABaseURL, cfg.Registry.ALBaseURL),
		EstSearchTerms: cfg.Leads.EstSearchTerms,
		DBALookup:      cfg.Registry.DBALookup,
	}
	if cfg.Registry.EstablishedFrom != "" {
		from, err := time.Parse("2006-01-02", cfg.Registry.EstablishedFrom)
		if err != nil {
			zap.L().Warn("invalid registry.established_from, using default",
				zap.String("value", cfg.Registry.EstablishedFrom),
				zap.Error(err),
			)
		} else {
			opts.EstablishedFrom = from
		}
	}
	return registry.NewScraper(f, opts)
}

// newScorer builds a scorer with the configured thresholds.
func newScorer() (*scorer.Scorer, error) {
	th := scorer.Thresholds{Established: cfg.Leads.EstThreshold, New: cfg.Leads.NewThreshold}
	if err := th.Validate(); err != nil {
		return nil, err
	}
	return scorer.New(th), nil
}

// initPipeline sets up the store, all API clients and the Pipeline. m may
// be nil. Callers should defer env.Close().
func initPipeline(ctx context.Context, m *metrics.Metrics) (*pipelineEnv, error) {
	if err := cfg.Validate("pipeline"); err != nil {
		return nil, err
	}

	categories, err := config.LoadCategories(cfg.MultiLocation.CategoriesPath)
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &pipelineEnv{Store: st, Metrics: m}

	sfClient, err := initSalesforce()
	if err != nil {
		env.Close()
		return nil, err
	}

	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.ShouldTrip = resilience.IsTransient
	env.Breakers = resilience.NewServiceBreakers(breakerCfg)

	counterOpts := []google.CounterOption{google.WithBreaker(env.Breakers.Get("google_places"))}
	rdb, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		zap.L().Warn("redis unavailable, location cache disabled", zap.Error(err))
	} else if rdb != nil {
		env.Redis = rdb
		ttl := time.Duration(cfg.Redis.TTLDays) * 24 * time.Hour
		counterOpts = append(counterOpts, google.WithCache(cache.NewLocationCache(rdb, ttl, m)))
		zap.L().Info("location cache enabled")
	}

	if cfg.Google.Key == "" {
		zap.L().Warn("LEADS_GOOGLE_KEY not set, location counts will be empty")
	}
	placesClient := google.NewClient(cfg.Google.Key, google.WithBaseURL(cfg.Google.BaseURL))
	locations := google.NewLocationCounter(placesClient, counterOpts...)

	var (
		hunterClient hunter.Client
		companies    pipeline.CompanyLookup
	)
	if cfg.Hunter.Key != "" {
		hunterClient = hunter.NewClient(cfg.Hunter.Key,
			hunter.WithBaseURL(cfg.Hunter.BaseURL),
			hunter.WithRateLimit(cfg.Hunter.RateLimit),
		)
		companies = hunterClient
	} else {
		zap.L().Warn("LEADS_HUNTER_KEY not set, decision-maker and headcount lookups disabled")
	}

	f := newFetcher(m)
	scraper := newScraper(f)
	lookback := time.Duration(cfg.Run.ExpansionLookbackDays) * 24 * time.Hour

	env.Pipeline = pipeline.New(cfg, pipeline.Deps{
		Store:          st,
		Registry:       scraper,
		Locations:      locations,
		Companies:      companies,
		DecisionMakers: enrich.NewDecisionMakerFinder(hunterClient, cfg.Run.DecisionMakerSearchSize),
		POS:            enrich.NewPOSDetector(f),
		Expansion:      enrich.NewExpansionDetector(scraper, lookback),
		CRM:            crm.NewSalesforceTarget(sfClient, cfg.Salesforce.LeadSource),
		Categories:     categories,
		Notifier:       monitoring.NewNotifier(cfg.Monitoring.NotifyWebhookURL),
		Alerter:        monitoring.NewAlerter(cfg.Monitoring.WebhookURL, monitoring.ThresholdsFromConfig(cfg.Run, cfg.Monitoring)),
		Metrics:        m,
	})

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Int("categories", len(categories.Enabled())),
	)
	return env, nil
}

// newMetrics registers the collectors with the default registry.
func newMetrics() *metrics.Metrics {
	return metrics.New(prometheus.DefaultRegisterer)
}
