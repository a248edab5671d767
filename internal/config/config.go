package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store" mapstructure:"store"`
	Redis         RedisConfig         `yaml:"redis" mapstructure:"redis"`
	Registry      RegistryConfig      `yaml:"registry" mapstructure:"registry"`
	Google        GoogleConfig        `yaml:"google" mapstructure:"google"`
	Hunter        HunterConfig        `yaml:"hunter" mapstructure:"hunter"`
	Salesforce    SalesforceConfig    `yaml:"salesforce" mapstructure:"salesforce"`
	MultiLocation MultiLocationConfig `yaml:"multi_location" mapstructure:"multi_location"`
	Leads         LeadsConfig         `yaml:"leads" mapstructure:"leads"`
	Run           RunConfig           `yaml:"run" mapstructure:"run"`
	Pricing       PricingConfig       `yaml:"pricing" mapstructure:"pricing"`
	Monitoring    MonitoringConfig    `yaml:"monitoring" mapstructure:"monitoring"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the optional location-count cache.
type RedisConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	TTLDays int    `yaml:"ttl_days" mapstructure:"ttl_days"`
}

// RegistryConfig configures the state registry scrapers.
type RegistryConfig struct {
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts     int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	RetryDelayMs    int    `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	FLBaseURL       string `yaml:"fl_base_url" mapstructure:"fl_base_url"`
	GABaseURL       string `yaml:"ga_base_url" mapstructure:"ga_base_url"`
	ALBaseURL       string `yaml:"al_base_url" mapstructure:"al_base_url"`
	MaxCandidates   int    `yaml:"max_candidates" mapstructure:"max_candidates"`
	EstablishedFrom string `yaml:"established_from" mapstructure:"established_from"`
	DBALookup       bool   `yaml:"dba_lookup" mapstructure:"dba_lookup"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Region  string `yaml:"region" mapstructure:"region"`
}

// HunterConfig holds Hunter.io API settings.
type HunterConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID   string  `yaml:"client_id" mapstructure:"client_id"`
	Username   string  `yaml:"username" mapstructure:"username"`
	KeyPath    string  `yaml:"key_path" mapstructure:"key_path"`
	LoginURL   string  `yaml:"login_url" mapstructure:"login_url"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	LeadSource string  `yaml:"lead_source" mapstructure:"lead_source"`
}

// MultiLocationConfig configures operator discovery and qualification.
type MultiLocationConfig struct {
	CategoriesPath         string         `yaml:"categories_path" mapstructure:"categories_path"`
	MinLocations           int            `yaml:"min_locations" mapstructure:"min_locations"`
	MaxLocations           int            `yaml:"max_locations" mapstructure:"max_locations"`
	MinConfirmationSources int            `yaml:"min_confirmation_sources" mapstructure:"min_confirmation_sources"`
	HighPriorityMax        int            `yaml:"high_priority_max" mapstructure:"high_priority_max"`
	HeadcountLookup        bool           `yaml:"headcount_lookup" mapstructure:"headcount_lookup"`
	ManualCounts           map[string]int `yaml:"manual_counts" mapstructure:"manual_counts"`
	HQState                string         `yaml:"hq_state" mapstructure:"hq_state"`
}

// LeadsConfig configures the single-layer lead runs.
type LeadsConfig struct {
	EstThreshold   int      `yaml:"est_threshold" mapstructure:"est_threshold"`
	NewThreshold   int      `yaml:"new_threshold" mapstructure:"new_threshold"`
	NewKeywords    []string `yaml:"new_keywords" mapstructure:"new_keywords"`
	NewCutoffDays  int      `yaml:"new_cutoff_days" mapstructure:"new_cutoff_days"`
	EstSearchTerms []string `yaml:"est_search_terms" mapstructure:"est_search_terms"`
}

// RunConfig configures throttling and budgets for a pipeline run.
type RunConfig struct {
	Concurrency             int     `yaml:"concurrency" mapstructure:"concurrency"`
	DelayBetweenRequestsMs  int     `yaml:"delay_between_requests_ms" mapstructure:"delay_between_requests_ms"`
	PipelineTimeoutMinutes  int     `yaml:"pipeline_timeout_minutes" mapstructure:"pipeline_timeout_minutes"`
	CostAlertThresholdUSD   float64 `yaml:"cost_alert_threshold_usd" mapstructure:"cost_alert_threshold_usd"`
	CostCapUSD              float64 `yaml:"cost_cap_usd" mapstructure:"cost_cap_usd"`
	SyncBatchSize           int     `yaml:"sync_batch_size" mapstructure:"sync_batch_size"`
	CallTimeoutSecs         int     `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	ExpansionLookbackDays   int     `yaml:"expansion_lookback_days" mapstructure:"expansion_lookback_days"`
	DecisionMakerSearchSize int     `yaml:"decision_maker_search_size" mapstructure:"decision_maker_search_size"`
}

// PricingConfig holds per-call pricing for paid APIs (USD).
type PricingConfig struct {
	PlacesPerCall      float64 `yaml:"places_per_call" mapstructure:"places_per_call"`
	HunterPerSearch    float64 `yaml:"hunter_per_search" mapstructure:"hunter_per_search"`
	SalesforcePerCall  float64 `yaml:"salesforce_per_call" mapstructure:"salesforce_per_call"`
	RegistryPerFetch   float64 `yaml:"registry_per_fetch" mapstructure:"registry_per_fetch"`
	BaseRunOverheadUSD float64 `yaml:"base_run_overhead_usd" mapstructure:"base_run_overhead_usd"`
}

// MonitoringConfig configures run alerts and the summary notification.
type MonitoringConfig struct {
	WebhookURL       string `yaml:"webhook_url" mapstructure:"webhook_url"`
	NotifyWebhookURL string `yaml:"notify_webhook_url" mapstructure:"notify_webhook_url"`
	MaxErrors        int    `yaml:"max_errors" mapstructure:"max_errors"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// envOnlyKeys are settings that usually come from the environment and have
// no default.
var envOnlyKeys = []string{
	"store.database_url",
	"redis.url",
	"google.key",
	"hunter.key",
	"salesforce.client_id",
	"salesforce.username",
	"salesforce.key_path",
	"monitoring.webhook_url",
	"monitoring.notify_webhook_url",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are invisible to AutomaticEnv during Unmarshal.
	for _, key := range envOnlyKeys {
		_ = v.BindEnv(key)
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("redis.ttl_days", 7)
	v.SetDefault("registry.user_agent", "Mozilla/5.0 (compatible; SunbizAgent/1.0)")
	v.SetDefault("registry.timeout_secs", 25)
	v.SetDefault("registry.max_attempts", 3)
	v.SetDefault("registry.retry_delay_ms", 2000)
	v.SetDefault("registry.fl_base_url", "https://search.sunbiz.org/Inquiry/CorporationSearch/SearchResults")
	v.SetDefault("registry.ga_base_url", "https://ecorp.sos.ga.gov/BusinessSearch")
	v.SetDefault("registry.al_base_url", "https://arc-sos.state.al.us/cgi/corpname.mbr/output")
	v.SetDefault("registry.max_candidates", 50)
	v.SetDefault("registry.established_from", "2020-01-01")
	v.SetDefault("registry.dba_lookup", true)
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.region", "FL")
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("hunter.rate_limit", 10)
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.rate_limit", 5)
	v.SetDefault("salesforce.lead_source", "Multi-Location Pipeline")
	v.SetDefault("multi_location.categories_path", "config/categories.json")
	v.SetDefault("multi_location.min_locations", 10)
	v.SetDefault("multi_location.max_locations", 200)
	v.SetDefault("multi_location.min_confirmation_sources", 2)
	v.SetDefault("multi_location.high_priority_max", 5)
	v.SetDefault("multi_location.headcount_lookup", true)
	v.SetDefault("multi_location.hq_state", "FL")
	v.SetDefault("leads.est_threshold", 55)
	v.SetDefault("leads.new_threshold", 50)
	v.SetDefault("leads.new_keywords", []string{"tavern", "lodge", "eatery", "lounge", "bistro", "inn", "bar", "grill"})
	v.SetDefault("leads.new_cutoff_days", 548)
	v.SetDefault("leads.est_search_terms", []string{"restaurant", "group", "holdings", "concepts"})
	v.SetDefault("run.concurrency", 3)
	v.SetDefault("run.delay_between_requests_ms", 1500)
	v.SetDefault("run.pipeline_timeout_minutes", 120)
	v.SetDefault("run.cost_alert_threshold_usd", 75.0)
	v.SetDefault("run.cost_cap_usd", 100.0)
	v.SetDefault("run.sync_batch_size", 100)
	v.SetDefault("run.call_timeout_secs", 30)
	v.SetDefault("run.expansion_lookback_days", 90)
	v.SetDefault("run.decision_maker_search_size", 10)
	v.SetDefault("pricing.places_per_call", 0.032)
	v.SetDefault("pricing.hunter_per_search", 0.049)
	v.SetDefault("pricing.salesforce_per_call", 0)
	v.SetDefault("pricing.registry_per_fetch", 0)
	v.SetDefault("pricing.base_run_overhead_usd", 0.50)
	v.SetDefault("monitoring.max_errors", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by the given command mode are
// present. Missing store or CRM credentials are fatal before any work starts.
func (c *Config) Validate(mode string) error {
	var errs []string

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for postgres")
			}
		case "sqlite":
		default:
			errs = append(errs, "store.driver must be postgres or sqlite")
		}
	}

	requireRun := func() {
		if c.Run.Concurrency < 1 || c.Run.Concurrency > 20 {
			errs = append(errs, "run.concurrency must be between 1 and 20")
		}
		if c.Run.DelayBetweenRequestsMs < 0 {
			errs = append(errs, "run.delay_between_requests_ms must be >= 0")
		}
		if c.MultiLocation.MinLocations < 1 {
			errs = append(errs, "multi_location.min_locations must be > 0")
		}
		if c.MultiLocation.MaxLocations < c.MultiLocation.MinLocations {
			errs = append(errs, "multi_location.max_locations must be >= min_locations")
		}
	}

	requireCRM := func() {
		if c.Salesforce.ClientID == "" {
			errs = append(errs, "salesforce.client_id is required")
		}
		if c.Salesforce.Username == "" {
			errs = append(errs, "salesforce.username is required")
		}
		if c.Salesforce.KeyPath == "" {
			errs = append(errs, "salesforce.key_path is required")
		}
	}

	switch mode {
	case "store":
		requireStore()
	case "leads":
		requireStore()
	case "pipeline":
		requireStore()
		requireRun()
		requireCRM()
	case "serve":
		requireStore()
		requireRun()
		requireCRM()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
