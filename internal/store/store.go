package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// DefaultOutreachLimit caps ListReadyForOutreach when no limit is given.
const DefaultOutreachLimit = 100

// Store defines the persistence interface for operators, contacts, leads,
// and run history.
type Store interface {
	// Operators
	UpsertOperator(ctx context.Context, op *model.Operator) (string, error)
	ListQualifiedOperators(ctx context.Context) ([]model.Operator, error)
	PatchOperator(ctx context.Context, id string, patch model.OperatorPatch) error

	// Decision makers
	UpsertDecisionMaker(ctx context.Context, dm *model.DecisionMaker) (string, error)
	ListReadyForOutreach(ctx context.Context, limit int) ([]model.OutreachContact, error)
	MarkSynced(ctx context.Context, decisionMakerID, crmID string) error

	// Run history
	InsertRunHistory(ctx context.Context, run *model.RunHistory) error
	ListRunHistory(ctx context.Context, filter model.RunFilter) ([]model.RunHistory, error)
	GetRunHistory(ctx context.Context, id string) (*model.RunHistory, error)

	// Leads
	SaveLeads(ctx context.Context, leads []model.ScoredLead) (int, error)
	ExistingLeadNames(ctx context.Context) ([]string, error)
	ListLeads(ctx context.Context, filter model.LeadFilter) ([]model.ScoredLead, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// operatorUpdateSet lists the columns overwritten when an operator is rediscovered.
// Enrichment columns are owned by PatchOperator.
const operatorUpdateSet = `
	company_name = excluded.company_name,
	category = excluded.category,
	estimated_location_count = excluded.estimated_location_count,
	location_count_source = excluded.location_count_source,
	confidence = excluded.confidence,
	category_confidence = excluded.category_confidence,
	indicators = excluded.indicators,
	website = CASE WHEN excluded.website = '' THEN operators.website ELSE excluded.website END,
	hq_city = CASE WHEN excluded.hq_city = '' THEN operators.hq_city ELSE excluded.hq_city END,
	hq_state = CASE WHEN excluded.hq_state = '' THEN operators.hq_state ELSE excluded.hq_state END,
	is_qualified = excluded.is_qualified,
	updated_at = excluded.updated_at`

const decisionMakerUpdateSet = `
	full_name = excluded.full_name,
	title = excluded.title,
	phone = CASE WHEN excluded.phone = '' THEN decision_makers.phone ELSE excluded.phone END,
	linkedin_url = CASE WHEN excluded.linkedin_url = '' THEN decision_makers.linkedin_url ELSE excluded.linkedin_url END,
	data_sources = excluded.data_sources,
	email_confidence = excluded.email_confidence,
	is_verified = excluded.is_verified,
	updated_at = excluded.updated_at`

const operatorColumns = `id, company_name, COALESCE(document_number, ''), category,
	estimated_location_count, location_count_source, confidence, category_confidence,
	indicators, website, hq_city, hq_state, pos_system, pos_confidence,
	expansion_signals, expansion_score, is_qualified, created_at, updated_at`

const outreachQuery = `SELECT dm.id, dm.full_name, dm.title, dm.email, dm.phone, dm.linkedin_url,
	o.company_name, o.category, o.estimated_location_count, o.pos_system, o.expansion_score,
	o.hq_city, o.hq_state
FROM decision_makers dm
JOIN operators o ON o.id = dm.company_id
WHERE dm.synced_to_crm = FALSE AND o.is_qualified = TRUE
ORDER BY o.estimated_location_count DESC, dm.created_at
LIMIT `

const runHistoryColumns = `id, run_date, operators_found, decision_makers_found,
	categories_breakdown, avg_locations_per_operator, expansion_signals_detected,
	synced, duplicates, errors, cost_estimate_usd, duration_seconds, phases, created_at`

const leadColumns = `entity_name, entity_id, status, filing_date, physical_address, county,
	type, dba_count, locations, source, layer, score, tech_fit, contact, created_at`

type scannable interface {
	Scan(dest ...any) error
}

// nullable maps the empty string to NULL so unique columns only collide on
// real values.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func outreachLimit(limit int) int {
	if limit <= 0 {
		return DefaultOutreachLimit
	}
	return limit
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

func marshalJSON(v any, what string) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrapf(err, "store: marshal %s", what)
	}
	return b, nil
}

func unmarshalJSON(b []byte, v any, what string) error {
	if len(b) == 0 {
		return nil
	}
	return eris.Wrapf(json.Unmarshal(b, v), "store: unmarshal %s", what)
}

// scanOperator reads a row selected with operatorColumns.
func scanOperator(row scannable) (*model.Operator, error) {
	var (
		op                              model.Operator
		category, conf, catConf, posCnf string
		indicators, signals             []byte
	)
	err := row.Scan(&op.ID, &op.CompanyName, &op.DocumentNumber, &category,
		&op.EstimatedLocationCount, &op.LocationCountSource, &conf, &catConf,
		&indicators, &op.Website, &op.HQCity, &op.HQState, &op.POSSystem, &posCnf,
		&signals, &op.ExpansionScore, &op.IsQualified, &op.CreatedAt, &op.UpdatedAt)
	if err != nil {
		return nil, err
	}
	op.Category = model.Category(category)
	op.Confidence = model.Confidence(conf)
	op.CategoryConfidence = model.Confidence(catConf)
	op.POSConfidence = model.Confidence(posCnf)
	if err := unmarshalJSON(indicators, &op.Indicators, "indicators"); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(signals, &op.ExpansionSignals, "expansion signals"); err != nil {
		return nil, err
	}
	return &op, nil
}

func scanOutreach(row scannable) (model.OutreachContact, error) {
	var (
		c        model.OutreachContact
		category string
	)
	err := row.Scan(&c.DecisionMakerID, &c.FullName, &c.Title, &c.Email, &c.Phone, &c.LinkedInURL,
		&c.CompanyName, &category, &c.EstimatedLocationCount, &c.POSSystem, &c.ExpansionScore,
		&c.HQCity, &c.HQState)
	c.Category = model.Category(category)
	return c, err
}

// runHistoryJSON holds the encoded JSON columns of a run history row.
type runHistoryJSON struct {
	breakdown, errors, phases []byte
}

func encodeRunHistory(run *model.RunHistory) (runHistoryJSON, error) {
	var (
		enc runHistoryJSON
		err error
	)
	breakdown := run.CategoriesBreakdown
	if breakdown == nil {
		breakdown = map[string]int{}
	}
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	if enc.breakdown, err = marshalJSON(breakdown, "categories breakdown"); err != nil {
		return enc, err
	}
	if enc.errors, err = marshalJSON(errs, "run errors"); err != nil {
		return enc, err
	}
	if enc.phases, err = marshalJSON(run.Phases, "phases"); err != nil {
		return enc, err
	}
	return enc, nil
}

func scanRunHistory(row scannable) (*model.RunHistory, error) {
	var (
		r   model.RunHistory
		enc runHistoryJSON
	)
	err := row.Scan(&r.ID, &r.RunDate, &r.OperatorsFound, &r.DecisionMakersFound,
		&enc.breakdown, &r.AvgLocationsPerOperator, &r.ExpansionSignalsDetected,
		&r.Synced, &r.Duplicates, &enc.errors, &r.CostEstimateUSD, &r.DurationSeconds,
		&enc.phases, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := unmarshalJSON(enc.breakdown, &r.CategoriesBreakdown, "categories breakdown"); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(enc.errors, &r.Errors, "run errors"); err != nil {
		return nil, err
	}
	if err := unmarshalJSON(enc.phases, &r.Phases, "phases"); err != nil {
		return nil, err
	}
	return &r, nil
}

func optInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nonNilStrings(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func nonNilSignals(v []model.ExpansionSignal) []model.ExpansionSignal {
	if v == nil {
		return []model.ExpansionSignal{}
	}
	return v
}
