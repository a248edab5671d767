package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/db"
	"github.com/sells-group/lead-pipeline/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects a pgx pool and wraps it in a PostgresStore.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller owns its lifecycle.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS operators (
	id                       TEXT PRIMARY KEY,
	company_name             TEXT NOT NULL,
	document_number          TEXT UNIQUE,
	category                 TEXT NOT NULL DEFAULT '',
	estimated_location_count INTEGER NOT NULL DEFAULT 0,
	location_count_source    TEXT NOT NULL DEFAULT '',
	confidence               TEXT NOT NULL DEFAULT 'low',
	category_confidence      TEXT NOT NULL DEFAULT '',
	indicators               JSONB NOT NULL DEFAULT '{}',
	website                  TEXT NOT NULL DEFAULT '',
	hq_city                  TEXT NOT NULL DEFAULT '',
	hq_state                 TEXT NOT NULL DEFAULT '',
	pos_system               TEXT NOT NULL DEFAULT '',
	pos_confidence           TEXT NOT NULL DEFAULT '',
	expansion_signals        JSONB NOT NULL DEFAULT '[]',
	expansion_score          INTEGER NOT NULL DEFAULT 0,
	is_qualified             BOOLEAN NOT NULL DEFAULT FALSE,
	created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_operators_qualified ON operators(is_qualified, estimated_location_count DESC);
CREATE INDEX IF NOT EXISTS idx_operators_category ON operators(category);

CREATE TABLE IF NOT EXISTS decision_makers (
	id               TEXT PRIMARY KEY,
	company_id       TEXT NOT NULL REFERENCES operators(id),
	full_name        TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL,
	phone            TEXT NOT NULL DEFAULT '',
	linkedin_url     TEXT NOT NULL DEFAULT '',
	data_sources     JSONB NOT NULL DEFAULT '[]',
	email_confidence TEXT NOT NULL DEFAULT '',
	is_verified      BOOLEAN NOT NULL DEFAULT FALSE,
	synced_to_crm    BOOLEAN NOT NULL DEFAULT FALSE,
	crm_contact_id   TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (company_id, email)
);

CREATE INDEX IF NOT EXISTS idx_decision_makers_unsynced ON decision_makers(synced_to_crm) WHERE synced_to_crm = FALSE;

CREATE TABLE IF NOT EXISTS run_history (
	id                         TEXT PRIMARY KEY,
	run_date                   TEXT NOT NULL,
	operators_found            INTEGER NOT NULL DEFAULT 0,
	decision_makers_found      INTEGER NOT NULL DEFAULT 0,
	categories_breakdown       JSONB NOT NULL DEFAULT '{}',
	avg_locations_per_operator DOUBLE PRECISION NOT NULL DEFAULT 0,
	expansion_signals_detected INTEGER NOT NULL DEFAULT 0,
	synced                     INTEGER NOT NULL DEFAULT 0,
	duplicates                 INTEGER NOT NULL DEFAULT 0,
	errors                     JSONB NOT NULL DEFAULT '[]',
	cost_estimate_usd          DOUBLE PRECISION NOT NULL DEFAULT 0,
	duration_seconds           INTEGER NOT NULL DEFAULT 0,
	phases                     JSONB,
	created_at                 TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_run_history_created_at ON run_history(created_at DESC);

CREATE TABLE IF NOT EXISTS leads (
	id               TEXT PRIMARY KEY,
	entity_name      TEXT NOT NULL,
	entity_id        TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT '',
	filing_date      TEXT NOT NULL DEFAULT '',
	physical_address TEXT NOT NULL DEFAULT '',
	county           TEXT NOT NULL DEFAULT '',
	type             TEXT NOT NULL DEFAULT '',
	dba_count        INTEGER,
	locations        INTEGER,
	source           TEXT NOT NULL,
	layer            TEXT NOT NULL,
	score            INTEGER NOT NULL,
	tech_fit         TEXT NOT NULL DEFAULT '',
	contact          TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (entity_name, source)
);

CREATE INDEX IF NOT EXISTS idx_leads_layer_score ON leads(layer, score DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// --- Operators ---

func (s *PostgresStore) UpsertOperator(ctx context.Context, op *model.Operator) (string, error) {
	indicators, err := marshalJSON(op.Indicators, "indicators")
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()

	var id string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO operators (id, company_name, document_number, category, estimated_location_count,
			location_count_source, confidence, category_confidence, indicators, website, hq_city,
			hq_state, is_qualified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		ON CONFLICT (document_number) DO UPDATE SET`+operatorUpdateSet+`
		RETURNING id`,
		uuid.New().String(), op.CompanyName, nullable(op.DocumentNumber), string(op.Category),
		op.EstimatedLocationCount, op.LocationCountSource, string(op.Confidence),
		string(op.CategoryConfidence), indicators, op.Website, op.HQCity, op.HQState,
		op.IsQualified, now,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: upsert operator %s", op.CompanyName)
	}
	op.ID = id
	return id, nil
}

func (s *PostgresStore) ListQualifiedOperators(ctx context.Context) ([]model.Operator, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+operatorColumns+` FROM operators
		WHERE is_qualified = TRUE ORDER BY estimated_location_count DESC, company_name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list qualified operators")
	}
	defer rows.Close()

	var ops []model.Operator
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan operator")
		}
		ops = append(ops, *op)
	}
	return ops, eris.Wrap(rows.Err(), "postgres: list qualified operators iterate")
}

func (s *PostgresStore) PatchOperator(ctx context.Context, id string, patch model.OperatorPatch) error {
	signals, err := marshalJSON(nonNilSignals(patch.ExpansionSignals), "expansion signals")
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE operators
		SET pos_system = $1, pos_confidence = $2, expansion_signals = $3, expansion_score = $4, updated_at = $5
		WHERE id = $6`,
		patch.POSSystem, string(patch.POSConfidence), signals, patch.ExpansionScore, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: patch operator %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: patch operator %s", id)
	}
	return nil
}

// --- Decision makers ---

func (s *PostgresStore) UpsertDecisionMaker(ctx context.Context, dm *model.DecisionMaker) (string, error) {
	if dm.Email == "" {
		return "", eris.New("postgres: decision maker email is required")
	}
	sources, err := marshalJSON(nonNilStrings(dm.DataSources), "data sources")
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()

	var id string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO decision_makers (id, company_id, full_name, title, email, phone, linkedin_url,
			data_sources, email_confidence, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (company_id, email) DO UPDATE SET`+decisionMakerUpdateSet+`
		RETURNING id`,
		uuid.New().String(), dm.CompanyID, dm.FullName, dm.Title, dm.Email, dm.Phone,
		dm.LinkedInURL, sources, string(dm.EmailConfidence), dm.IsVerified, now,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "postgres: upsert decision maker %s", dm.Email)
	}
	dm.ID = id
	return id, nil
}

func (s *PostgresStore) ListReadyForOutreach(ctx context.Context, limit int) ([]model.OutreachContact, error) {
	rows, err := s.pool.Query(ctx, outreachQuery+"$1", outreachLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ready for outreach")
	}
	defer rows.Close()

	var out []model.OutreachContact
	for rows.Next() {
		c, err := scanOutreach(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan outreach contact")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list ready for outreach iterate")
}

func (s *PostgresStore) MarkSynced(ctx context.Context, decisionMakerID, crmID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE decision_makers SET synced_to_crm = TRUE, crm_contact_id = $1, updated_at = $2
		WHERE id = $3`,
		crmID, time.Now().UTC(), decisionMakerID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark synced %s", decisionMakerID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: mark synced %s", decisionMakerID)
	}
	return nil
}

// --- Run history ---

func (s *PostgresStore) InsertRunHistory(ctx context.Context, run *model.RunHistory) error {
	enc, err := encodeRunHistory(run)
	if err != nil {
		return err
	}
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO run_history (`+runHistoryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		run.ID, run.RunDate, run.OperatorsFound, run.DecisionMakersFound, enc.breakdown,
		run.AvgLocationsPerOperator, run.ExpansionSignalsDetected, run.Synced, run.Duplicates,
		enc.errors, run.CostEstimateUSD, run.DurationSeconds, enc.phases, run.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert run history")
}

func (s *PostgresStore) ListRunHistory(ctx context.Context, filter model.RunFilter) ([]model.RunHistory, error) {
	query := `SELECT ` + runHistoryColumns + ` FROM run_history`
	args := []any{}
	if !filter.Since.IsZero() {
		query += ` WHERE created_at >= $1`
		args = append(args, filter.Since)
	}
	args = append(args, listLimit(filter.Limit))
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list run history")
	}
	defer rows.Close()

	var runs []model.RunHistory
	for rows.Next() {
		r, err := scanRunHistory(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run history")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list run history iterate")
}

func (s *PostgresStore) GetRunHistory(ctx context.Context, id string) (*model.RunHistory, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runHistoryColumns+` FROM run_history WHERE id = $1`, id)
	r, err := scanRunHistory(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run history %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run history %s", id)
	}
	return r, nil
}

// --- Leads ---

var leadUpsert = db.UpsertConfig{
	Table: "leads",
	Columns: []string{
		"id", "entity_name", "entity_id", "status", "filing_date", "physical_address", "county",
		"type", "dba_count", "locations", "source", "layer", "score", "tech_fit", "contact", "created_at",
	},
	ConflictKeys: []string{"entity_name", "source"},
	UpdateCols:   []string{"entity_id", "status", "filing_date", "physical_address", "county", "type", "dba_count", "locations", "layer", "score"},
}

// SaveLeads bulk-upserts leads keyed by (entity_name, source).
func (s *PostgresStore) SaveLeads(ctx context.Context, leads []model.ScoredLead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(leads))
	for _, l := range leads {
		created := l.CreatedAt
		if created.IsZero() {
			created = now
		}
		rows = append(rows, []any{
			uuid.New().String(), l.EntityName, l.EntityID, l.Status, l.FilingDate, l.PhysicalAddress,
			l.County, l.Type, optInt(l.DBACount), optInt(l.Locations), l.Source, string(l.Layer),
			l.Score, l.TechFit, l.Contact, created,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, leadUpsert, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: save leads")
	}
	return int(n), nil
}

func (s *PostgresStore) ExistingLeadNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT entity_name FROM leads`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: existing lead names")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead name")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "postgres: existing lead names iterate")
}

func (s *PostgresStore) ListLeads(ctx context.Context, filter model.LeadFilter) ([]model.ScoredLead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE score >= $1`
	args := []any{filter.MinScore}
	if filter.Layer != "" {
		args = append(args, string(filter.Layer))
		query += ` AND layer = $` + strconv.Itoa(len(args))
	}
	args = append(args, listLimit(filter.Limit))
	query += ` ORDER BY score DESC, created_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	defer rows.Close()

	var leads []model.ScoredLead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: list leads iterate")
}

func scanLead(row scannable) (model.ScoredLead, error) {
	var (
		l               model.ScoredLead
		layer           string
		dbaCount, locns sql.NullInt64
	)
	err := row.Scan(&l.EntityName, &l.EntityID, &l.Status, &l.FilingDate, &l.PhysicalAddress,
		&l.County, &l.Type, &dbaCount, &locns, &l.Source, &layer, &l.Score, &l.TechFit,
		&l.Contact, &l.CreatedAt)
	if err != nil {
		return l, err
	}
	l.Layer = model.Layer(layer)
	if dbaCount.Valid {
		l.DBACount = model.IntPtr(int(dbaCount.Int64))
	}
	if locns.Valid {
		l.Locations = model.IntPtr(int(locns.Int64))
	}
	return l, nil
}
