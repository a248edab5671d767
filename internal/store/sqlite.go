package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS operators (
	id                       TEXT PRIMARY KEY,
	company_name             TEXT NOT NULL,
	document_number          TEXT UNIQUE,
	category                 TEXT NOT NULL DEFAULT '',
	estimated_location_count INTEGER NOT NULL DEFAULT 0,
	location_count_source    TEXT NOT NULL DEFAULT '',
	confidence               TEXT NOT NULL DEFAULT 'low',
	category_confidence      TEXT NOT NULL DEFAULT '',
	indicators               TEXT NOT NULL DEFAULT '{}',
	website                  TEXT NOT NULL DEFAULT '',
	hq_city                  TEXT NOT NULL DEFAULT '',
	hq_state                 TEXT NOT NULL DEFAULT '',
	pos_system               TEXT NOT NULL DEFAULT '',
	pos_confidence           TEXT NOT NULL DEFAULT '',
	expansion_signals        TEXT NOT NULL DEFAULT '[]',
	expansion_score          INTEGER NOT NULL DEFAULT 0,
	is_qualified             INTEGER NOT NULL DEFAULT 0,
	created_at               DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at               DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_operators_qualified ON operators(is_qualified, estimated_location_count);

CREATE TABLE IF NOT EXISTS decision_makers (
	id               TEXT PRIMARY KEY,
	company_id       TEXT NOT NULL REFERENCES operators(id),
	full_name        TEXT NOT NULL,
	title            TEXT NOT NULL DEFAULT '',
	email            TEXT NOT NULL,
	phone            TEXT NOT NULL DEFAULT '',
	linkedin_url     TEXT NOT NULL DEFAULT '',
	data_sources     TEXT NOT NULL DEFAULT '[]',
	email_confidence TEXT NOT NULL DEFAULT '',
	is_verified      INTEGER NOT NULL DEFAULT 0,
	synced_to_crm    INTEGER NOT NULL DEFAULT 0,
	crm_contact_id   TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (company_id, email)
);

CREATE TABLE IF NOT EXISTS run_history (
	id                         TEXT PRIMARY KEY,
	run_date                   TEXT NOT NULL,
	operators_found            INTEGER NOT NULL DEFAULT 0,
	decision_makers_found      INTEGER NOT NULL DEFAULT 0,
	categories_breakdown       TEXT NOT NULL DEFAULT '{}',
	avg_locations_per_operator REAL NOT NULL DEFAULT 0,
	expansion_signals_detected INTEGER NOT NULL DEFAULT 0,
	synced                     INTEGER NOT NULL DEFAULT 0,
	duplicates                 INTEGER NOT NULL DEFAULT 0,
	errors                     TEXT NOT NULL DEFAULT '[]',
	cost_estimate_usd          REAL NOT NULL DEFAULT 0,
	duration_seconds           INTEGER NOT NULL DEFAULT 0,
	phases                     TEXT,
	created_at                 DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_run_history_created_at ON run_history(created_at);

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
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (entity_name, source)
);

CREATE INDEX IF NOT EXISTS idx_leads_layer_score ON leads(layer, score);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Operators ---

func (s *SQLiteStore) UpsertOperator(ctx context.Context, op *model.Operator) (string, error) {
	indicators, err := marshalJSON(op.Indicators, "indicators")
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()

	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO operators (id, company_name, document_number, category, estimated_location_count,
			location_count_source, confidence, category_confidence, indicators, website, hq_city,
			hq_state, is_qualified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_number) DO UPDATE SET`+operatorUpdateSet+`
		RETURNING id`,
		uuid.New().String(), op.CompanyName, nullable(op.DocumentNumber), string(op.Category),
		op.EstimatedLocationCount, op.LocationCountSource, string(op.Confidence),
		string(op.CategoryConfidence), string(indicators), op.Website, op.HQCity, op.HQState,
		op.IsQualified, now, now,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: upsert operator %s", op.CompanyName)
	}
	op.ID = id
	return id, nil
}

func (s *SQLiteStore) ListQualifiedOperators(ctx context.Context) ([]model.Operator, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+operatorColumns+` FROM operators
		WHERE is_qualified = TRUE ORDER BY estimated_location_count DESC, company_name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list qualified operators")
	}
	defer rows.Close()

	var ops []model.Operator
	for rows.Next() {
		op, err := scanOperator(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan operator")
		}
		ops = append(ops, *op)
	}
	return ops, eris.Wrap(rows.Err(), "sqlite: list qualified operators iterate")
}

func (s *SQLiteStore) PatchOperator(ctx context.Context, id string, patch model.OperatorPatch) error {
	signals, err := marshalJSON(nonNilSignals(patch.ExpansionSignals), "expansion signals")
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE operators
		SET pos_system = ?, pos_confidence = ?, expansion_signals = ?, expansion_score = ?, updated_at = ?
		WHERE id = ?`,
		patch.POSSystem, string(patch.POSConfidence), string(signals), patch.ExpansionScore, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: patch operator %s", id)
	}
	return checkRowsAffected(res, "operator", id)
}

// --- Decision makers ---

func (s *SQLiteStore) UpsertDecisionMaker(ctx context.Context, dm *model.DecisionMaker) (string, error) {
	if dm.Email == "" {
		return "", eris.New("sqlite: decision maker email is required")
	}
	sources, err := marshalJSON(nonNilStrings(dm.DataSources), "data sources")
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()

	var id string
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO decision_makers (id, company_id, full_name, title, email, phone, linkedin_url,
			data_sources, email_confidence, is_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (company_id, email) DO UPDATE SET`+decisionMakerUpdateSet+`
		RETURNING id`,
		uuid.New().String(), dm.CompanyID, dm.FullName, dm.Title, dm.Email, dm.Phone,
		dm.LinkedInURL, string(sources), string(dm.EmailConfidence), dm.IsVerified, now, now,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: upsert decision maker %s", dm.Email)
	}
	dm.ID = id
	return id, nil
}

func (s *SQLiteStore) ListReadyForOutreach(ctx context.Context, limit int) ([]model.OutreachContact, error) {
	rows, err := s.db.QueryContext(ctx, outreachQuery+"?", outreachLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ready for outreach")
	}
	defer rows.Close()

	var out []model.OutreachContact
	for rows.Next() {
		c, err := scanOutreach(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outreach contact")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list ready for outreach iterate")
}

func (s *SQLiteStore) MarkSynced(ctx context.Context, decisionMakerID, crmID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE decision_makers SET synced_to_crm = TRUE, crm_contact_id = ?, updated_at = ? WHERE id = ?`,
		crmID, time.Now().UTC(), decisionMakerID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark synced %s", decisionMakerID)
	}
	return checkRowsAffected(res, "decision maker", decisionMakerID)
}

// --- Run history ---

func (s *SQLiteStore) InsertRunHistory(ctx context.Context, run *model.RunHistory) error {
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

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_history (`+runHistoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RunDate, run.OperatorsFound, run.DecisionMakersFound, string(enc.breakdown),
		run.AvgLocationsPerOperator, run.ExpansionSignalsDetected, run.Synced, run.Duplicates,
		string(enc.errors), run.CostEstimateUSD, run.DurationSeconds, string(enc.phases), run.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert run history")
}

func (s *SQLiteStore) ListRunHistory(ctx context.Context, filter model.RunFilter) ([]model.RunHistory, error) {
	query := `SELECT ` + runHistoryColumns + ` FROM run_history`
	var args []any
	if !filter.Since.IsZero() {
		query += ` WHERE created_at >= ?`
		args = append(args, filter.Since.UTC())
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list run history")
	}
	defer rows.Close()

	var runs []model.RunHistory
	for rows.Next() {
		r, err := scanRunHistory(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run history")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list run history iterate")
}

func (s *SQLiteStore) GetRunHistory(ctx context.Context, id string) (*model.RunHistory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runHistoryColumns+` FROM run_history WHERE id = ?`, id)
	r, err := scanRunHistory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get run history %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run history %s", id)
	}
	return r, nil
}

// --- Leads ---

func (s *SQLiteStore) SaveLeads(ctx context.Context, leads []model.ScoredLead) (int, error) {
	if len(leads) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save leads")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO leads (id, `+leadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_name, source) DO UPDATE SET
			entity_id = excluded.entity_id,
			status = excluded.status,
			filing_date = excluded.filing_date,
			physical_address = excluded.physical_address,
			county = excluded.county,
			type = excluded.type,
			dba_count = excluded.dba_count,
			locations = excluded.locations,
			layer = excluded.layer,
			score = excluded.score`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare save leads")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	saved := 0
	for _, l := range leads {
		created := l.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.New().String(), l.EntityName, l.EntityID, l.Status, l.FilingDate, l.PhysicalAddress,
			l.County, l.Type, optInt(l.DBACount), optInt(l.Locations), l.Source, string(l.Layer),
			l.Score, l.TechFit, l.Contact, created,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: save lead %s", l.EntityName)
		}
		saved++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit save leads")
	}
	return saved, nil
}

func (s *SQLiteStore) ExistingLeadNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT entity_name FROM leads`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: existing lead names")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead name")
		}
		names = append(names, n)
	}
	return names, eris.Wrap(rows.Err(), "sqlite: existing lead names iterate")
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter model.LeadFilter) ([]model.ScoredLead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE score >= ?`
	args := []any{filter.MinScore}
	if filter.Layer != "" {
		query += ` AND layer = ?`
		args = append(args, string(filter.Layer))
	}
	query += ` ORDER BY score DESC, created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	defer rows.Close()

	var leads []model.ScoredLead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: list leads iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}
