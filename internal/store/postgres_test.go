package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := NewPostgresWithPool(mock)
	return s, mock
}

// anyArgs matches n arguments of any value.
func anyArgs(n int) []any {
	args := make([]any, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

var runHistoryCols = []string{
	"id", "run_date", "operators_found", "decision_makers_found", "categories_breakdown",
	"avg_locations_per_operator", "expansion_signals_detected", "synced", "duplicates",
	"errors", "cost_estimate_usd", "duration_seconds", "phases", "created_at",
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS operators`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertOperator(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)INSERT INTO operators .*ON CONFLICT \(document_number\) DO UPDATE SET.*RETURNING id`).
		WithArgs(pgxmock.AnyArg(), "Sunshine Grill Group", pgxmock.AnyArg(), "restaurant_chain", 14,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("op-existing"))

	op := testOperator("Sunshine Grill Group", "L19000012345", 14)
	id, err := s.UpsertOperator(context.Background(), op)
	require.NoError(t, err)
	assert.Equal(t, "op-existing", id)
	assert.Equal(t, "op-existing", op.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertOperator_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO operators`).
		WithArgs(anyArgs(14)...).
		WillReturnError(errors.New("connection reset"))

	_, err := s.UpsertOperator(context.Background(), testOperator("Sunshine Grill Group", "", 14))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert operator Sunshine Grill Group")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListQualifiedOperators(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "company_name", "document_number", "category", "estimated_location_count",
		"location_count_source", "confidence", "category_confidence", "indicators", "website",
		"hq_city", "hq_state", "pos_system", "pos_confidence", "expansion_signals",
		"expansion_score", "is_qualified", "created_at", "updated_at",
	}).AddRow(
		"op-1", "Sunshine Grill Group", "L1", "restaurant_chain", 14,
		"google_places,headcount", "high", "medium", []byte(`{"entity_keywords":["group"],"dba_count":3}`),
		"https://sunshinegrill.com", "Miami", "FL", "toast", "high",
		[]byte(`[{"source":"sunbiz","description":"3 new DBA filings"}]`), 2, true, now, now,
	)
	mock.ExpectQuery(`(?s)SELECT .* FROM operators\s+WHERE is_qualified = TRUE`).WillReturnRows(rows)

	ops, err := s.ListQualifiedOperators(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, model.CategoryRestaurantChain, ops[0].Category)
	assert.Equal(t, 3, ops[0].Indicators.DBACount)
	require.Len(t, ops[0].ExpansionSignals, 1)
	assert.Equal(t, model.ExpansionSunbiz, ops[0].ExpansionSignals[0].Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_PatchOperator(t *testing.T) {
	t.Run("updated", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectExec(`UPDATE operators\s+SET pos_system`).
			WithArgs("toast", "high", pgxmock.AnyArg(), 3, pgxmock.AnyArg(), "op-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		err := s.PatchOperator(context.Background(), "op-1", model.OperatorPatch{
			POSSystem: "toast", POSConfidence: model.ConfidenceHigh, ExpansionScore: 3,
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		s, mock := newMockPostgresStore(t)
		mock.ExpectExec(`UPDATE operators`).
			WithArgs("", "", pgxmock.AnyArg(), 0, pgxmock.AnyArg(), "missing").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := s.PatchOperator(context.Background(), "missing", model.OperatorPatch{})
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostgresStore_UpsertDecisionMaker(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`(?s)INSERT INTO decision_makers .*ON CONFLICT \(company_id, email\)`).
		WithArgs(pgxmock.AnyArg(), "op-1", "Dana Ruiz", "", "dana@sunshinegrill.com",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), false, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("dm-1"))

	dm := &model.DecisionMaker{CompanyID: "op-1", FullName: "Dana Ruiz", Email: "dana@sunshinegrill.com"}
	id, err := s.UpsertDecisionMaker(context.Background(), dm)
	require.NoError(t, err)
	assert.Equal(t, "dm-1", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertDecisionMaker_NoEmail(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.UpsertDecisionMaker(context.Background(), &model.DecisionMaker{CompanyID: "op-1"})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListReadyForOutreach(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{
		"id", "full_name", "title", "email", "phone", "linkedin_url", "company_name", "category",
		"estimated_location_count", "pos_system", "expansion_score", "hq_city", "hq_state",
	}).AddRow("dm-1", "Dana Ruiz", "COO", "dana@sunshinegrill.com", "", "", "Sunshine Grill Group",
		"restaurant_chain", 14, "toast", 2, "Miami", "FL")
	mock.ExpectQuery(`(?s)FROM decision_makers dm\s+JOIN operators o .*LIMIT \$1`).
		WithArgs(DefaultOutreachLimit).
		WillReturnRows(rows)

	out, err := s.ListReadyForOutreach(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "dm-1", out[0].DecisionMakerID)
	assert.Equal(t, model.CategoryRestaurantChain, out[0].Category)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_MarkSynced(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE decision_makers SET synced_to_crm = TRUE`).
		WithArgs("00QABC", pgxmock.AnyArg(), "dm-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, s.MarkSynced(context.Background(), "dm-1", "00QABC"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertRunHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO run_history`).
		WithArgs(anyArgs(14)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run := &model.RunHistory{RunDate: "2026-10-18", Errors: []string{"discovery: registry down"}}
	require.NoError(t, s.InsertRunHistory(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.False(t, run.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRunHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)SELECT .* FROM run_history WHERE id = \$1`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows(runHistoryCols).AddRow(
			"run-1", "2026-10-18", 2, 5, []byte(`{"casino":2}`), 11.0, 1, 4, 1,
			[]byte(`["crm_sync: timeout"]`), 0.5, 60, []byte(`[{"name":"discovery","status":"complete","duration_ms":10}]`), now,
		))

	got, err := s.GetRunHistory(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"casino": 2}, got.CategoriesBreakdown)
	assert.Equal(t, []string{"crm_sync: timeout"}, got.Errors)
	require.Len(t, got.Phases, 1)
	assert.Equal(t, model.PhaseStatusComplete, got.Phases[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRunHistory_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM run_history WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetRunHistory(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRunHistory_Since(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	since := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM run_history WHERE created_at >= \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(since, 10).
		WillReturnRows(pgxmock.NewRows(runHistoryCols))

	runs, err := s.ListRunHistory(context.Background(), model.RunFilter{Since: since, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveLeads(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_leads"}, leadUpsert.Columns).WillReturnResult(2)
	mock.ExpectExec(`(?s)INSERT INTO "leads" .* ON CONFLICT \("entity_name", "source"\) DO UPDATE SET`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.SaveLeads(context.Background(), []model.ScoredLead{
		{RawEntity: model.RawEntity{EntityName: "A LLC"}, Source: "FL-Sunbiz", Layer: model.LayerNew, Score: 60},
		{RawEntity: model.RawEntity{EntityName: "B LLC"}, Source: "GA-SoS", Layer: model.LayerNew, Score: 55},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ExistingLeadNames(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT DISTINCT entity_name FROM leads`).
		WillReturnRows(pgxmock.NewRows([]string{"entity_name"}).AddRow("A LLC").AddRow("B LLC"))

	names, err := s.ExistingLeadNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A LLC", "B LLC"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}
