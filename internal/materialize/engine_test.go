package materialize

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metricgrid-labs/metricgrid/internal/state"
	"github.com/metricgrid-labs/metricgrid/internal/testutil"
	"github.com/metricgrid-labs/metricgrid/internal/warehouse"
	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// mockWarehouse adapts a sqlmock-backed *sql.DB to the Adapter surface.
type mockWarehouse struct {
	db *sql.DB
}

func (m *mockWarehouse) Connect(context.Context, warehouse.Config) error { return nil }
func (m *mockWarehouse) Close() error                                    { return m.db.Close() }
func (m *mockWarehouse) Ping(context.Context) error                      { return m.db.Ping() }
func (m *mockWarehouse) DialectName() string                             { return "mock" }

func (m *mockWarehouse) Query(ctx context.Context, sqlStr string) (*warehouse.Rows, error) {
	if err := warehouse.ValidateReadOnly(sqlStr); err != nil {
		return nil, err
	}
	rows, err := m.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, err
	}
	return &warehouse.Rows{Rows: rows}, nil
}

func newTestState(t *testing.T) *state.SQLiteStore {
	t.Helper()
	s := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, s.Open(":memory:"))
	require.NoError(t, s.InitSchema())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testModel(t *testing.T, s *state.SQLiteStore) *core.ModelDefinition {
	t.Helper()
	m := &core.ModelDefinition{
		Name:              "revenue",
		SourceQuery:       "SELECT order_date, region, amount FROM orders",
		PrimaryDateColumn: "order_date",
		DimensionColumns:  []string{"region"},
		MeasureColumns:    []string{"amount"},
		Grain:             core.GrainMonth,
	}
	require.NoError(t, s.CreateModel(context.Background(), m))
	return m
}

func newMockEngine(t *testing.T, store Datastore) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewEngine(store, &mockWarehouse{db: db}, testutil.NewTestLogger(t)), mock
}

func TestMaterialize_FullRefresh(t *testing.T) {
	s := newTestState(t)
	model := testModel(t, s)
	ctx := context.Background()

	stale := core.NewMaterializedRow(model.ID, "2020-01-01", nil, map[string]any{"amount": 1.0})
	require.NoError(t, s.InsertRows(ctx, []core.MaterializedRow{stale}))

	engine, mock := newMockEngine(t, s)
	mock.ExpectQuery("SELECT order_date, region, amount FROM orders").WillReturnRows(
		sqlmock.NewRows([]string{"order_date", "region", "amount"}).
			AddRow("2024-01-01", "us", 100.0).
			AddRow("2024-02-01", "eu", 200.0),
	)

	n, err := engine.Materialize(ctx, model, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// The stale row is gone; only the fresh rows remain.
	rows, err := s.GetRowsInRange(ctx, model.ID, "0000-01-01", "9999-12-31")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-01", rows[0].DateValue)
	v, ok := rows[0].Measure("amount")
	require.True(t, ok)
	assert.Equal(t, 100.0, v)
	dim, ok := rows[0].Dimension("region")
	require.True(t, ok)
	assert.Equal(t, "us", dim)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_IncrementalRewritesOnlyWindow(t *testing.T) {
	s := newTestState(t)
	model := testModel(t, s)
	ctx := context.Background()

	require.NoError(t, s.InsertRows(ctx, []core.MaterializedRow{
		core.NewMaterializedRow(model.ID, "2023-12-01", nil, map[string]any{"amount": 50.0}),
		core.NewMaterializedRow(model.ID, "2024-01-01", nil, map[string]any{"amount": 999.0}),
	}))

	engine, mock := newMockEngine(t, s)
	mock.ExpectQuery("SELECT order_date, region, amount FROM orders WHERE order_date >= '2024-01-01' AND order_date < '2024-02-01'").
		WillReturnRows(sqlmock.NewRows([]string{"order_date", "region", "amount"}).
			AddRow("2024-01-01", "us", 100.0))

	n, err := engine.Materialize(ctx, model, Options{
		Incremental: true,
		StartDate:   "2024-01-01",
		EndDate:     "2024-02-01",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := s.GetRowsInRange(ctx, model.ID, "0000-01-01", "9999-12-31")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	// The row outside the window survived; the one inside was replaced.
	assert.Equal(t, "2023-12-01", rows[0].DateValue)
	v, _ := rows[1].Measure("amount")
	assert.Equal(t, 100.0, v)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_IncrementalRequiresStart(t *testing.T) {
	s := newTestState(t)
	model := testModel(t, s)
	ctx := context.Background()

	prior := core.NewMaterializedRow(model.ID, "2024-01-01", nil, map[string]any{"amount": 42.0})
	require.NoError(t, s.InsertRows(ctx, []core.MaterializedRow{prior}))

	engine, mock := newMockEngine(t, s)

	// No warehouse query and no delete: the run fails up front instead
	// of degrading into a full refresh.
	_, err := engine.Materialize(ctx, model, Options{Incremental: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start date")

	rows, err := s.GetRowsInRange(ctx, model.ID, "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterialize_MissingMeasureAbortsBeforeWrite(t *testing.T) {
	s := newTestState(t)
	model := testModel(t, s)
	ctx := context.Background()

	prior := core.NewMaterializedRow(model.ID, "2024-01-01", nil, map[string]any{"amount": 42.0})
	require.NoError(t, s.InsertRows(ctx, []core.MaterializedRow{prior}))

	engine, mock := newMockEngine(t, s)
	mock.ExpectQuery("SELECT order_date, region, amount FROM orders").WillReturnRows(
		sqlmock.NewRows([]string{"order_date", "region"}).AddRow("2024-01-01", "us"))

	_, err := engine.Materialize(ctx, model, Options{})
	require.Error(t, err)

	var merr *core.MaterializationError
	require.True(t, errors.As(err, &merr))
	assert.Equal(t, "amount", merr.Column)

	// No delete happened: the prior row is intact.
	rows, err := s.GetRowsInRange(ctx, model.ID, "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestMaterialize_MissingDimensionIsWarningOnly(t *testing.T) {
	s := newTestState(t)
	model := testModel(t, s)
	ctx := context.Background()

	engine, mock := newMockEngine(t, s)
	mock.ExpectQuery("SELECT order_date, region, amount FROM orders").WillReturnRows(
		sqlmock.NewRows([]string{"order_date", "amount"}).AddRow("2024-01-01", 100.0))

	n, err := engine.Materialize(ctx, model, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	rows, err := s.GetRowsInRange(ctx, model.ID, "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].Dimensions)
}

func TestMaterialize_CaseInsensitiveSchemaMatch(t *testing.T) {
	s := newTestState(t)
	model := testModel(t, s)
	ctx := context.Background()

	engine, mock := newMockEngine(t, s)
	mock.ExpectQuery("SELECT order_date, region, amount FROM orders").WillReturnRows(
		sqlmock.NewRows([]string{"ORDER_DATE", "Region", "AMOUNT"}).AddRow("2024-01-01", "us", 100.0))

	n, err := engine.Materialize(ctx, model, Options{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMaterialize_UnparseableDate(t *testing.T) {
	s := newTestState(t)
	model := testModel(t, s)

	engine, mock := newMockEngine(t, s)
	mock.ExpectQuery("SELECT order_date, region, amount FROM orders").WillReturnRows(
		sqlmock.NewRows([]string{"order_date", "region", "amount"}).AddRow("not-a-date", "us", 100.0))

	_, err := engine.Materialize(context.Background(), model, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparseable date")
}

func TestBuildModelQuery(t *testing.T) {
	inc := Options{Incremental: true, StartDate: "2024-01-01", EndDate: "2024-02-01"}

	tests := []struct {
		name  string
		query string
		opts  Options
		want  string
	}{
		{
			"full refresh untouched",
			"SELECT a FROM t",
			Options{},
			"SELECT a FROM t",
		},
		{
			"no where",
			"SELECT a FROM t",
			inc,
			"SELECT a FROM t WHERE d >= '2024-01-01' AND d < '2024-02-01'",
		},
		{
			"existing where gets AND",
			"SELECT a FROM t WHERE x = 1",
			inc,
			"SELECT a FROM t WHERE x = 1 AND d >= '2024-01-01' AND d < '2024-02-01'",
		},
		{
			"inserted before group by",
			"SELECT d, SUM(v) FROM t GROUP BY d",
			inc,
			"SELECT d, SUM(v) FROM t WHERE d >= '2024-01-01' AND d < '2024-02-01' GROUP BY d",
		},
		{
			"where and order by",
			"SELECT a FROM t WHERE x = 1 ORDER BY a",
			inc,
			"SELECT a FROM t WHERE x = 1 AND d >= '2024-01-01' AND d < '2024-02-01' ORDER BY a",
		},
		{
			"open-ended window",
			"SELECT a FROM t",
			Options{Incremental: true, StartDate: "2024-01-01"},
			"SELECT a FROM t WHERE d >= '2024-01-01'",
		},
		{
			"trailing semicolon stripped",
			"SELECT a FROM t;",
			Options{},
			"SELECT a FROM t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &core.ModelDefinition{ID: "m", SourceQuery: tt.query, PrimaryDateColumn: "d"}
			got, err := buildModelQuery(model, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildModelQuery_RejectsMutatingStatement(t *testing.T) {
	model := &core.ModelDefinition{ID: "m", SourceQuery: "DELETE FROM t", PrimaryDateColumn: "d"}
	_, err := buildModelQuery(model, Options{})
	assert.Error(t, err)
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
		ok    bool
	}{
		{"iso string", "2024-01-02", "2024-01-02", true},
		{"slash string", "2024/01/02", "2024-01-02", true},
		{"us string", "01/15/2024", "2024-01-15", true},
		{"timestamp string", "2024-01-02 10:30:00", "2024-01-02", true},
		{"native time", time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC), "2024-03-05", true},
		{"bytes", []byte("2024-01-02"), "2024-01-02", true},
		{"garbage", "yesterday", "", false},
		{"nil", nil, "", false},
		{"number", 20240102, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeDate(tt.input)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
