package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metricgrid-labs/metricgrid/internal/testutil"
	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s := NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, s.Open(":memory:"))
	require.NoError(t, s.InitSchema())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedModel(t *testing.T, s *SQLiteStore) *core.ModelDefinition {
	t.Helper()
	m := &core.ModelDefinition{
		Name:              "revenue_by_region",
		SourceQuery:       "SELECT order_date, region, amount FROM orders",
		PrimaryDateColumn: "order_date",
		DimensionColumns:  []string{"region"},
		MeasureColumns:    []string{"amount"},
		Grain:             core.GrainMonth,
	}
	require.NoError(t, s.CreateModel(context.Background(), m))
	return m
}

func TestModelCatalog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := seedModel(t, s)
	require.NotEmpty(t, m.ID)

	got, err := s.GetModel(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "revenue_by_region", got.Name)
	assert.Equal(t, []string{"region"}, got.DimensionColumns)
	assert.Equal(t, []string{"amount"}, got.MeasureColumns)
	assert.Equal(t, core.GrainMonth, got.Grain)
	assert.Nil(t, got.LastRefreshedAt)

	byName, err := s.GetModelByName(ctx, "revenue_by_region")
	require.NoError(t, err)
	assert.Equal(t, m.ID, byName.ID)

	_, err = s.GetModel(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrModelNotFound)

	models, err := s.ListModels(ctx)
	require.NoError(t, err)
	assert.Len(t, models, 1)
}

func TestStampModelRefreshed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s)

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.StampModelRefreshed(ctx, m.ID, at))

	got, err := s.GetModel(ctx, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRefreshedAt)
	assert.True(t, got.LastRefreshedAt.Equal(at))

	assert.ErrorIs(t, s.StampModelRefreshed(ctx, "nope", at), core.ErrModelNotFound)
}

func TestMetricCatalog(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s)

	metric := &core.MetricDefinition{
		Name:          "total_revenue",
		ModelID:       m.ID,
		MeasureColumn: "amount",
		Aggregation:   core.AggSum,
		Filters: []core.MetricFilter{
			{Column: "region", Operator: core.OpNeq, Value: "test"},
		},
	}
	require.NoError(t, s.CreateMetric(ctx, metric))

	got, err := s.GetMetricByName(ctx, "total_revenue")
	require.NoError(t, err)
	assert.Equal(t, core.AggSum, got.Aggregation)
	require.Len(t, got.Filters, 1)
	assert.Equal(t, core.OpNeq, got.Filters[0].Operator)

	_, err = s.GetMetricByName(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrMetricNotFound)

	metrics, err := s.ListMetrics(ctx)
	require.NoError(t, err)
	assert.Len(t, metrics, 1)
}

func TestMaterializedRows_RangeSemantics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s)

	rows := []core.MaterializedRow{
		core.NewMaterializedRow(m.ID, "2024-01-01", map[string]any{"Region": "us"}, map[string]any{"Amount": 100.0}),
		core.NewMaterializedRow(m.ID, "2024-02-01", map[string]any{"Region": "eu"}, map[string]any{"Amount": 200.0}),
		core.NewMaterializedRow(m.ID, "2024-03-01", nil, map[string]any{"Amount": 300.0}),
	}
	require.NoError(t, s.InsertRows(ctx, rows))

	// [start, end) excludes the upper bound.
	got, err := s.GetRowsInRange(ctx, m.ID, "2024-01-01", "2024-03-01")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Keys were normalized to lowercase at construction and survive the
	// round trip.
	v, ok := got[0].Measure("AMOUNT")
	require.True(t, ok)
	assert.Equal(t, 100.0, v)
	_, ok = got[0].Dimension("region")
	assert.True(t, ok)

	// Incremental delete only clears the window.
	n, err := s.DeleteRowsInRange(ctx, m.ID, "2024-02-01", "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Open-ended delete clears from the bound onward.
	n, err = s.DeleteRowsInRange(ctx, m.ID, "2024-03-01", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteRows(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInsertRows_LargeBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s)

	rows := make([]core.MaterializedRow, 0, insertBatchSize+50)
	for i := 0; i < insertBatchSize+50; i++ {
		rows = append(rows, core.NewMaterializedRow(m.ID, "2024-01-01", nil, map[string]any{"amount": float64(i)}))
	}
	require.NoError(t, s.InsertRows(ctx, rows))

	got, err := s.GetRowsInRange(ctx, m.ID, "2024-01-01", "2024-01-02")
	require.NoError(t, err)
	assert.Len(t, got, insertBatchSize+50)
}

func TestJobLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s)

	job, err := s.CreateJob(ctx, m.ID, false)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusPending, job.Status)

	require.NoError(t, s.MarkJobRunning(ctx, job.ID))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)

	require.NoError(t, s.CompleteJob(ctx, job.ID, 42))

	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusSuccess, got.Status)
	assert.Equal(t, int64(42), got.RowsProcessed)
	assert.NotNil(t, got.CompletedAt)
	assert.True(t, got.Status.Terminal())

	// Terminal states are final.
	assert.Error(t, s.CompleteJob(ctx, job.ID, 1))
	assert.Error(t, s.MarkJobRunning(ctx, job.ID))
}

func TestJobFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s)

	job, err := s.CreateJob(ctx, m.ID, true)
	require.NoError(t, err)
	require.NoError(t, s.MarkJobRunning(ctx, job.ID))
	require.NoError(t, s.FailJob(ctx, job.ID, "schema mismatch"))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, core.JobStatusError, got.Status)
	assert.Equal(t, "schema mismatch", got.ErrorMessage)
	assert.True(t, got.Incremental)

	// A running job cannot be marked running again.
	assert.Error(t, s.MarkJobRunning(ctx, job.ID))

	_, err = s.GetJob(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestListJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s)

	for i := 0; i < 5; i++ {
		_, err := s.CreateJob(ctx, m.ID, false)
		require.NoError(t, err)
	}

	jobs, err := s.ListJobs(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}
