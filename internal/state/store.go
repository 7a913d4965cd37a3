// Package state provides the application datastore for metricgrid using
// SQLite. It holds the model and metric catalogs, the materialized rows
// refreshed from the warehouse, and refresh job records.
package state

import (
	"context"
	"time"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// Store is the persistence boundary the resolver, evaluator,
// materialization engine, and job worker depend on.
type Store interface {
	// Model catalog.
	CreateModel(ctx context.Context, m *core.ModelDefinition) error
	GetModel(ctx context.Context, id string) (*core.ModelDefinition, error)
	GetModelByName(ctx context.Context, name string) (*core.ModelDefinition, error)
	ListModels(ctx context.Context) ([]*core.ModelDefinition, error)
	StampModelRefreshed(ctx context.Context, id string, at time.Time) error

	// Metric catalog.
	CreateMetric(ctx context.Context, m *core.MetricDefinition) error
	GetMetricByName(ctx context.Context, name string) (*core.MetricDefinition, error)
	ListMetrics(ctx context.Context) ([]*core.MetricDefinition, error)

	// Materialized rows. Ranges are [start, end) over YYYY-MM-DD strings;
	// an empty end means an open upper bound.
	InsertRows(ctx context.Context, rows []core.MaterializedRow) error
	DeleteRows(ctx context.Context, modelID string) (int64, error)
	DeleteRowsInRange(ctx context.Context, modelID, start, end string) (int64, error)
	GetRowsInRange(ctx context.Context, modelID, start, end string) ([]core.MaterializedRow, error)

	// Refresh jobs.
	CreateJob(ctx context.Context, modelID string, incremental bool) (*core.RefreshJob, error)
	MarkJobRunning(ctx context.Context, id string) error
	CompleteJob(ctx context.Context, id string, rowsProcessed int64) error
	FailJob(ctx context.Context, id, errorMessage string) error
	GetJob(ctx context.Context, id string) (*core.RefreshJob, error)
	ListJobs(ctx context.Context, limit int) ([]*core.RefreshJob, error)

	Close() error
}
