// Package metric resolves metric values: the resolver runs live
// aggregation queries against the warehouse, the evaluator aggregates
// pre-materialized rows from the application datastore.
package metric

import (
	"context"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// Request asks for one metric value over a half-open date window
// [StartDate, EndDate). Dimension values are scalar equality or
// membership filters (string or []string).
type Request struct {
	MetricName string         `json:"metricName"`
	Grain      core.Grain     `json:"grain"`
	StartDate  string         `json:"startDate"`
	EndDate    string         `json:"endDate"`
	Dimensions map[string]any `json:"dimensions,omitempty"`
	Fill       string         `json:"fill,omitempty"`
}

// Result is one resolved metric value. NoRows marks a "model not yet
// refreshed" zero, which callers should surface distinctly from a true
// zero aggregate.
type Result struct {
	Value       float64 `json:"value"`
	RowsScanned int     `json:"rowsScanned"`
	NoRows      bool    `json:"noRows,omitempty"`
	Cached      bool    `json:"cached"`
	ElapsedMs   int64   `json:"elapsedMs,omitempty"`
}

// Catalog is the slice of the application datastore the resolver and
// evaluator need: metric and model lookups plus materialized rows.
type Catalog interface {
	GetMetricByName(ctx context.Context, name string) (*core.MetricDefinition, error)
	GetModel(ctx context.Context, id string) (*core.ModelDefinition, error)
	GetRowsInRange(ctx context.Context, modelID, start, end string) ([]core.MaterializedRow, error)
}

// Fill policies. Only "zero" (and the default) carry behavior; "null"
// and "forward" are accepted on requests but also fill with zero.
const (
	FillZero    = "zero"
	FillNull    = "null"
	FillForward = "forward"
)
