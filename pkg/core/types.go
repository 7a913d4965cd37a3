// Package core defines the shared domain types for metricgrid:
// models, metrics, materialized rows, refresh jobs, and time grains.
package core

import (
	"strings"
	"time"
)

// Grain represents the calendar granularity of a time axis.
type Grain string

// Grain constants.
const (
	GrainDay     Grain = "day"
	GrainMonth   Grain = "month"
	GrainQuarter Grain = "quarter"
	GrainYear    Grain = "year"
)

// Valid reports whether g is one of the known grains.
func (g Grain) Valid() bool {
	switch g {
	case GrainDay, GrainMonth, GrainQuarter, GrainYear:
		return true
	}
	return false
}

// Aggregation is a metric aggregation function.
type Aggregation string

const (
	AggSum           Aggregation = "sum"
	AggAvg           Aggregation = "avg"
	AggCount         Aggregation = "count"
	AggCountDistinct Aggregation = "count_distinct"
	AggMin           Aggregation = "min"
	AggMax           Aggregation = "max"
)

// FilterOperator is a comparison operator in a metric filter.
type FilterOperator string

const (
	OpEq    FilterOperator = "eq"
	OpNeq   FilterOperator = "neq"
	OpGt    FilterOperator = "gt"
	OpGte   FilterOperator = "gte"
	OpLt    FilterOperator = "lt"
	OpLte   FilterOperator = "lte"
	OpIn    FilterOperator = "in"
	OpNotIn FilterOperator = "not_in"
	OpLike  FilterOperator = "like"
)

// ModelDefinition describes a warehouse-sourced dataset: its defining query,
// its date column, and the dimension/measure columns it exposes.
// The materialization engine never mutates a definition, only the dependent
// materialized rows and the refresh timestamp.
type ModelDefinition struct {
	// ID is the unique model identifier
	ID string
	// Name is the human-facing model name
	Name string
	// SourceQuery is the SELECT statement executed against the warehouse
	SourceQuery string
	// PrimaryDateColumn is the column that carries the model's time axis
	PrimaryDateColumn string
	// DimensionColumns are categorical columns usable for filtering
	DimensionColumns []string
	// MeasureColumns are numeric columns eligible for aggregation
	MeasureColumns []string
	// Grain is the calendar granularity of the model's rows
	Grain Grain
	// LastRefreshedAt is stamped after each successful materialization
	LastRefreshedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// MetricFilter is one predicate attached to a metric definition.
type MetricFilter struct {
	Column   string         `json:"column"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value"`
}

// MetricDefinition is a named aggregation over one measure column of a model.
type MetricDefinition struct {
	ID            string
	Name          string
	ModelID       string
	MeasureColumn string
	Aggregation   Aggregation
	Filters       []MetricFilter
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MaterializedRow is one pre-aggregated snapshot row, keyed by model, date,
// and dimension values. Dimension and measure keys are normalized to
// lowercase at construction so evaluator lookups never rescan keys.
type MaterializedRow struct {
	ModelID    string
	DateValue  string // YYYY-MM-DD
	Dimensions map[string]any
	Measures   map[string]any
}

// NewMaterializedRow builds a row with lowercase-normalized dimension and
// measure keys.
func NewMaterializedRow(modelID, dateValue string, dims, measures map[string]any) MaterializedRow {
	return MaterializedRow{
		ModelID:    modelID,
		DateValue:  dateValue,
		Dimensions: lowerKeys(dims),
		Measures:   lowerKeys(measures),
	}
}

// Measure returns the named measure value, matching case-insensitively.
func (r MaterializedRow) Measure(name string) (any, bool) {
	v, ok := r.Measures[strings.ToLower(name)]
	return v, ok
}

// Dimension returns the named dimension value, matching case-insensitively.
func (r MaterializedRow) Dimension(name string) (any, bool) {
	v, ok := r.Dimensions[strings.ToLower(name)]
	return v, ok
}

func lowerKeys(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// JobStatus is the lifecycle state of a refresh job.
type JobStatus string

// Job lifecycle: pending -> running -> success | error.
// Terminal states are final; a caller retries by creating a new job.
const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusError
}

// RefreshJob is one asynchronous materialization run.
type RefreshJob struct {
	ID            string     `json:"id"`
	ModelID       string     `json:"model_id"`
	Status        JobStatus  `json:"status"`
	Incremental   bool       `json:"incremental"`
	RowsProcessed int64      `json:"rows_processed"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
