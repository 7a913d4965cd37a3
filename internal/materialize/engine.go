// Package materialize refreshes warehouse-sourced model data into the
// application datastore, full or incremental, and drives the
// asynchronous refresh jobs that keep it current.
package materialize

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/metricgrid-labs/metricgrid/internal/warehouse"
	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// Options controls one materialization run. An incremental run rewrites
// only rows whose date falls in [StartDate, EndDate); an empty EndDate
// leaves the window open-ended.
type Options struct {
	Incremental bool
	StartDate   string
	EndDate     string
}

// Datastore is the slice of the application datastore the engine
// writes to.
type Datastore interface {
	DeleteRows(ctx context.Context, modelID string) (int64, error)
	DeleteRowsInRange(ctx context.Context, modelID, start, end string) (int64, error)
	InsertRows(ctx context.Context, rows []core.MaterializedRow) error
}

// Engine executes a model's defining query against the warehouse,
// validates the returned schema, and rewrites the materialized rows.
type Engine struct {
	store  Datastore
	wh     warehouse.Adapter
	logger *slog.Logger
}

// NewEngine creates an engine. A nil logger discards.
func NewEngine(store Datastore, wh warehouse.Adapter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{store: store, wh: wh, logger: logger}
}

// Materialize runs the model's source query and replaces its
// materialized rows. It returns the number of rows written. Schema
// validation happens before any delete or insert, so a failed run
// leaves prior rows untouched.
func (e *Engine) Materialize(ctx context.Context, model *core.ModelDefinition, opts Options) (int64, error) {
	// Without a start date an incremental run would degrade into an
	// unbounded query plus a full delete.
	if opts.Incremental && opts.StartDate == "" {
		return 0, fmt.Errorf("incremental refresh for model %s requires a start date", model.ID)
	}

	query, err := buildModelQuery(model, opts)
	if err != nil {
		return 0, err
	}

	e.logger.Info("materializing model", "model", model.Name, "incremental", opts.Incremental)

	rows, err := e.wh.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("source query failed: %w", err)
	}
	records, err := warehouse.ScanAll(rows)
	if err != nil {
		return 0, fmt.Errorf("source query scan failed: %w", err)
	}

	materialized, err := e.transform(model, records)
	if err != nil {
		return 0, err
	}

	if opts.Incremental && opts.StartDate != "" {
		if _, err := e.store.DeleteRowsInRange(ctx, model.ID, opts.StartDate, opts.EndDate); err != nil {
			return 0, fmt.Errorf("failed to clear incremental window: %w", err)
		}
	} else {
		if _, err := e.store.DeleteRows(ctx, model.ID); err != nil {
			return 0, fmt.Errorf("failed to clear prior rows: %w", err)
		}
	}

	if err := e.store.InsertRows(ctx, materialized); err != nil {
		return 0, fmt.Errorf("failed to insert materialized rows: %w", err)
	}

	e.logger.Info("materialized model", "model", model.Name, "rows", len(materialized))
	return int64(len(materialized)), nil
}

// transform validates the result schema against the model definition
// and converts records to materialized rows. A missing date or measure
// column is fatal; a missing dimension column is only a warning.
func (e *Engine) transform(model *core.ModelDefinition, records []map[string]any) ([]core.MaterializedRow, error) {
	if len(records) == 0 {
		return nil, nil
	}

	columns := make(map[string]string, len(records[0]))
	for col := range records[0] {
		columns[strings.ToLower(col)] = col
	}

	dateCol, ok := columns[strings.ToLower(model.PrimaryDateColumn)]
	if !ok {
		return nil, &core.MaterializationError{
			ModelID: model.ID,
			Column:  model.PrimaryDateColumn,
			Reason:  "date column missing from source query result",
		}
	}
	for _, m := range model.MeasureColumns {
		if _, ok := columns[strings.ToLower(m)]; !ok {
			return nil, &core.MaterializationError{
				ModelID: model.ID,
				Column:  m,
				Reason:  "measure column missing from source query result",
			}
		}
	}
	for _, d := range model.DimensionColumns {
		if _, ok := columns[strings.ToLower(d)]; !ok {
			e.logger.Warn("dimension column missing from source query result",
				"model", model.Name, "column", d)
		}
	}

	out := make([]core.MaterializedRow, 0, len(records))
	for _, rec := range records {
		date, err := normalizeDate(rec[dateCol])
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", model.ID, err)
		}

		var dims map[string]any
		for _, d := range model.DimensionColumns {
			if col, ok := columns[strings.ToLower(d)]; ok {
				if dims == nil {
					dims = make(map[string]any)
				}
				dims[d] = rec[col]
			}
		}
		measures := make(map[string]any, len(model.MeasureColumns))
		for _, m := range model.MeasureColumns {
			measures[m] = rec[columns[strings.ToLower(m)]]
		}

		out = append(out, core.NewMaterializedRow(model.ID, date, dims, measures))
	}
	return out, nil
}

var (
	clauseBoundary = regexp.MustCompile(`(?i)\b(GROUP\s+BY|ORDER\s+BY)\b`)
	wherePattern   = regexp.MustCompile(`(?i)\bWHERE\b`)
)

// buildModelQuery injects the incremental date bounds into the model's
// source query: appended via AND when a WHERE exists, otherwise
// inserted as a WHERE before any GROUP BY / ORDER BY clause.
func buildModelQuery(model *core.ModelDefinition, opts Options) (string, error) {
	query := strings.TrimRight(strings.TrimSpace(model.SourceQuery), ";")
	if err := warehouse.ValidateReadOnly(query); err != nil {
		return "", fmt.Errorf("model %s source query rejected: %w", model.ID, err)
	}

	if !opts.Incremental || opts.StartDate == "" {
		return query, nil
	}

	cond := fmt.Sprintf("%s >= '%s'", model.PrimaryDateColumn, escapeLiteral(opts.StartDate))
	if opts.EndDate != "" {
		cond += fmt.Sprintf(" AND %s < '%s'", model.PrimaryDateColumn, escapeLiteral(opts.EndDate))
	}

	head, tail := query, ""
	if loc := clauseBoundary.FindStringIndex(query); loc != nil {
		head, tail = strings.TrimRight(query[:loc[0]], " \n\t"), " "+query[loc[0]:]
	}

	if wherePattern.MatchString(head) {
		return head + " AND " + cond + tail, nil
	}
	return head + " WHERE " + cond + tail, nil
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// dateLayouts accepted from warehouse results, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// normalizeDate renders any supported source representation as a
// YYYY-MM-DD string.
func normalizeDate(v any) (string, error) {
	switch x := v.(type) {
	case time.Time:
		return x.Format("2006-01-02"), nil
	case string:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				return t.Format("2006-01-02"), nil
			}
		}
		return "", fmt.Errorf("unparseable date value %q", x)
	case []byte:
		return normalizeDate(string(x))
	case nil:
		return "", fmt.Errorf("null date value")
	default:
		return "", fmt.Errorf("unparseable date value %v (%T)", v, v)
	}
}
