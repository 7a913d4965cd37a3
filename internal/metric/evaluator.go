package metric

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// Evaluator answers metric requests from the materialized path: it
// aggregates pre-materialized rows stored in the application datastore.
type Evaluator struct {
	catalog Catalog
	logger  *slog.Logger
}

// NewEvaluator creates an evaluator. A nil logger discards.
func NewEvaluator(catalog Catalog, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Evaluator{catalog: catalog, logger: logger}
}

// Evaluate aggregates materialized rows for the metric's model within
// [req.StartDate, req.EndDate). No rows at all yields value 0 with
// NoRows set, a "model not yet refreshed" signal distinct from a true
// zero aggregate.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Result, error) {
	metric, err := e.catalog.GetMetricByName(ctx, req.MetricName)
	if err != nil {
		return nil, err
	}

	rows, err := e.catalog.GetRowsInRange(ctx, metric.ModelID, req.StartDate, req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load materialized rows: %w", err)
	}
	if len(rows) == 0 {
		return &Result{Value: 0, RowsScanned: 0, NoRows: true}, nil
	}

	filtered := rows[:0:0]
	for _, row := range rows {
		keep := true
		for _, f := range metric.Filters {
			if !matchesMetricFilter(row, f) {
				keep = false
				break
			}
		}
		if keep && matchesDimensions(row, req.Dimensions) {
			filtered = append(filtered, row)
		}
	}

	value, err := aggregateRows(filtered, metric.MeasureColumn, metric.Aggregation)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("evaluated metric from materialized rows",
		"metric", req.MetricName, "rows_scanned", len(rows), "rows_matched", len(filtered))

	return &Result{Value: value, RowsScanned: len(rows)}, nil
}

// aggregateRows folds the measure values of the filtered rows.
// count_distinct counts unique raw values; the numeric aggregations
// coerce and skip values that do not coerce.
func aggregateRows(rows []core.MaterializedRow, measure string, agg core.Aggregation) (float64, error) {
	if agg == core.AggCountDistinct {
		seen := make(map[any]struct{})
		for _, row := range rows {
			if v, ok := row.Measure(measure); ok {
				seen[v] = struct{}{}
			}
		}
		return float64(len(seen)), nil
	}

	var sum float64
	var count int
	var minV, maxV float64
	for _, row := range rows {
		raw, ok := row.Measure(measure)
		if !ok {
			continue
		}
		if agg == core.AggCount {
			count++
			continue
		}
		f, ok := toFloat(raw)
		if !ok {
			continue
		}
		if count == 0 {
			minV, maxV = f, f
		} else {
			if f < minV {
				minV = f
			}
			if f > maxV {
				maxV = f
			}
		}
		sum += f
		count++
	}

	switch agg {
	case core.AggSum:
		return sum, nil
	case core.AggAvg:
		if count == 0 {
			return 0, nil
		}
		return sum / float64(count), nil
	case core.AggCount:
		return float64(count), nil
	case core.AggMin:
		return minV, nil
	case core.AggMax:
		return maxV, nil
	default:
		return 0, fmt.Errorf("unknown aggregation %q", agg)
	}
}
