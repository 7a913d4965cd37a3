package metric

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/metricgrid-labs/metricgrid/internal/cache"
	"github.com/metricgrid-labs/metricgrid/internal/timectx"
	"github.com/metricgrid-labs/metricgrid/internal/warehouse"
	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

const defaultCacheTTL = 5 * time.Minute

// UnknownDimensionError reports a requested dimension the model does
// not expose for filtering.
type UnknownDimensionError struct {
	Dimension string
	Model     string
}

func (e *UnknownDimensionError) Error() string {
	return fmt.Sprintf("unknown dimension %q for model %s", e.Dimension, e.Model)
}

// cachedValue is the cache payload: the filled value plus the no-rows
// marker, so a hit reports the same signal as the miss that stored it.
type cachedValue struct {
	Value  float64 `json:"v"`
	NoRows bool    `json:"n,omitempty"`
}

// Resolver answers metric requests from the live-query path: cache
// lookup, then an aggregation query against the warehouse on a miss.
type Resolver struct {
	catalog Catalog
	cache   *cache.Client
	wh      warehouse.Adapter
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewResolver creates a resolver. A non-positive ttl falls back to the
// default cache TTL; a nil logger discards.
func NewResolver(catalog Catalog, cacheClient *cache.Client, wh warehouse.Adapter, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		catalog: catalog,
		cache:   cacheClient,
		wh:      wh,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// FetchMetric resolves one metric value over [req.StartDate,
// req.EndDate). Unknown metric names return core.ErrMetricNotFound.
func (r *Resolver) FetchMetric(ctx context.Context, org string, req Request) (*Result, error) {
	started := r.now()

	metric, err := r.catalog.GetMetricByName(ctx, req.MetricName)
	if err != nil {
		return nil, err
	}
	model, err := r.catalog.GetModel(ctx, metric.ModelID)
	if err != nil {
		return nil, err
	}

	key := cache.BuildKey("metric", org, map[string]any{
		"name":  req.MetricName,
		"grain": string(req.Grain),
		"start": req.StartDate,
		"end":   req.EndDate,
		"dims":  req.Dimensions,
	})

	if raw, found := r.cache.Get(ctx, key); found {
		var cv cachedValue
		if err := json.Unmarshal(raw, &cv); err == nil {
			return &Result{
				Value:     cv.Value,
				NoRows:    cv.NoRows,
				Cached:    true,
				ElapsedMs: r.now().Sub(started).Milliseconds(),
			}, nil
		}
	}

	query, err := buildAggregationQuery(metric, model, req)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("running live metric query", "metric", req.MetricName, "start", req.StartDate, "end", req.EndDate)

	rows, err := r.wh.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("metric query failed: %w", err)
	}
	records, err := warehouse.ScanAll(rows)
	if err != nil {
		return nil, fmt.Errorf("metric query scan failed: %w", err)
	}

	value, noRows := extractValue(records)

	if payload, err := json.Marshal(cachedValue{Value: value, NoRows: noRows}); err == nil {
		r.cache.Set(ctx, key, payload, r.ttl)
	}

	return &Result{
		Value:     value,
		NoRows:    noRows,
		Cached:    false,
		ElapsedMs: r.now().Sub(started).Milliseconds(),
	}, nil
}

// FetchMetricRange fans out one FetchMetric call per period and returns
// results in period order. The second return is true only when every
// sub-fetch was a cache hit.
func (r *Resolver) FetchMetricRange(ctx context.Context, org string, req Request, periods []timectx.DatePeriod) ([]Result, bool, error) {
	results := make([]Result, len(periods))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range periods {
		i, p := i, p
		sub := req
		sub.StartDate = p.Start.Format("2006-01-02")
		sub.EndDate = p.End.Format("2006-01-02")
		g.Go(func() error {
			res, err := r.FetchMetric(gctx, org, sub)
			if err != nil {
				return fmt.Errorf("period %s: %w", p.Key(), err)
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	allCached := len(results) > 0
	for _, res := range results {
		if !res.Cached {
			allCached = false
			break
		}
	}
	return results, allCached, nil
}

// buildAggregationQuery wraps the model's source query in an aggregate
// over the measure column, bounded to [start, end) on the date column
// with one equality or membership clause per requested dimension.
func buildAggregationQuery(metric *core.MetricDefinition, model *core.ModelDefinition, req Request) (string, error) {
	if err := warehouse.ValidateReadOnly(model.SourceQuery); err != nil {
		return "", fmt.Errorf("model %s source query rejected: %w", model.ID, err)
	}

	agg, err := aggregateExpr(metric.Aggregation, metric.MeasureColumn)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s AS value FROM (%s) AS src WHERE %s >= '%s' AND %s < '%s'",
		agg, strings.TrimRight(strings.TrimSpace(model.SourceQuery), ";"),
		model.PrimaryDateColumn, escapeLiteral(req.StartDate),
		model.PrimaryDateColumn, escapeLiteral(req.EndDate))

	// Dimension names go into the SQL verbatim, so only columns the
	// model declares are accepted; values are escaped below.
	allowed := make(map[string]bool, len(model.DimensionColumns))
	for _, d := range model.DimensionColumns {
		allowed[strings.ToLower(d)] = true
	}

	// Deterministic clause order keeps generated SQL stable.
	dims := make([]string, 0, len(req.Dimensions))
	for name := range req.Dimensions {
		if !allowed[strings.ToLower(name)] {
			return "", &UnknownDimensionError{Dimension: name, Model: model.Name}
		}
		dims = append(dims, name)
	}
	sort.Strings(dims)

	for _, name := range dims {
		switch v := req.Dimensions[name].(type) {
		case []string:
			quoted := make([]string, len(v))
			for i, s := range v {
				quoted[i] = "'" + escapeLiteral(s) + "'"
			}
			fmt.Fprintf(&b, " AND %s IN (%s)", name, strings.Join(quoted, ", "))
		default:
			fmt.Fprintf(&b, " AND %s = '%s'", name, escapeLiteral(fmt.Sprintf("%v", v)))
		}
	}

	return b.String(), nil
}

func aggregateExpr(agg core.Aggregation, column string) (string, error) {
	switch agg {
	case core.AggSum:
		return fmt.Sprintf("SUM(%s)", column), nil
	case core.AggAvg:
		return fmt.Sprintf("AVG(%s)", column), nil
	case core.AggCount:
		return fmt.Sprintf("COUNT(%s)", column), nil
	case core.AggCountDistinct:
		return fmt.Sprintf("COUNT(DISTINCT %s)", column), nil
	case core.AggMin:
		return fmt.Sprintf("MIN(%s)", column), nil
	case core.AggMax:
		return fmt.Sprintf("MAX(%s)", column), nil
	default:
		return "", fmt.Errorf("unknown aggregation %q", agg)
	}
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// extractValue pulls the aggregate out of the result set. An empty set
// or a null aggregate fills with zero and reports noRows.
func extractValue(records []map[string]any) (float64, bool) {
	if len(records) == 0 {
		return 0, true
	}
	v, ok := records[0]["value"]
	if !ok || v == nil {
		return 0, true
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, true
	}
	return f, false
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
