package metric

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/metricgrid-labs/metricgrid/pkg/core"
)

// matchesMetricFilter applies one metric-defined predicate to a row.
// The filter column may name a dimension or a measure; a row without
// the column is excluded.
func matchesMetricFilter(row core.MaterializedRow, f core.MetricFilter) bool {
	v, ok := row.Dimension(f.Column)
	if !ok {
		v, ok = row.Measure(f.Column)
	}
	if !ok {
		return false
	}

	switch f.Operator {
	case core.OpEq:
		return valueEquals(v, f.Value)
	case core.OpNeq:
		return !valueEquals(v, f.Value)
	case core.OpGt, core.OpGte, core.OpLt, core.OpLte:
		return compareNumeric(v, f.Value, f.Operator)
	case core.OpIn:
		return containsValue(f.Value, v)
	case core.OpNotIn:
		return !containsValue(f.Value, v)
	case core.OpLike:
		return matchesLike(v, f.Value)
	default:
		return false
	}
}

// matchesDimensions applies request-supplied dimension filters: scalar
// equality or membership in a list. A row missing a requested dimension
// key is excluded, not treated as a wildcard match.
func matchesDimensions(row core.MaterializedRow, dims map[string]any) bool {
	for name, want := range dims {
		got, ok := row.Dimension(name)
		if !ok {
			return false
		}
		switch w := want.(type) {
		case []string, []any:
			if !containsValue(w, got) {
				return false
			}
		default:
			if !valueEquals(got, want) {
				return false
			}
		}
	}
	return true
}

func valueEquals(a, b any) bool {
	if fa, aok := toFloat(a); aok {
		if fb, bok := toFloat(b); bok {
			return fa == fb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func compareNumeric(v, threshold any, op core.FilterOperator) bool {
	fv, ok := toFloat(v)
	if !ok {
		return false
	}
	ft, ok := toFloat(threshold)
	if !ok {
		return false
	}
	switch op {
	case core.OpGt:
		return fv > ft
	case core.OpGte:
		return fv >= ft
	case core.OpLt:
		return fv < ft
	case core.OpLte:
		return fv <= ft
	default:
		return false
	}
}

func containsValue(list, v any) bool {
	switch l := list.(type) {
	case []string:
		for _, item := range l {
			if valueEquals(v, item) {
				return true
			}
		}
	case []any:
		for _, item := range l {
			if valueEquals(v, item) {
				return true
			}
		}
	}
	return false
}

// matchesLike treats % as a wildcard mapped to .*, case-insensitive.
func matchesLike(v, pattern any) bool {
	p, ok := pattern.(string)
	if !ok {
		return false
	}
	expr := "(?i)^" + strings.ReplaceAll(regexp.QuoteMeta(p), "%", ".*") + "$"
	re, err := regexp.Compile(expr)
	if err != nil {
		return false
	}
	return re.MatchString(fmt.Sprintf("%v", v))
}
