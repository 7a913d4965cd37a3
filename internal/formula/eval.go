package formula

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
)

// Sentinel is the cell-visible result of any parse or evaluation failure.
// Formula failures are local: a bad formula yields a bad cell, never an
// error propagated into the caller's rendering path.
const Sentinel = "#ERROR!"

var (
	// ErrEvaluation is returned for any non-cyclic evaluation failure.
	ErrEvaluation = errors.New("formula evaluation failed")
	// ErrCircularRef is returned when a formula's dependencies loop back
	// onto a cell already being evaluated in the same pass.
	ErrCircularRef = errors.New("circular reference")
)

// Accessor resolves a 0-indexed grid coordinate to a scalar cell value.
// nil means the cell is empty.
type Accessor func(row, col int) any

// Evaluator evaluates parsed formulas against a caller-supplied accessor.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator creates an evaluator. A nil logger discards.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Evaluator{logger: logger}
}

// Evaluate parses and evaluates a formula. Any failure comes back as an
// error; callers that render should use Display instead.
func (e *Evaluator) Evaluate(formula string, get Accessor) (float64, error) {
	p := Parse(formula)

	switch p.Kind {
	case KindValue:
		return p.Value, nil
	case KindCall:
		return e.evalCall(p, get)
	case KindExpr:
		return e.evalExpr(p.Text, get)
	}
	return 0, ErrEvaluation
}

// Display evaluates a formula and renders either the numeric result or
// the #ERROR! sentinel.
func (e *Evaluator) Display(formula string, get Accessor) string {
	v, err := e.Evaluate(formula, get)
	if err != nil {
		e.logger.Debug("formula error", "formula", formula, "error", err)
		return Sentinel
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// evalCall evaluates a recognized aggregate function call.
func (e *Evaluator) evalCall(p Parsed, get Accessor) (float64, error) {
	values := e.resolveArgs(p.Args, get)

	switch p.Name {
	case "SUM":
		sum, _ := sumNumeric(values)
		return sum, nil
	case "AVERAGE", "AVG":
		// Empty set averages to 0 rather than trapping on divide-by-zero.
		sum, n := sumNumeric(values)
		if n == 0 {
			return 0, nil
		}
		return sum / float64(n), nil
	case "MAX":
		return foldNumeric(values, func(acc, v float64) float64 {
			if v > acc {
				return v
			}
			return acc
		}), nil
	case "MIN":
		return foldNumeric(values, func(acc, v float64) float64 {
			if v < acc {
				return v
			}
			return acc
		}), nil
	case "COUNT":
		_, n := sumNumeric(values)
		return float64(n), nil
	}
	return 0, fmt.Errorf("%w: unknown function %s", ErrEvaluation, p.Name)
}

// resolveArgs flattens call arguments into raw scalars. Ranges expand to
// every cell in the rectangle, row-major.
func (e *Evaluator) resolveArgs(args []Arg, get Accessor) []any {
	var values []any
	for _, a := range args {
		switch {
		case a.Ref != nil:
			switch r := a.Ref.(type) {
			case CellRef:
				values = append(values, get(r.RowIndex(), r.ColIndex()))
			case RangeRef:
				for _, c := range r.Cells() {
					values = append(values, get(c.RowIndex(), c.ColIndex()))
				}
			}
		case a.Number != nil:
			values = append(values, *a.Number)
		default:
			values = append(values, a.Text)
		}
	}
	return values
}

// evalExpr substitutes cell values into a raw arithmetic expression and
// evaluates it. Any undefined or non-numeric operand fails.
func (e *Evaluator) evalExpr(text string, get Accessor) (float64, error) {
	upper := strings.ToUpper(text)
	substituted := cellRefPattern.ReplaceAllStringFunc(upper, func(m string) string {
		ref, err := ParseCellReference(m)
		if err != nil {
			return m
		}
		v, ok := toNumber(get(ref.RowIndex(), ref.ColIndex()))
		if !ok {
			return "#UNDEF"
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	})
	if strings.Contains(substituted, "#UNDEF") {
		return 0, fmt.Errorf("%w: undefined operand in %q", ErrEvaluation, text)
	}
	return evalArithmetic(substituted)
}

func sumNumeric(values []any) (float64, int) {
	var sum float64
	n := 0
	for _, v := range values {
		if f, ok := toNumber(v); ok {
			sum += f
			n++
		}
	}
	return sum, n
}

func foldNumeric(values []any, fold func(acc, v float64) float64) float64 {
	acc := 0.0
	first := true
	for _, v := range values {
		f, ok := toNumber(v)
		if !ok {
			continue
		}
		if first {
			acc = f
			first = false
			continue
		}
		acc = fold(acc, f)
	}
	return acc
}

// toNumber coerces a cell value to float64. Strings parse leniently,
// stripping thousands separators and surrounding whitespace.
func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
