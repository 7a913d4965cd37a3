package formula

import (
	"errors"
	"fmt"
	"strings"
)

// ContentFunc returns the raw content of a cell at a 0-indexed grid
// coordinate: a literal scalar, a formula string starting with "=", or
// nil for an empty cell.
type ContentFunc func(row, col int) any

// Session evaluates formulas over a grid whose cells may themselves hold
// formulas. It tracks the set of cells in progress for the current
// evaluation pass so a dependency cycle fails with ErrCircularRef
// instead of recursing forever.
type Session struct {
	eval     *Evaluator
	content  ContentFunc
	visiting map[CellRef]bool
	resolved map[CellRef]float64
	// cycleErr is set when a referenced cell turns out to be cyclic;
	// the Accessor signature cannot carry it, so it is checked after
	// the evaluation returns.
	cycleErr error
}

// NewSession starts an evaluation pass over the given grid content.
func (e *Evaluator) NewSession(content ContentFunc) *Session {
	return &Session{
		eval:     e,
		content:  content,
		visiting: make(map[CellRef]bool),
		resolved: make(map[CellRef]float64),
	}
}

// Evaluate evaluates a formula in the context of the session's grid.
func (s *Session) Evaluate(formula string) (float64, error) {
	s.cycleErr = nil
	v, err := s.eval.Evaluate(formula, s.cellValue)
	if s.cycleErr != nil {
		return 0, s.cycleErr
	}
	return v, err
}

// Display evaluates a formula and renders the value or the sentinel.
func (s *Session) Display(formula string) string {
	v, err := s.Evaluate(formula)
	if err != nil {
		return Sentinel
	}
	return trimFloat(v)
}

// EvaluateCell evaluates the cell at a 0-indexed coordinate, resolving
// formula cells recursively.
func (s *Session) EvaluateCell(row, col int) (float64, error) {
	s.cycleErr = nil
	ref := CellRef{Column: IndexToColumn(col), Row: row + 1}
	return s.resolveCell(ref)
}

func (s *Session) resolveCell(ref CellRef) (float64, error) {
	if v, ok := s.resolved[ref]; ok {
		return v, nil
	}
	if s.visiting[ref] {
		return 0, fmt.Errorf("%w at %s", ErrCircularRef, ref)
	}

	raw := s.content(ref.RowIndex(), ref.ColIndex())
	if str, ok := raw.(string); ok && strings.HasPrefix(strings.TrimSpace(str), "=") {
		s.visiting[ref] = true
		defer delete(s.visiting, ref)

		v, err := s.eval.Evaluate(str, s.cellValue)
		if err != nil {
			if s.cycleErr != nil {
				return 0, s.cycleErr
			}
			return 0, err
		}
		s.resolved[ref] = v
		return v, nil
	}

	v, ok := toNumber(raw)
	if !ok {
		return 0, fmt.Errorf("%w: non-numeric cell %s", ErrEvaluation, ref)
	}
	s.resolved[ref] = v
	return v, nil
}

// cellValue is the Accessor the session hands to the evaluator. A formula
// cell resolves to its evaluated value; an unresolvable cell resolves to
// nil so aggregate functions skip it, except that a cycle poisons the
// cell to a non-numeric marker which fails raw expressions.
func (s *Session) cellValue(row, col int) any {
	ref := CellRef{Column: IndexToColumn(col), Row: row + 1}
	raw := s.content(row, col)
	str, ok := raw.(string)
	if !ok || !strings.HasPrefix(strings.TrimSpace(str), "=") {
		return raw
	}
	v, err := s.resolveCell(ref)
	if err != nil {
		if errors.Is(err, ErrCircularRef) && s.cycleErr == nil {
			s.cycleErr = err
		}
		return nil
	}
	return v
}

func trimFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}
