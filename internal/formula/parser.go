package formula

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Parsed formula.
type Kind int

const (
	// KindValue is a bare numeric literal.
	KindValue Kind = iota
	// KindCall is a function call like SUM(A1:A3).
	KindCall
	// KindExpr is anything else: an arithmetic expression kept as raw text.
	KindExpr
)

// Arg is one classified argument of a function call. Exactly one of
// Ref/Number is set, or neither and Text carries a bare string.
type Arg struct {
	Ref    Reference
	Number *float64
	Text   string
}

// Parsed is the result of parsing a formula string.
type Parsed struct {
	Kind  Kind
	Value float64 // KindValue
	Name  string  // KindCall: uppercase function name
	Args  []Arg   // KindCall
	Text  string  // KindExpr: the raw expression body
	// References is the flat dependency list: every range plus every
	// standalone cell not already covered by one of the ranges.
	References []Reference
}

var callPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\((.*)\)$`)

// Parse parses a formula string, with or without the leading "=".
func Parse(input string) Parsed {
	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "="))

	if v, err := strconv.ParseFloat(body, 64); err == nil {
		return Parsed{Kind: KindValue, Value: v}
	}

	refs := extractReferences(body)

	if m := callPattern.FindStringSubmatch(body); m != nil && closesAtEnd(m[2]) {
		return Parsed{
			Kind:       KindCall,
			Name:       strings.ToUpper(m[1]),
			Args:       classifyArgs(splitTopLevel(m[2])),
			References: refs,
		}
	}

	return Parsed{Kind: KindExpr, Text: body, References: refs}
}

// Dependencies returns the flat reference list for a formula string.
// Callers use it to know which cells to re-evaluate on upstream change.
func Dependencies(input string) []Reference {
	return Parse(input).References
}

// DependencyCells expands Dependencies into individual cells, ranges
// included, deduplicated.
func DependencyCells(input string) []CellRef {
	seen := make(map[CellRef]bool)
	var cells []CellRef
	for _, ref := range Dependencies(input) {
		switch r := ref.(type) {
		case CellRef:
			if !seen[r] {
				seen[r] = true
				cells = append(cells, r)
			}
		case RangeRef:
			for _, c := range r.Cells() {
				if !seen[c] {
					seen[c] = true
					cells = append(cells, c)
				}
			}
		}
	}
	SortCellRefs(cells)
	return cells
}

// closesAtEnd reports whether the captured argument text keeps the outer
// call's parentheses balanced, so "SUM(A1)+SUM(B1)" is not mistaken for
// a single call named SUM.
func closesAtEnd(args string) bool {
	depth := 0
	for _, ch := range args {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// splitTopLevel splits an argument list on commas at parenthesis depth
// zero, so nested calls are not split apart.
func splitTopLevel(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	var parts []string
	depth := 0
	start := 0
	for i, ch := range args {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(args[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(args[start:]))
	return parts
}

// classifyArgs classifies each raw argument, in order, as a reference,
// then a numeric literal, then a bare string.
func classifyArgs(raw []string) []Arg {
	args := make([]Arg, 0, len(raw))
	for _, a := range raw {
		if rr, err := ParseRangeReference(a); err == nil {
			args = append(args, Arg{Ref: rr})
			continue
		}
		if cr, err := ParseCellReference(a); err == nil {
			args = append(args, Arg{Ref: cr})
			continue
		}
		if v, err := strconv.ParseFloat(a, 64); err == nil {
			n := v
			args = append(args, Arg{Number: &n})
			continue
		}
		args = append(args, Arg{Text: strings.Trim(a, `"'`)})
	}
	return args
}
