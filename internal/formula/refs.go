// Package formula parses and evaluates spreadsheet-style formulas:
// cell and range references, aggregate function calls, and plain
// arithmetic expressions. Evaluation failures never escape as errors to
// the rendering path; they collapse to the #ERROR! sentinel.
package formula

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	cellRefPattern  = regexp.MustCompile(`([A-Z]+)([0-9]+)`)
	rangeRefPattern = regexp.MustCompile(`([A-Z]+)([0-9]+):([A-Z]+)([0-9]+)`)
)

// CellRef identifies a single cell. Column is the letter form ("A", "ZZ");
// Row is 1-indexed, as written in formulas. Grid-facing coordinates are
// 0-indexed; use ColIndex/RowIndex for those.
type CellRef struct {
	Column string
	Row    int
}

// RangeRef is a rectangular inclusive range. Start == End is allowed.
type RangeRef struct {
	Start CellRef
	End   CellRef
}

// Reference is either a CellRef or a RangeRef.
type Reference interface {
	refNode()
}

func (CellRef) refNode()  {}
func (RangeRef) refNode() {}

// ColIndex returns the 0-based column index for the reference.
func (c CellRef) ColIndex() int {
	return ColumnToIndex(c.Column)
}

// RowIndex returns the 0-based row index for the reference.
func (c CellRef) RowIndex() int {
	return c.Row - 1
}

// String renders the reference back in formula form ("A1").
func (c CellRef) String() string {
	return fmt.Sprintf("%s%d", c.Column, c.Row)
}

// String renders the range in formula form ("A1:C10").
func (r RangeRef) String() string {
	return r.Start.String() + ":" + r.End.String()
}

// ColumnToIndex converts column letters to a 0-based index using bijective
// base-26: A=0, Z=25, AA=26, ZZ=701. Returns -1 for invalid input.
func ColumnToIndex(letters string) int {
	if letters == "" {
		return -1
	}
	n := 0
	for _, ch := range strings.ToUpper(letters) {
		if ch < 'A' || ch > 'Z' {
			return -1
		}
		n = n*26 + int(ch-'A') + 1
	}
	return n - 1
}

// IndexToColumn is the exact inverse of ColumnToIndex.
func IndexToColumn(index int) string {
	if index < 0 {
		return ""
	}
	var b []byte
	n := index + 1
	for n > 0 {
		rem := (n - 1) % 26
		b = append([]byte{byte('A' + rem)}, b...)
		n = (n - 1) / 26
	}
	return string(b)
}

// ParseCellReference parses a single cell reference like "A1".
func ParseCellReference(s string) (CellRef, error) {
	m := cellRefPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil || m[0] != strings.ToUpper(strings.TrimSpace(s)) {
		return CellRef{}, fmt.Errorf("invalid cell reference: %q", s)
	}
	row := 0
	for _, d := range m[2] {
		row = row*10 + int(d-'0')
	}
	if row < 1 {
		return CellRef{}, fmt.Errorf("invalid cell reference: %q", s)
	}
	return CellRef{Column: m[1], Row: row}, nil
}

// ParseRangeReference parses a range reference like "A1:C100".
func ParseRangeReference(s string) (RangeRef, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return RangeRef{}, fmt.Errorf("invalid range reference: %q", s)
	}
	start, err := ParseCellReference(parts[0])
	if err != nil {
		return RangeRef{}, err
	}
	end, err := ParseCellReference(parts[1])
	if err != nil {
		return RangeRef{}, err
	}
	return RangeRef{Start: start, End: end}, nil
}

// Cells expands the range to every cell in the rectangle, row-major.
func (r RangeRef) Cells() []CellRef {
	c1, c2 := r.Start.ColIndex(), r.End.ColIndex()
	r1, r2 := r.Start.Row, r.End.Row
	if c2 < c1 {
		c1, c2 = c2, c1
	}
	if r2 < r1 {
		r1, r2 = r2, r1
	}
	var cells []CellRef
	for row := r1; row <= r2; row++ {
		for col := c1; col <= c2; col++ {
			cells = append(cells, CellRef{Column: IndexToColumn(col), Row: row})
		}
	}
	return cells
}

// Contains reports whether the range covers the given cell.
func (r RangeRef) Contains(c CellRef) bool {
	c1, c2 := r.Start.ColIndex(), r.End.ColIndex()
	r1, r2 := r.Start.Row, r.End.Row
	if c2 < c1 {
		c1, c2 = c2, c1
	}
	if r2 < r1 {
		r1, r2 = r2, r1
	}
	ci := c.ColIndex()
	return ci >= c1 && ci <= c2 && c.Row >= r1 && c.Row <= r2
}

// span marks a consumed region of the formula text.
type span struct{ start, end int }

// extractReferences pulls all range and cell references out of a formula
// body. Ranges are matched first; a bare cell match inside an already
// matched range span is skipped so a range endpoint is not double-counted
// as a standalone dependency. Single cells covered by an extracted range
// are excluded from the flat cell list as well.
func extractReferences(body string) []Reference {
	upper := strings.ToUpper(body)

	var refs []Reference
	var consumed []span
	var ranges []RangeRef

	for _, loc := range rangeRefPattern.FindAllStringSubmatchIndex(upper, -1) {
		text := upper[loc[0]:loc[1]]
		rr, err := ParseRangeReference(text)
		if err != nil {
			continue
		}
		refs = append(refs, rr)
		ranges = append(ranges, rr)
		consumed = append(consumed, span{loc[0], loc[1]})
	}

	for _, loc := range cellRefPattern.FindAllStringIndex(upper, -1) {
		if overlaps(consumed, loc[0], loc[1]) {
			continue
		}
		cr, err := ParseCellReference(upper[loc[0]:loc[1]])
		if err != nil {
			continue
		}
		covered := false
		for _, rr := range ranges {
			if rr.Contains(cr) {
				covered = true
				break
			}
		}
		if !covered {
			refs = append(refs, cr)
		}
	}

	return refs
}

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

// SortCellRefs orders cells column-major then by row, for deterministic
// dependency lists.
func SortCellRefs(cells []CellRef) {
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Row != cells[j].Row {
			return cells[i].Row < cells[j].Row
		}
		return cells[i].ColIndex() < cells[j].ColIndex()
	})
}
