package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnIndexRoundTrip(t *testing.T) {
	cases := map[int]string{
		0:   "A",
		1:   "B",
		25:  "Z",
		26:  "AA",
		27:  "AB",
		51:  "AZ",
		52:  "BA",
		701: "ZZ",
		702: "AAA",
	}
	for idx, letters := range cases {
		assert.Equal(t, letters, IndexToColumn(idx), "index %d", idx)
		assert.Equal(t, idx, ColumnToIndex(letters), "letters %s", letters)
	}

	for i := 0; i < 10000; i++ {
		assert.Equal(t, i, ColumnToIndex(IndexToColumn(i)))
	}
}

func TestColumnToIndex_Invalid(t *testing.T) {
	assert.Equal(t, -1, ColumnToIndex(""))
	assert.Equal(t, -1, ColumnToIndex("A1"))
}

func TestParseCellReference(t *testing.T) {
	ref, err := ParseCellReference("A1")
	require.NoError(t, err)
	assert.Equal(t, CellRef{Column: "A", Row: 1}, ref)
	assert.Equal(t, 0, ref.ColIndex())
	assert.Equal(t, 0, ref.RowIndex())

	ref, err = ParseCellReference("ZZ702")
	require.NoError(t, err)
	assert.Equal(t, 701, ref.ColIndex())
	assert.Equal(t, 701, ref.RowIndex())

	_, err = ParseCellReference("1A")
	assert.Error(t, err)
	_, err = ParseCellReference("")
	assert.Error(t, err)
}

func TestParseRangeReference(t *testing.T) {
	r, err := ParseRangeReference("A1:C100")
	require.NoError(t, err)
	assert.Equal(t, CellRef{Column: "A", Row: 1}, r.Start)
	assert.Equal(t, CellRef{Column: "C", Row: 100}, r.End)

	_, err = ParseRangeReference("A1")
	assert.Error(t, err)
}

func TestRangeCells_RowMajor(t *testing.T) {
	r, err := ParseRangeReference("A1:B2")
	require.NoError(t, err)

	cells := r.Cells()
	require.Len(t, cells, 4)
	assert.Equal(t, "A1", cells[0].String())
	assert.Equal(t, "B1", cells[1].String())
	assert.Equal(t, "A2", cells[2].String())
	assert.Equal(t, "B2", cells[3].String())
}

func TestRangeCells_Degenerate(t *testing.T) {
	r := RangeRef{Start: CellRef{"C", 3}, End: CellRef{"C", 3}}
	cells := r.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, "C3", cells[0].String())
}

func TestExtractReferences_RangeEndpointsNotDoubleCounted(t *testing.T) {
	refs := extractReferences("SUM(A1:A3)+B5")
	require.Len(t, refs, 2)

	rr, ok := refs[0].(RangeRef)
	require.True(t, ok)
	assert.Equal(t, "A1:A3", rr.String())

	cr, ok := refs[1].(CellRef)
	require.True(t, ok)
	assert.Equal(t, "B5", cr.String())
}

func TestExtractReferences_CellCoveredByRangeExcluded(t *testing.T) {
	// A2 falls inside A1:A3, so it is not reported as a standalone dep.
	refs := extractReferences("SUM(A1:A3)+A2")
	require.Len(t, refs, 1)
	_, ok := refs[0].(RangeRef)
	assert.True(t, ok)
}
