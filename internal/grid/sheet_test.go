package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable(vals [][]CellValue) *DataTable {
	return &DataTable{
		Kind:     KindForLanguage(LangFormula),
		Language: LangFormula,
		Value:    ArrayValue(vals),
		Run:      &CodeRun{Language: LangFormula, Code: "=x"},
	}
}

func TestSetCellValueStoresAndClears(t *testing.T) {
	s := NewSheet("Sheet1", FirstOrderKey())
	p := Pos{X: 2, Y: 3}

	old := s.SetCellValue(p, Number(42))
	assert.True(t, IsBlank(old))
	assert.True(t, Equal(Number(42), s.CellValue(p)))

	old = s.SetCellValue(p, Blank{})
	assert.True(t, Equal(Number(42), old))
	assert.True(t, IsBlank(s.CellValue(p)))
	assert.Equal(t, 0, s.CellCount())
}

func TestBoundsCoverCellsAndTables(t *testing.T) {
	s := NewSheet("Sheet1", FirstOrderKey())
	_, ok := s.Bounds()
	assert.False(t, ok, "empty sheet has no bounds")

	s.SetCellValue(Pos{X: 1, Y: 1}, Text("a"))
	b, ok := s.Bounds()
	require.True(t, ok)
	assert.Equal(t, SingleRect(Pos{X: 1, Y: 1}), b)

	s.SetTable(Pos{X: 4, Y: 0}, testTable([][]CellValue{
		{Number(1), Number(2)},
		{Number(3), Number(4)},
	}))
	b, ok = s.Bounds()
	require.True(t, ok)
	assert.Equal(t, NewRect(Pos{X: 1, Y: 0}, Pos{X: 5, Y: 1}), b)
}

func TestEachCellRowMajor(t *testing.T) {
	s := NewSheet("Sheet1", FirstOrderKey())
	s.SetCellValue(Pos{X: 3, Y: 0}, Number(2))
	s.SetCellValue(Pos{X: 0, Y: 1}, Number(3))
	s.SetCellValue(Pos{X: 0, Y: 0}, Number(1))

	var got []Pos
	s.EachCell(func(p Pos, _ CellValue) bool {
		got = append(got, p)
		return true
	})
	assert.Equal(t, []Pos{{0, 0}, {3, 0}, {0, 1}}, got)
}

func TestDisplayValueReadsTableOutput(t *testing.T) {
	s := NewSheet("Sheet1", FirstOrderKey())
	s.SetTable(Pos{X: 0, Y: 0}, testTable([][]CellValue{
		{Number(10), Number(20)},
	}))

	assert.True(t, Equal(Number(10), s.DisplayValue(Pos{X: 0, Y: 0})))
	assert.True(t, Equal(Number(20), s.DisplayValue(Pos{X: 1, Y: 0})))
	assert.True(t, IsBlank(s.DisplayValue(Pos{X: 2, Y: 0})), "outside the table")
}

func TestRefreshSpillsFlagsAndClears(t *testing.T) {
	s := NewSheet("Sheet1", FirstOrderKey())
	anchor := Pos{X: 0, Y: 0}
	s.SetTable(anchor, testTable([][]CellValue{
		{Number(1), Number(2), Number(3)},
	}))
	require.Empty(t, s.RefreshSpills(), "nothing in the way")

	// A plain cell lands inside the output rectangle.
	s.SetCellValue(Pos{X: 2, Y: 0}, Text("blocker"))
	changed := s.RefreshSpills()
	require.Len(t, changed, 1)
	tbl, ok := s.Table(anchor)
	require.True(t, ok)
	assert.True(t, tbl.SpillError)

	// The errored table collapses to its anchor and shows #SPILL! there.
	assert.Equal(t, SingleRect(anchor), tbl.Rect(anchor))
	ev, isErr := s.DisplayValue(anchor).(ErrorValue)
	require.True(t, isErr)
	assert.Equal(t, ErrCodeSpill, ev.Code)

	// Removing the blocker clears the flag on the next refresh.
	s.SetCellValue(Pos{X: 2, Y: 0}, Blank{})
	changed = s.RefreshSpills()
	require.Len(t, changed, 1)
	assert.False(t, tbl.SpillError)
	assert.True(t, Equal(Number(3), s.DisplayValue(Pos{X: 2, Y: 0})))
}

func TestRefreshSpillsTableCollision(t *testing.T) {
	s := NewSheet("Sheet1", FirstOrderKey())
	s.SetTable(Pos{X: 0, Y: 0}, testTable([][]CellValue{
		{Number(1), Number(2)},
	}))
	require.Empty(t, s.RefreshSpills())

	s.SetTable(Pos{X: 1, Y: 0}, testTable([][]CellValue{{Number(9)}}))
	changed := s.RefreshSpills()
	require.Len(t, changed, 1, "the wide table loses to the later anchor")

	first, _ := s.Table(Pos{X: 0, Y: 0})
	second, _ := s.Table(Pos{X: 1, Y: 0})
	assert.True(t, first.SpillError)
	assert.False(t, second.SpillError)
}

func TestColRowOverrides(t *testing.T) {
	s := NewSheet("Sheet1", FirstOrderKey())
	assert.Equal(t, DefaultColWidth, s.ColWidth(0))
	assert.Equal(t, DefaultRowHeight, s.RowHeight(0))

	s.SetColWidth(3, 150)
	assert.Equal(t, 150.0, s.ColWidth(3))
	ci, ok := s.ColOverride(3)
	require.True(t, ok)
	assert.NotEmpty(t, ci.ID, "override keeps a stable column identity")

	// Width <= 0 resets to the default and drops the override.
	s.SetColWidth(3, 0)
	assert.Equal(t, DefaultColWidth, s.ColWidth(3))
	_, ok = s.ColOverride(3)
	assert.False(t, ok)

	s.SetRowHeight(5, 42)
	assert.Equal(t, 42.0, s.RowHeight(5))
}

func TestFormats(t *testing.T) {
	s := NewSheet("Sheet1", FirstOrderKey())
	p := Pos{X: 0, Y: 0}
	assert.True(t, s.Format(p).IsZero())

	old := s.SetFormat(p, CellFormat{Bold: true})
	assert.True(t, old.IsZero())
	assert.True(t, s.Format(p).Bold)

	// Zero format clears the entry.
	s.SetFormat(p, CellFormat{})
	assert.True(t, s.Format(p).IsZero())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := NewSheet("Budget", FirstOrderKey())
	s.SetCellValue(Pos{X: 0, Y: 0}, Number(7))
	s.SetCellValue(Pos{X: 2, Y: 5}, Text("hi"))
	s.SetTable(Pos{X: 4, Y: 0}, testTable([][]CellValue{{Number(1)}}))
	s.SetColWidth(1, 80)
	s.SetRowHeight(2, 30)
	s.SetFormat(Pos{X: 0, Y: 0}, CellFormat{Bold: true})

	snap := s.Snapshot()
	got := SheetFromSnapshot(snap)

	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, s.Name, got.Name)
	assert.Equal(t, s.Order, got.Order)
	assert.True(t, Equal(Number(7), got.CellValue(Pos{X: 0, Y: 0})))
	assert.True(t, Equal(Text("hi"), got.CellValue(Pos{X: 2, Y: 5})))
	assert.Equal(t, 80.0, got.ColWidth(1))
	assert.Equal(t, 30.0, got.RowHeight(2))
	assert.True(t, got.Format(Pos{X: 0, Y: 0}).Bold)

	tbl, ok := got.Table(Pos{X: 4, Y: 0})
	require.True(t, ok)
	assert.True(t, Equal(Number(1), tbl.Value.At(0, 0)))

	// Snapshots are deep: mutating the copy leaves the original alone.
	got.SetCellValue(Pos{X: 0, Y: 0}, Number(99))
	assert.True(t, Equal(Number(7), s.CellValue(Pos{X: 0, Y: 0})))
}
