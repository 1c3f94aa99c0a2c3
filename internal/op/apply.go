package op

import (
	"errors"
	"fmt"

	"github.com/roach88/tabula/internal/grid"
)

// ErrNotStoreOp is returned when Apply is handed a ComputeCell. Compute
// operations are consumed by the transaction manager, never by the store.
var ErrNotStoreOp = errors.New("op: compute_cell is not a store operation")

// Thumbnail coverage: edits intersecting this region of a sheet flag it
// for thumbnail regeneration.
var thumbnailRect = grid.Rect{Min: grid.Pos{X: 0, Y: 0}, Max: grid.Pos{X: 31, Y: 47}}

// Result is the outcome of applying one operation.
type Result struct {
	// Reverse undoes the operation relative to the pre-apply state.
	Reverse Operation
	// Dirty lists the regions whose content or appearance changed,
	// including spill flags that flipped as a side effect.
	Dirty []grid.SheetRect
}

// Apply mutates g according to o and returns the inverse operation plus
// the dirtied regions. The switch is exhaustive over the Operation union.
func Apply(g *grid.Grid, o Operation) (Result, error) {
	switch v := o.(type) {
	case SetCellValues:
		return applySetCellValues(g, v)
	case SetDataTable:
		return applySetDataTable(g, v)
	case ComputeCell:
		return Result{}, ErrNotStoreOp
	case AddSheet:
		return applyAddSheet(g, v)
	case DeleteSheet:
		return applyDeleteSheet(g, v)
	case SetSheetName:
		return applySetSheetName(g, v)
	case ReorderSheet:
		return applyReorderSheet(g, v)
	case ResizeColumn:
		return applyResizeColumn(g, v)
	case ResizeRow:
		return applyResizeRow(g, v)
	case SetCellFormats:
		return applySetCellFormats(g, v)
	default:
		return Result{}, fmt.Errorf("op: unknown operation %T", o)
	}
}

func sheetFor(g *grid.Grid, id grid.SheetID) (*grid.Sheet, error) {
	s, ok := g.Sheet(id)
	if !ok {
		return nil, fmt.Errorf("op: sheet %s not found", id)
	}
	return s, nil
}

// markDirty records sr as dirty and flags the sheet thumbnail when the
// visible region is touched.
func markDirty(s *grid.Sheet, dirty []grid.SheetRect, r grid.Rect) []grid.SheetRect {
	if r.Intersects(thumbnailRect) {
		s.ThumbnailDirty = true
	}
	return append(dirty, grid.SheetRect{Sheet: s.ID, Rect: r})
}

func applySetCellValues(g *grid.Grid, o SetCellValues) (Result, error) {
	s, err := sheetFor(g, o.Sheet)
	if err != nil {
		return Result{}, err
	}
	h := int(o.Rect.Height())
	w := int(o.Rect.Width())
	old := make([][]grid.CellValue, h)
	for dy := 0; dy < h; dy++ {
		old[dy] = make([]grid.CellValue, w)
		for dx := 0; dx < w; dx++ {
			p := grid.Pos{X: o.Rect.Min.X + int64(dx), Y: o.Rect.Min.Y + int64(dy)}
			next := grid.CellValue(grid.Blank{})
			if dy < len(o.Values) && dx < len(o.Values[dy]) {
				next = o.Values[dy][dx]
			}
			old[dy][dx] = s.SetCellValue(p, next)
		}
	}
	dirty := markDirty(s, nil, o.Rect)
	for _, r := range s.RefreshSpills() {
		dirty = markDirty(s, dirty, r)
	}
	return Result{
		Reverse: SetCellValues{Sheet: o.Sheet, Rect: o.Rect, Values: old},
		Dirty:   dirty,
	}, nil
}

func applySetDataTable(g *grid.Grid, o SetDataTable) (Result, error) {
	s, err := sheetFor(g, o.Sheet)
	if err != nil {
		return Result{}, err
	}
	var next *grid.DataTable
	if o.Table != nil {
		next = o.Table.Clone()
	}
	old := s.SetTable(o.Pos, next)

	// Dirty the union of the previous and the new occupied rectangles:
	// a table that shrank must still invalidate readers of its old cells.
	region := grid.SingleRect(o.Pos)
	if old != nil {
		region = region.Union(old.Rect(o.Pos))
	}
	if next != nil {
		region = region.Union(next.Rect(o.Pos))
	}
	dirty := markDirty(s, nil, region)
	for _, r := range s.RefreshSpills() {
		dirty = markDirty(s, dirty, r)
	}
	return Result{
		Reverse: SetDataTable{Sheet: o.Sheet, Pos: o.Pos, Table: old.Clone()},
		Dirty:   dirty,
	}, nil
}

func applyAddSheet(g *grid.Grid, o AddSheet) (Result, error) {
	if o.Snapshot == nil {
		return Result{}, fmt.Errorf("op: add_sheet without snapshot")
	}
	s := grid.SheetFromSnapshot(o.Snapshot)
	if err := g.AddSheet(s); err != nil {
		return Result{}, err
	}
	var dirty []grid.SheetRect
	if b, ok := s.Bounds(); ok {
		dirty = markDirty(s, dirty, b)
	}
	return Result{Reverse: DeleteSheet{Sheet: s.ID}, Dirty: dirty}, nil
}

func applyDeleteSheet(g *grid.Grid, o DeleteSheet) (Result, error) {
	s, err := g.DeleteSheet(o.Sheet)
	if err != nil {
		return Result{}, err
	}
	// Readers recorded their reads against this sheet's id, so a dirty
	// region keyed by it still reaches cross-sheet dependents after the
	// sheet is gone.
	var dirty []grid.SheetRect
	if b, ok := s.Bounds(); ok {
		dirty = append(dirty, grid.SheetRect{Sheet: s.ID, Rect: b})
	}
	return Result{Reverse: AddSheet{Snapshot: s.Snapshot()}, Dirty: dirty}, nil
}

func applySetSheetName(g *grid.Grid, o SetSheetName) (Result, error) {
	s, err := sheetFor(g, o.Sheet)
	if err != nil {
		return Result{}, err
	}
	if other, ok := g.SheetByName(o.Name); ok && other.ID != s.ID {
		return Result{}, fmt.Errorf("op: sheet name %q already taken", o.Name)
	}
	old := s.Name
	s.Name = o.Name
	return Result{Reverse: SetSheetName{Sheet: o.Sheet, Name: old}}, nil
}

func applyReorderSheet(g *grid.Grid, o ReorderSheet) (Result, error) {
	s, err := sheetFor(g, o.Sheet)
	if err != nil {
		return Result{}, err
	}
	old := s.Order
	s.Order = o.Order
	return Result{Reverse: ReorderSheet{Sheet: o.Sheet, Order: old}}, nil
}

func applyResizeColumn(g *grid.Grid, o ResizeColumn) (Result, error) {
	s, err := sheetFor(g, o.Sheet)
	if err != nil {
		return Result{}, err
	}
	var oldWidth float64
	if c, ok := s.ColOverride(o.Col); ok {
		oldWidth = c.Width
	}
	s.SetColWidth(o.Col, o.Width)
	return Result{
		Reverse: ResizeColumn{Sheet: o.Sheet, Col: o.Col, Width: oldWidth},
		Dirty:   markDirty(s, nil, colStrip(s, o.Col)),
	}, nil
}

// colStrip is the repaint region for a column resize: the column across
// the sheet's used rows.
func colStrip(s *grid.Sheet, col int64) grid.Rect {
	r := grid.Rect{Min: grid.Pos{X: col, Y: 0}, Max: grid.Pos{X: col, Y: 0}}
	if b, ok := s.Bounds(); ok {
		r.Min.Y = b.Min.Y
		r.Max.Y = b.Max.Y
	}
	return r
}

func rowStrip(s *grid.Sheet, row int64) grid.Rect {
	r := grid.Rect{Min: grid.Pos{X: 0, Y: row}, Max: grid.Pos{X: 0, Y: row}}
	if b, ok := s.Bounds(); ok {
		r.Min.X = b.Min.X
		r.Max.X = b.Max.X
	}
	return r
}

func applyResizeRow(g *grid.Grid, o ResizeRow) (Result, error) {
	s, err := sheetFor(g, o.Sheet)
	if err != nil {
		return Result{}, err
	}
	var oldHeight float64
	if r, ok := s.RowOverride(o.Row); ok {
		oldHeight = r.Height
	}
	s.SetRowHeight(o.Row, o.Height)
	return Result{
		Reverse: ResizeRow{Sheet: o.Sheet, Row: o.Row, Height: oldHeight},
		Dirty:   markDirty(s, nil, rowStrip(s, o.Row)),
	}, nil
}

func applySetCellFormats(g *grid.Grid, o SetCellFormats) (Result, error) {
	s, err := sheetFor(g, o.Sheet)
	if err != nil {
		return Result{}, err
	}
	h := int(o.Rect.Height())
	w := int(o.Rect.Width())
	old := make([][]grid.CellFormat, h)
	for dy := 0; dy < h; dy++ {
		old[dy] = make([]grid.CellFormat, w)
		for dx := 0; dx < w; dx++ {
			p := grid.Pos{X: o.Rect.Min.X + int64(dx), Y: o.Rect.Min.Y + int64(dy)}
			var next grid.CellFormat
			if dy < len(o.Formats) && dx < len(o.Formats[dy]) {
				next = o.Formats[dy][dx]
			}
			old[dy][dx] = s.SetFormat(p, next)
		}
	}
	dirty := markDirty(s, nil, o.Rect)
	return Result{
		Reverse: SetCellFormats{Sheet: o.Sheet, Rect: o.Rect, Formats: old},
		Dirty:   dirty,
	}, nil
}
