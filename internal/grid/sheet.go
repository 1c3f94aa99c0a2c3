package grid

import (
	"github.com/google/btree"
)

// Default offsets, in display units (pixels).
const (
	DefaultColWidth  = 100.0
	DefaultRowHeight = 21.0
)

// CellFormat is the per-cell formatting override. The zero value means
// "no formatting".
type CellFormat struct {
	Bold         bool   `json:"bold,omitempty"`
	Italic       bool   `json:"italic,omitempty"`
	Align        string `json:"align,omitempty"`
	NumberFormat string `json:"number_format,omitempty"`
}

// IsZero reports whether f carries no overrides.
func (f CellFormat) IsZero() bool {
	return f == CellFormat{}
}

// ColumnInfo is a sparse column override: a stable identity plus a width.
type ColumnInfo struct {
	ID    ColumnID `json:"id"`
	Width float64  `json:"width"`
}

// RowInfo is a sparse row override: a stable identity plus a height.
type RowInfo struct {
	ID     RowID   `json:"id"`
	Height float64 `json:"height"`
}

// Sheet is one grid tab: sparse cell values, data tables anchored at
// positions, sparse column/row offsets, and per-cell formats.
//
// The position index (a btree ordered row-major) shadows the cells map so
// iteration and bounds recomputation run in cell order without sorting.
// Sheets are not safe for concurrent mutation; the engine is the single
// writer.
type Sheet struct {
	ID    SheetID
	Name  string
	Order string // fractional-index key controlling tab order

	cells   map[Pos]CellValue
	index   *btree.BTreeG[Pos]
	tables  map[Pos]*DataTable
	cols    map[int64]ColumnInfo
	rows    map[int64]RowInfo
	formats map[Pos]CellFormat

	bounds      Rect
	boundsValid bool
	boundsOK    bool // false when the sheet is empty

	// ThumbnailDirty is set when an applied operation touches the visible
	// region; the renderer clears it after regenerating.
	ThumbnailDirty bool
}

// NewSheet creates an empty sheet with a fresh id.
func NewSheet(name, order string) *Sheet {
	return &Sheet{
		ID:      NewSheetID(),
		Name:    name,
		Order:   order,
		cells:   make(map[Pos]CellValue),
		index:   btree.NewG(32, Pos.Less),
		tables:  make(map[Pos]*DataTable),
		cols:    make(map[int64]ColumnInfo),
		rows:    make(map[int64]RowInfo),
		formats: make(map[Pos]CellFormat),
	}
}

// CellValue returns the stored value at p, Blank if unset. Table outputs
// are not visible through this accessor; use DisplayValue.
func (s *Sheet) CellValue(p Pos) CellValue {
	if v, ok := s.cells[p]; ok {
		return v
	}
	return Blank{}
}

// SetCellValue stores v at p and returns the previous value. Storing
// Blank clears the cell. Invalidates cached bounds.
func (s *Sheet) SetCellValue(p Pos, v CellValue) CellValue {
	old := s.CellValue(p)
	if IsBlank(v) {
		if _, ok := s.cells[p]; ok {
			delete(s.cells, p)
			s.index.Delete(p)
		}
	} else {
		if _, ok := s.cells[p]; !ok {
			s.index.ReplaceOrInsert(p)
		}
		s.cells[p] = v
	}
	s.boundsValid = false
	return old
}

// DisplayValue returns what the user sees at p: a table's output if p
// lies inside one, otherwise the stored cell value.
func (s *Sheet) DisplayValue(p Pos) CellValue {
	if anchor, t, ok := s.TableAt(p); ok {
		return t.DisplayValue(p.X-anchor.X, p.Y-anchor.Y)
	}
	return s.CellValue(p)
}

// Table returns the table anchored exactly at p.
func (s *Sheet) Table(p Pos) (*DataTable, bool) {
	t, ok := s.tables[p]
	return t, ok
}

// TableAt returns the table whose occupied rectangle covers p, along with
// its anchor.
func (s *Sheet) TableAt(p Pos) (Pos, *DataTable, bool) {
	if t, ok := s.tables[p]; ok {
		return p, t, true
	}
	for anchor, t := range s.tables {
		if t.Rect(anchor).Contains(p) {
			return anchor, t, true
		}
	}
	return Pos{}, nil, false
}

// SetTable anchors t at p, replacing any table already anchored there,
// and returns the previous table (nil if none). Passing nil deletes.
// Invalidates cached bounds. Spill state is the caller's concern; see
// RefreshSpills.
func (s *Sheet) SetTable(p Pos, t *DataTable) *DataTable {
	old := s.tables[p]
	if t == nil {
		delete(s.tables, p)
	} else {
		s.tables[p] = t
	}
	s.boundsValid = false
	return old
}

// Tables iterates all tables in anchor row-major order via fn; fn
// returning false stops early.
func (s *Sheet) Tables(fn func(anchor Pos, t *DataTable) bool) {
	anchors := s.tableAnchors()
	for _, a := range anchors {
		if !fn(a, s.tables[a]) {
			return
		}
	}
}

func (s *Sheet) tableAnchors() []Pos {
	anchors := make([]Pos, 0, len(s.tables))
	for a := range s.tables {
		anchors = append(anchors, a)
	}
	// insertion sort; anchor counts are small
	for i := 1; i < len(anchors); i++ {
		for j := i; j > 0 && anchors[j].Less(anchors[j-1]); j-- {
			anchors[j], anchors[j-1] = anchors[j-1], anchors[j]
		}
	}
	return anchors
}

// spillObstructed reports whether anchoring a table of rectangle r at
// anchor would collide with another table or a non-blank plain cell
// outside the anchor itself.
func (s *Sheet) spillObstructed(anchor Pos, r Rect) bool {
	for other, t := range s.tables {
		if other == anchor {
			continue
		}
		if t.Rect(other).Intersects(r) {
			return true
		}
	}
	if r.Width() == 1 && r.Height() == 1 {
		return false
	}
	for p := range r.Positions() {
		if p == anchor {
			continue
		}
		if !IsBlank(s.CellValue(p)) {
			return true
		}
	}
	return false
}

// RefreshSpills re-derives every table's spill flag against current
// content and returns the rectangles of tables whose flag flipped.
// Spill state is derived, not logged: replaying the operations that
// created or removed an obstruction re-derives the same flags.
func (s *Sheet) RefreshSpills() []Rect {
	var changed []Rect
	for _, anchor := range s.tableAnchors() {
		t := s.tables[anchor]
		// Judge obstruction against the full (non-errored) output rect.
		full := t
		if t.SpillError {
			clear := *t
			clear.SpillError = false
			full = &clear
		}
		want := full.Rect(anchor)
		obstructed := s.spillObstructed(anchor, want)
		if obstructed != t.SpillError {
			t.SpillError = obstructed
			changed = append(changed, want)
			s.boundsValid = false
		}
	}
	return changed
}

// ColWidth returns the effective width of column x.
func (s *Sheet) ColWidth(x int64) float64 {
	if c, ok := s.cols[x]; ok {
		return c.Width
	}
	return DefaultColWidth
}

// ColOverride returns the explicit override for column x, if any.
func (s *Sheet) ColOverride(x int64) (ColumnInfo, bool) {
	c, ok := s.cols[x]
	return c, ok
}

// SetColWidth sets or clears (width <= 0) the override for column x.
func (s *Sheet) SetColWidth(x int64, width float64) {
	if width <= 0 {
		delete(s.cols, x)
		return
	}
	c, ok := s.cols[x]
	if !ok {
		c = ColumnInfo{ID: NewColumnID()}
	}
	c.Width = width
	s.cols[x] = c
}

// RowHeight returns the effective height of row y.
func (s *Sheet) RowHeight(y int64) float64 {
	if r, ok := s.rows[y]; ok {
		return r.Height
	}
	return DefaultRowHeight
}

// RowOverride returns the explicit override for row y, if any.
func (s *Sheet) RowOverride(y int64) (RowInfo, bool) {
	r, ok := s.rows[y]
	return r, ok
}

// SetRowHeight sets or clears (height <= 0) the override for row y.
func (s *Sheet) SetRowHeight(y int64, height float64) {
	if height <= 0 {
		delete(s.rows, y)
		return
	}
	r, ok := s.rows[y]
	if !ok {
		r = RowInfo{ID: NewRowID()}
	}
	r.Height = height
	s.rows[y] = r
}

// Format returns the format at p (zero value if unset).
func (s *Sheet) Format(p Pos) CellFormat {
	return s.formats[p]
}

// SetFormat stores f at p and returns the previous format. A zero format
// clears the entry.
func (s *Sheet) SetFormat(p Pos, f CellFormat) CellFormat {
	old := s.formats[p]
	if f.IsZero() {
		delete(s.formats, p)
	} else {
		s.formats[p] = f
	}
	return old
}

// EachCell visits stored (non-blank) cells in row-major order; fn
// returning false stops early.
func (s *Sheet) EachCell(fn func(p Pos, v CellValue) bool) {
	s.index.Ascend(func(p Pos) bool {
		return fn(p, s.cells[p])
	})
}

// CellCount returns the number of stored cells.
func (s *Sheet) CellCount() int {
	return len(s.cells)
}

// TableCount returns the number of anchored tables.
func (s *Sheet) TableCount() int {
	return len(s.tables)
}

// Bounds returns the finite bounding rectangle of stored cells and table
// outputs, recomputed lazily after edits. ok is false for an empty sheet.
func (s *Sheet) Bounds() (r Rect, ok bool) {
	if s.boundsValid {
		return s.bounds, s.boundsOK
	}
	s.boundsValid = true
	s.boundsOK = false
	s.index.Ascend(func(p Pos) bool {
		pr := SingleRect(p)
		if !s.boundsOK {
			s.bounds, s.boundsOK = pr, true
		} else {
			s.bounds = s.bounds.Union(pr)
		}
		return true
	})
	for anchor, t := range s.tables {
		tr := t.Rect(anchor)
		if !s.boundsOK {
			s.bounds, s.boundsOK = tr, true
		} else {
			s.bounds = s.bounds.Union(tr)
		}
	}
	return s.bounds, s.boundsOK
}
