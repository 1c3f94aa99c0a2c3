package grid

import (
	"encoding/json"
	"fmt"
)

// Language identifies how a data table's code is evaluated.
type Language string

const (
	// LangFormula is the built-in formula language: synchronous, never suspends.
	LangFormula Language = "formula"
	// LangPython runs on the external Python interpreter.
	LangPython Language = "python"
	// LangJavascript runs on the external JavaScript interpreter.
	LangJavascript Language = "javascript"
	// LangConnection queries an external database connector.
	LangConnection Language = "connection"
)

// Async reports whether evaluation in this language goes through the
// suspend/resume bridge. Formulas evaluate inline.
func (l Language) Async() bool {
	return l != LangFormula && l != ""
}

// TableKind is the source kind of a data table.
type TableKind string

const (
	TableFormula    TableKind = "formula"
	TableScript     TableKind = "script"
	TableImport     TableKind = "import"
	TableConnection TableKind = "connection"
)

// KindForLanguage maps a code language to its table source kind.
func KindForLanguage(l Language) TableKind {
	switch l {
	case LangFormula:
		return TableFormula
	case LangConnection:
		return TableConnection
	default:
		return TableScript
	}
}

// Value is a data table's computed output: either a single cell value or
// a row-major 2-D array. The zero Value is a scalar Blank.
type Value struct {
	single CellValue
	cells  [][]CellValue
}

// ScalarValue wraps a single cell value.
func ScalarValue(v CellValue) Value {
	return Value{single: v}
}

// ArrayValue wraps a row-major matrix. Rows must be equal length and
// non-empty; a 1x1 matrix is still an array value (it spills one cell).
func ArrayValue(cells [][]CellValue) Value {
	return Value{cells: cells}
}

// IsArray reports whether v holds a matrix rather than a scalar.
func (v Value) IsArray() bool {
	return v.cells != nil
}

// Size returns the width and height of the output in cells.
func (v Value) Size() (w, h int64) {
	if v.cells == nil {
		return 1, 1
	}
	h = int64(len(v.cells))
	if h > 0 {
		w = int64(len(v.cells[0]))
	}
	return w, h
}

// At returns the value at array offset (x, y). For scalars only (0, 0)
// is valid. Out-of-range reads return Blank.
func (v Value) At(x, y int64) CellValue {
	if v.cells == nil {
		if x == 0 && y == 0 {
			return blankOr(v.single)
		}
		return Blank{}
	}
	if y < 0 || y >= int64(len(v.cells)) {
		return Blank{}
	}
	row := v.cells[y]
	if x < 0 || x >= int64(len(row)) {
		return Blank{}
	}
	return blankOr(row[x])
}

func blankOr(v CellValue) CellValue {
	if v == nil {
		return Blank{}
	}
	return v
}

type valueWire struct {
	Single json.RawMessage `json:"single,omitempty"`
	Cells  json.RawMessage `json:"cells,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var w valueWire
	if v.cells != nil {
		raw, err := MarshalCellMatrix(v.cells)
		if err != nil {
			return nil, err
		}
		w.Cells = raw
	} else {
		raw, err := MarshalCellValue(blankOr(v.single))
		if err != nil {
			return nil, err
		}
		w.Single = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w valueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal table value: %w", err)
	}
	if w.Cells != nil {
		cells, err := UnmarshalCellMatrix(w.Cells)
		if err != nil {
			return err
		}
		*v = Value{cells: cells}
		return nil
	}
	single := CellValue(Blank{})
	if w.Single != nil {
		s, err := UnmarshalCellValue(w.Single)
		if err != nil {
			return err
		}
		single = s
	}
	*v = Value{single: single}
	return nil
}

// RunError is a structured code execution failure, surfaced to the user
// as the table's display value.
type RunError struct {
	Msg  string `json:"msg"`
	Line int    `json:"line,omitempty"` // 1-based source line, 0 if unknown
}

func (e *RunError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s (line %d)", e.Msg, e.Line)
	}
	return e.Msg
}

// CodeRun records the last execution of a code-bearing table: what ran,
// what it printed, exactly which cells it read, and how it failed if it did.
// CellsAccessed drives the recompute scheduler.
type CodeRun struct {
	Language      Language    `json:"language"`
	Code          string      `json:"code"`
	StdOut        string      `json:"std_out,omitempty"`
	StdErr        string      `json:"std_err,omitempty"`
	CellsAccessed []SheetRect `json:"cells_accessed,omitempty"`
	Err           *RunError   `json:"err,omitempty"`
}

// ReadsFrom reports whether any recorded read intersects sr.
func (r *CodeRun) ReadsFrom(sr SheetRect) bool {
	if r == nil {
		return false
	}
	for _, read := range r.CellsAccessed {
		if read.Intersects(sr) {
			return true
		}
	}
	return false
}

// DataTable is a rectangular computed output anchored at a cell. At most
// one table may claim a given anchor, and occupied rectangles of distinct
// tables may not overlap (SpillError is set instead of overwriting).
type DataTable struct {
	Name       string    `json:"name,omitempty"`
	Kind       TableKind `json:"kind"`
	Language   Language  `json:"language"`
	Value      Value     `json:"value"`
	SpillError bool      `json:"spill_error,omitempty"`
	Run        *CodeRun  `json:"run,omitempty"`
}

// Rect returns the rectangle the table occupies when anchored at anchor.
// A spill-errored table collapses to its anchor cell.
func (t *DataTable) Rect(anchor Pos) Rect {
	if t.SpillError {
		return SingleRect(anchor)
	}
	w, h := t.Value.Size()
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return Rect{Min: anchor, Max: Pos{X: anchor.X + w - 1, Y: anchor.Y + h - 1}}
}

// DisplayValue returns the value shown at array offset (x, y) of the
// table, accounting for spill and run errors at the anchor.
func (t *DataTable) DisplayValue(x, y int64) CellValue {
	if x == 0 && y == 0 {
		if t.SpillError {
			return ErrorValue{Code: ErrCodeSpill, Msg: "output overlaps existing content"}
		}
		if t.Run != nil && t.Run.Err != nil {
			return ErrorValue{Code: ErrCodeRun, Msg: t.Run.Err.Msg}
		}
	}
	if t.SpillError {
		return Blank{}
	}
	return t.Value.At(x, y)
}

// Clone returns a deep copy. Tables are cloned when captured into reverse
// operations so later mutation cannot alias history.
func (t *DataTable) Clone() *DataTable {
	if t == nil {
		return nil
	}
	c := *t
	if t.Run != nil {
		run := *t.Run
		if t.Run.CellsAccessed != nil {
			run.CellsAccessed = make([]SheetRect, len(t.Run.CellsAccessed))
			copy(run.CellsAccessed, t.Run.CellsAccessed)
		}
		if t.Run.Err != nil {
			e := *t.Run.Err
			run.Err = &e
		}
		c.Run = &run
	}
	if t.Value.cells != nil {
		cells := make([][]CellValue, len(t.Value.cells))
		for y, row := range t.Value.cells {
			cells[y] = make([]CellValue, len(row))
			copy(cells[y], row)
		}
		c.Value = Value{cells: cells}
	}
	return &c
}
