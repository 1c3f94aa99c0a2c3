// Package op defines the operation log: the closed vocabulary of atomic,
// serializable grid mutations. Every operation is a full replacement of a
// region's state rather than a relative delta, so replaying it twice, or
// interleaving operations from two clients in sequence order, cannot
// corrupt the store. Applying an operation yields its inverse relative to
// the pre-mutation state.
package op

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/tabula/internal/grid"
)

// Type tags the concrete operation variant on the wire.
type Type string

const (
	TypeSetCellValues  Type = "set_cell_values"
	TypeSetDataTable   Type = "set_data_table"
	TypeComputeCell    Type = "compute_cell"
	TypeAddSheet       Type = "add_sheet"
	TypeDeleteSheet    Type = "delete_sheet"
	TypeSetSheetName   Type = "set_sheet_name"
	TypeReorderSheet   Type = "reorder_sheet"
	TypeResizeColumn   Type = "resize_column"
	TypeResizeRow      Type = "resize_row"
	TypeSetCellFormats Type = "set_cell_formats"
)

// Operation is the sealed union of grid mutations. Dispatch is by type
// switch (see Apply), which keeps the variant set closed and checkable.
type Operation interface {
	Type() Type
	op() // sealed
}

// SetCellValues replaces every cell of Rect with the corresponding entry
// of Values (row-major, sized to the rect; Blank clears). Whole-region
// replacement makes the operation idempotent and last-writer-wins safe.
type SetCellValues struct {
	Sheet  grid.SheetID `json:"sheet"`
	Rect   grid.Rect    `json:"rect"`
	Values [][]grid.CellValue
}

func (SetCellValues) Type() Type { return TypeSetCellValues }
func (SetCellValues) op()        {}

type setCellValuesWire struct {
	Sheet  grid.SheetID    `json:"sheet"`
	Rect   grid.Rect       `json:"rect"`
	Values json.RawMessage `json:"values"`
}

// MarshalJSON implements json.Marshaler.
func (o SetCellValues) MarshalJSON() ([]byte, error) {
	raw, err := grid.MarshalCellMatrix(o.Values)
	if err != nil {
		return nil, err
	}
	return json.Marshal(setCellValuesWire{Sheet: o.Sheet, Rect: o.Rect, Values: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *SetCellValues) UnmarshalJSON(data []byte) error {
	var w setCellValuesWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal set_cell_values: %w", err)
	}
	values, err := grid.UnmarshalCellMatrix(w.Values)
	if err != nil {
		return err
	}
	o.Sheet, o.Rect, o.Values = w.Sheet, w.Rect, values
	return nil
}

// SetDataTable anchors (or, with a nil Table, removes) a data table.
// Recompute asks the engine to enqueue evaluation of the table's code
// after the apply; it is set on user code edits and cleared on the
// operations the engine injects to carry computed results.
type SetDataTable struct {
	Sheet     grid.SheetID    `json:"sheet"`
	Pos       grid.Pos        `json:"pos"`
	Table     *grid.DataTable `json:"table,omitempty"`
	Recompute bool            `json:"recompute,omitempty"`
}

func (SetDataTable) Type() Type { return TypeSetDataTable }
func (SetDataTable) op()        {}

// ComputeCell asks the engine to (re)evaluate the code of the table
// anchored at Pos. It never reaches the store: the transaction manager
// consumes it and injects a SetDataTable carrying the result.
type ComputeCell struct {
	Sheet grid.SheetID `json:"sheet"`
	Pos   grid.Pos     `json:"pos"`
}

func (ComputeCell) Type() Type { return TypeComputeCell }
func (ComputeCell) op()        {}

// AddSheet inserts a sheet from a full snapshot. The inverse of deleting
// a sheet restores everything it contained.
type AddSheet struct {
	Snapshot *grid.SheetSnapshot `json:"snapshot"`
}

func (AddSheet) Type() Type { return TypeAddSheet }
func (AddSheet) op()        {}

// DeleteSheet removes a sheet.
type DeleteSheet struct {
	Sheet grid.SheetID `json:"sheet"`
}

func (DeleteSheet) Type() Type { return TypeDeleteSheet }
func (DeleteSheet) op()        {}

// SetSheetName renames a sheet.
type SetSheetName struct {
	Sheet grid.SheetID `json:"sheet"`
	Name  string       `json:"name"`
}

func (SetSheetName) Type() Type { return TypeSetSheetName }
func (SetSheetName) op()        {}

// ReorderSheet moves a sheet by replacing its fractional order key.
type ReorderSheet struct {
	Sheet grid.SheetID `json:"sheet"`
	Order string       `json:"order"`
}

func (ReorderSheet) Type() Type { return TypeReorderSheet }
func (ReorderSheet) op()        {}

// ResizeColumn sets a column width override; Width <= 0 restores the
// default.
type ResizeColumn struct {
	Sheet grid.SheetID `json:"sheet"`
	Col   int64        `json:"col"`
	Width float64      `json:"width"`
}

func (ResizeColumn) Type() Type { return TypeResizeColumn }
func (ResizeColumn) op()        {}

// ResizeRow sets a row height override; Height <= 0 restores the default.
type ResizeRow struct {
	Sheet  grid.SheetID `json:"sheet"`
	Row    int64        `json:"row"`
	Height float64      `json:"height"`
}

func (ResizeRow) Type() Type { return TypeResizeRow }
func (ResizeRow) op()        {}

// SetCellFormats replaces the format of every cell of Rect with the
// corresponding entry of Formats (row-major; zero format clears).
type SetCellFormats struct {
	Sheet   grid.SheetID        `json:"sheet"`
	Rect    grid.Rect           `json:"rect"`
	Formats [][]grid.CellFormat `json:"formats"`
}

func (SetCellFormats) Type() Type { return TypeSetCellFormats }
func (SetCellFormats) op()        {}
