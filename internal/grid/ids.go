package grid

import "github.com/google/uuid"

// SheetID uniquely identifies a sheet for the lifetime of a grid.
// IDs are UUIDv7 strings: stable across renames and reorders, never reused.
type SheetID string

// ColumnID uniquely identifies a column independent of its index.
type ColumnID string

// RowID uniquely identifies a row independent of its index.
type RowID string

// NewSheetID returns a fresh time-sortable sheet id.
func NewSheetID() SheetID {
	return SheetID(uuid.Must(uuid.NewV7()).String())
}

// NewColumnID returns a fresh column id.
func NewColumnID() ColumnID {
	return ColumnID(uuid.Must(uuid.NewV7()).String())
}

// NewRowID returns a fresh row id.
func NewRowID() RowID {
	return RowID(uuid.Must(uuid.NewV7()).String())
}
