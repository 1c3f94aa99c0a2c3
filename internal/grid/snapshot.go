package grid

import (
	"encoding/json"
	"fmt"
)

// SheetSnapshot is the serializable full state of a sheet. Operations
// that add or delete sheets carry snapshots so their inverses can restore
// everything (cells, tables, offsets, formats) without external lookups.
type SheetSnapshot struct {
	ID      SheetID       `json:"id"`
	Name    string        `json:"name"`
	Order   string        `json:"order"`
	Cells   []CellEntry   `json:"cells,omitempty"`
	Tables  []TableEntry  `json:"tables,omitempty"`
	Cols    []ColEntry    `json:"cols,omitempty"`
	Rows    []RowEntry    `json:"rows,omitempty"`
	Formats []FormatEntry `json:"formats,omitempty"`
}

// CellEntry pairs a position with a cell value.
type CellEntry struct {
	Pos Pos
	V   CellValue
}

type cellEntryWire struct {
	Pos Pos             `json:"pos"`
	V   json.RawMessage `json:"v"`
}

// MarshalJSON implements json.Marshaler.
func (e CellEntry) MarshalJSON() ([]byte, error) {
	raw, err := MarshalCellValue(e.V)
	if err != nil {
		return nil, err
	}
	return json.Marshal(cellEntryWire{Pos: e.Pos, V: raw})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *CellEntry) UnmarshalJSON(data []byte) error {
	var w cellEntryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal cell entry: %w", err)
	}
	v, err := UnmarshalCellValue(w.V)
	if err != nil {
		return err
	}
	e.Pos, e.V = w.Pos, v
	return nil
}

// TableEntry pairs an anchor with a data table.
type TableEntry struct {
	Pos   Pos        `json:"pos"`
	Table *DataTable `json:"table"`
}

// ColEntry is a sparse column override keyed by index.
type ColEntry struct {
	Index int64      `json:"index"`
	Info  ColumnInfo `json:"info"`
}

// RowEntry is a sparse row override keyed by index.
type RowEntry struct {
	Index int64   `json:"index"`
	Info  RowInfo `json:"info"`
}

// FormatEntry pairs a position with a cell format.
type FormatEntry struct {
	Pos    Pos        `json:"pos"`
	Format CellFormat `json:"format"`
}

// Snapshot captures the sheet's full state. Tables are deep-copied so the
// snapshot cannot alias live state.
func (s *Sheet) Snapshot() *SheetSnapshot {
	snap := &SheetSnapshot{ID: s.ID, Name: s.Name, Order: s.Order}
	s.EachCell(func(p Pos, v CellValue) bool {
		snap.Cells = append(snap.Cells, CellEntry{Pos: p, V: v})
		return true
	})
	s.Tables(func(anchor Pos, t *DataTable) bool {
		snap.Tables = append(snap.Tables, TableEntry{Pos: anchor, Table: t.Clone()})
		return true
	})
	for idx, c := range s.cols {
		snap.Cols = append(snap.Cols, ColEntry{Index: idx, Info: c})
	}
	for idx, r := range s.rows {
		snap.Rows = append(snap.Rows, RowEntry{Index: idx, Info: r})
	}
	for p, f := range s.formats {
		snap.Formats = append(snap.Formats, FormatEntry{Pos: p, Format: f})
	}
	return snap
}

// SheetFromSnapshot reconstructs a sheet.
func SheetFromSnapshot(snap *SheetSnapshot) *Sheet {
	s := NewSheet(snap.Name, snap.Order)
	s.ID = snap.ID
	for _, e := range snap.Cells {
		s.SetCellValue(e.Pos, e.V)
	}
	for _, e := range snap.Tables {
		s.SetTable(e.Pos, e.Table.Clone())
	}
	for _, e := range snap.Cols {
		s.cols[e.Index] = e.Info
	}
	for _, e := range snap.Rows {
		s.rows[e.Index] = e.Info
	}
	for _, e := range snap.Formats {
		s.formats[e.Pos] = e.Format
	}
	return s
}
