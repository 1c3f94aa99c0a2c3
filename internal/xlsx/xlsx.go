// Package xlsx is the import/export collaborator: a pure bytes-to-Grid
// bridge over the xlsx format. It is deliberately narrow; the engine
// consumes Import/Export and stays version-agnostic about the format.
package xlsx

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/tabula/internal/grid"
)

// Import reads an xlsx workbook into a fresh grid. Formula cells become
// formula data tables with unevaluated code; run the grid through the
// engine to compute them.
func Import(data []byte) (*grid.Grid, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xlsx: open workbook: %w", err)
	}
	defer f.Close()

	g := grid.New()
	order := ""
	for _, name := range f.GetSheetList() {
		next, err := grid.OrderKeyBetween(order, "")
		if err != nil {
			return nil, fmt.Errorf("xlsx: derive sheet order: %w", err)
		}
		order = next
		s := grid.NewSheet(name, order)
		if err := g.AddSheet(s); err != nil {
			return nil, fmt.Errorf("xlsx: add sheet %q: %w", name, err)
		}
		if err := importSheet(f, name, s); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func importSheet(f *excelize.File, name string, s *grid.Sheet) error {
	rows, err := f.GetRows(name)
	if err != nil {
		return fmt.Errorf("xlsx: read sheet %q: %w", name, err)
	}
	for y, row := range rows {
		for x, raw := range row {
			cell, err := excelize.CoordinatesToCellName(x+1, y+1)
			if err != nil {
				return fmt.Errorf("xlsx: cell name for (%d,%d): %w", x, y, err)
			}
			formula, err := f.GetCellFormula(name, cell)
			if err != nil {
				return fmt.Errorf("xlsx: formula at %s!%s: %w", name, cell, err)
			}
			p := grid.Pos{X: int64(x), Y: int64(y)}
			if formula != "" {
				s.SetTable(p, &grid.DataTable{
					Kind:     grid.TableFormula,
					Language: grid.LangFormula,
					Run:      &grid.CodeRun{Language: grid.LangFormula, Code: "=" + formula},
				})
				continue
			}
			if raw == "" {
				continue
			}
			s.SetCellValue(p, sniffValue(raw))
		}
	}
	return nil
}

// sniffValue types a raw cell string the way the collaborative editor's
// importer does: number, then logical, else text.
func sniffValue(raw string) grid.CellValue {
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		return grid.Number(n)
	}
	switch strings.ToUpper(raw) {
	case "TRUE":
		return grid.Logical(true)
	case "FALSE":
		return grid.Logical(false)
	}
	return grid.Text(raw)
}

// Export writes the grid to xlsx bytes. Table outputs export as their
// display values, formula tables additionally carry their code. Cells at
// negative coordinates cannot be expressed in the format and are skipped.
func Export(g *grid.Grid) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheets := g.SheetsInOrder()
	for i, s := range sheets {
		if i == 0 {
			// The workbook starts with one default sheet; rename it.
			defaultName := f.GetSheetName(0)
			if err := f.SetSheetName(defaultName, s.Name); err != nil {
				return nil, fmt.Errorf("xlsx: rename default sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(s.Name); err != nil {
				return nil, fmt.Errorf("xlsx: create sheet %q: %w", s.Name, err)
			}
		}
		if err := exportSheet(f, s); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func exportSheet(f *excelize.File, s *grid.Sheet) error {
	var exportErr error
	s.EachCell(func(p grid.Pos, v grid.CellValue) bool {
		exportErr = exportCell(f, s, p, v)
		return exportErr == nil
	})
	if exportErr != nil {
		return exportErr
	}

	s.Tables(func(anchor grid.Pos, t *grid.DataTable) bool {
		r := t.Rect(anchor)
		for p := range r.Positions() {
			v := t.DisplayValue(p.X-anchor.X, p.Y-anchor.Y)
			if grid.IsBlank(v) {
				continue
			}
			if exportErr = exportCell(f, s, p, v); exportErr != nil {
				return false
			}
		}
		if t.Language == grid.LangFormula && t.Run != nil && !t.SpillError {
			cell, err := cellName(anchor)
			if err != nil {
				return true // negative anchor, skip the formula
			}
			code := strings.TrimPrefix(t.Run.Code, "=")
			if err := f.SetCellFormula(s.Name, cell, code); err != nil {
				exportErr = fmt.Errorf("xlsx: set formula at %s!%s: %w", s.Name, cell, err)
				return false
			}
		}
		return true
	})
	return exportErr
}

func exportCell(f *excelize.File, s *grid.Sheet, p grid.Pos, v grid.CellValue) error {
	cell, err := cellName(p)
	if err != nil {
		return nil // not expressible, skip
	}
	var out any
	switch c := v.(type) {
	case grid.Number:
		out = float64(c)
	case grid.Text:
		out = string(c)
	case grid.Logical:
		out = bool(c)
	case grid.Instant:
		out = c.When
	case grid.ErrorValue:
		out = c.String()
	case grid.Duration:
		out = time.Duration(c)
	default:
		return nil
	}
	if err := f.SetCellValue(s.Name, cell, out); err != nil {
		return fmt.Errorf("xlsx: set value at %s!%s: %w", s.Name, cell, err)
	}
	return nil
}

func cellName(p grid.Pos) (string, error) {
	if p.X < 0 || p.Y < 0 {
		return "", fmt.Errorf("xlsx: negative coordinate %s", p)
	}
	return excelize.CoordinatesToCellName(int(p.X)+1, int(p.Y)+1)
}
