package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tabula/internal/grid"
	"github.com/roach88/tabula/internal/op"
)

// MustPos parses an A1 cell reference into a position.
func MustPos(t *testing.T, ref string) grid.Pos {
	t.Helper()
	sr, err := grid.ParseA1(ref, grid.RefContext{})
	require.NoError(t, err, "parse %q", ref)
	require.Equal(t, sr.Rect.Min, sr.Rect.Max, "%q is not a single cell", ref)
	return sr.Rect.Min
}

// SetCell builds an operation writing one value at an A1 position.
func SetCell(t *testing.T, sheet grid.SheetID, ref string, v grid.CellValue) op.Operation {
	t.Helper()
	p := MustPos(t, ref)
	return op.SetCellValues{
		Sheet:  sheet,
		Rect:   grid.SingleRect(p),
		Values: [][]grid.CellValue{{v}},
	}
}

// SetCode builds the operation a "set code" user intent produces: a
// data table carrying unevaluated code plus the recompute trigger.
func SetCode(t *testing.T, sheet grid.SheetID, ref string, lang grid.Language, code string) op.Operation {
	t.Helper()
	p := MustPos(t, ref)
	return op.SetDataTable{
		Sheet: sheet,
		Pos:   p,
		Table: &grid.DataTable{
			Kind:     grid.KindForLanguage(lang),
			Language: lang,
			Run:      &grid.CodeRun{Language: lang, Code: code},
		},
		Recompute: true,
	}
}
