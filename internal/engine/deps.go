package engine

import (
	"github.com/roach88/tabula/internal/grid"
	"github.com/roach88/tabula/internal/op"
)

// scheduleAffected enqueues a recompute for every code cell whose
// recorded read set intersects the edited region and that has not
// already been planned this transaction. Scan order is deterministic:
// sheets in tab order, anchors row-major.
//
// Chained dependencies resolve through the work list itself: a scheduled
// cell's result write dirties its output rectangle, which schedules its
// own readers in turn.
func (e *Engine) scheduleAffected(pt *PendingTransaction, edit grid.SheetRect) {
	for _, target := range e.affectedBy(edit) {
		if pt.planned[target] {
			continue
		}
		pt.planned[target] = true
		pt.pushBack(op.ComputeCell{Sheet: target.Sheet, Pos: target.Pos})
	}
}

// affectedBy returns the code cells whose last run read any cell of
// edit, in deterministic order. This is the recompute set for an edit to
// that region.
func (e *Engine) affectedBy(edit grid.SheetRect) []grid.SheetPos {
	var out []grid.SheetPos
	for _, s := range e.grid.SheetsInOrder() {
		s.Tables(func(anchor grid.Pos, t *grid.DataTable) bool {
			if t.Run.ReadsFrom(edit) {
				out = append(out, grid.SheetPos{Sheet: s.ID, Pos: anchor})
			}
			return true
		})
	}
	return out
}

// txnAccessor is the CellAccessor handed to the formula evaluator. It
// resolves references against the grid, records every read into both the
// run's and the transaction's cells-accessed sets, and rejects reads
// that touch any cell currently being evaluated in this transaction
// (direct self-reference or a cycle through the work list).
type txnAccessor struct {
	engine *Engine
	pt     *PendingTransaction
	ctx    grid.RefContext
	reads  []grid.SheetRect
}

// Values implements CellAccessor.
func (a *txnAccessor) Values(ref string) ([][]grid.CellValue, error) {
	sr, err := grid.ParseA1(ref, a.ctx)
	if err != nil {
		if re, ok := err.(*grid.RefError); ok {
			return nil, &EvalError{Code: re.Code, Msg: re.Msg}
		}
		return nil, &EvalError{Code: grid.ErrCodeRef, Msg: err.Error()}
	}

	// Ancestor check: reading a rectangle that covers any cell this
	// transaction is currently computing would loop.
	for _, anc := range a.pt.evaluating {
		ancRect := grid.SingleRect(anc.Pos)
		if s, ok := a.engine.grid.Sheet(anc.Sheet); ok {
			if t, ok := s.Table(anc.Pos); ok {
				ancRect = t.Rect(anc.Pos)
			}
		}
		if sr.Intersects(grid.SheetRect{Sheet: anc.Sheet, Rect: ancRect}) {
			return nil, &EvalError{
				Code: grid.ErrCodeCircular,
				Msg:  "circular reference to " + anc.Pos.A1(),
			}
		}
	}

	a.reads = append(a.reads, sr)
	a.pt.cellsAccessed = append(a.pt.cellsAccessed, sr)

	s, ok := a.engine.grid.Sheet(sr.Sheet)
	if !ok {
		return nil, &EvalError{Code: grid.ErrCodeRef, Msg: "sheet no longer exists"}
	}
	out := make([][]grid.CellValue, sr.Rect.Height())
	for dy := range out {
		row := make([]grid.CellValue, sr.Rect.Width())
		for dx := range row {
			p := grid.Pos{X: sr.Rect.Min.X + int64(dx), Y: sr.Rect.Min.Y + int64(dy)}
			row[dx] = s.DisplayValue(p)
		}
		out[dy] = row
	}
	return out, nil
}

// Value implements CellAccessor.
func (a *txnAccessor) Value(ref string) (grid.CellValue, error) {
	vals, err := a.Values(ref)
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 || len(vals[0]) == 0 {
		return grid.Blank{}, nil
	}
	return vals[0][0], nil
}
