package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/tabula/internal/grid"
	"github.com/roach88/tabula/internal/op"
)

// run drains the transaction's work list. Applying an operation may
// append more operations (code edits enqueue computes, edits enqueue
// dependent recomputes), so this loops until the queue empties or the
// transaction suspends on an async dispatch.
//
// Returns an error only for conditions fatal to the transaction;
// user-level failures are recovered into cell content and draining
// continues.
func (e *Engine) run(pt *PendingTransaction) error {
	for len(pt.queue) > 0 {
		if len(pt.forward) >= e.maxOps {
			slog.Error("transaction exceeded operation cap, dropping remaining work",
				"txn", pt.ID,
				"applied", len(pt.forward),
				"remaining", len(pt.queue),
				"cap", e.maxOps,
			)
			pt.queue = nil
			break
		}

		o := pt.queue[0]
		pt.queue[0] = nil // release for GC; the slice is reused
		pt.queue = pt.queue[1:]

		compute, ok := o.(op.ComputeCell)
		if !ok {
			if err := e.applyStoreOp(pt, o); err != nil {
				// The store rejected the operation (unknown sheet, name
				// collision). The operation is skipped; the store is
				// untouched by it and the transaction continues.
				slog.Warn("operation rejected",
					"txn", pt.ID,
					"op", o.Type(),
					"error", err,
				)
			}
			continue
		}

		suspended, err := e.computeCell(pt, compute)
		if err != nil {
			return err
		}
		if suspended {
			// Stop draining and park. CompleteAsync resumes from here.
			e.awaiting[pt.ID] = pt
			slog.Debug("transaction suspended",
				"txn", pt.ID,
				"pos", pt.waitingPos,
				"language", pt.waitingLang,
			)
			return nil
		}
	}

	e.finalize(pt)
	return nil
}

// resume continues a transaction parked on an async call with the
// collaborator's result, then drains the remaining queue.
func (e *Engine) resume(pt *PendingTransaction, res RunResult) error {
	if !pt.waiting {
		// Defensive: awaiting entries are always in the waiting state.
		return &EngineError{Code: ErrCodeUnknownTxn, Txn: pt.ID, Msg: "transaction found but not waiting"}
	}
	target := pt.waitingPos
	lang := pt.waitingLang
	pt.waiting = false
	// Unwind the parked cell from the ancestor stack.
	pt.evaluating = pt.evaluating[:len(pt.evaluating)-1]

	s, ok := e.grid.Sheet(target.Sheet)
	if !ok {
		slog.Warn("async result for deleted sheet dropped", "txn", pt.ID, "pos", target)
		return e.run(pt)
	}
	t, ok := s.Table(target.Pos)
	if !ok || t.Run == nil {
		slog.Warn("async result for removed table dropped", "txn", pt.ID, "pos", target)
		return e.run(pt)
	}

	runRec := &grid.CodeRun{
		Language:      lang,
		Code:          t.Run.Code,
		StdOut:        res.StdOut,
		StdErr:        res.StdErr,
		CellsAccessed: res.CellsAccessed,
		Err:           res.Err,
	}
	pt.cellsAccessed = append(pt.cellsAccessed, res.CellsAccessed...)

	next := t.Clone()
	next.Run = runRec
	if res.Err != nil {
		next.Value = grid.ScalarValue(grid.Blank{})
	} else {
		next.Value = res.Value
	}

	// A run that read its own output rectangle is circular: the result
	// would immediately reschedule itself.
	if runRec.Err == nil && runRec.ReadsFrom(grid.SheetRect{Sheet: target.Sheet, Rect: next.Rect(target.Pos)}) {
		runRec.Err = &grid.RunError{Msg: "circular reference: code reads its own output"}
		runRec.CellsAccessed = nil
		next.Value = grid.ScalarValue(grid.Blank{})
		if e.metrics != nil {
			e.metrics.CircularErrors.Inc()
		}
	}

	if err := e.applyStoreOp(pt, op.SetDataTable{Sheet: target.Sheet, Pos: target.Pos, Table: next}); err != nil {
		slog.Warn("failed to store async result", "txn", pt.ID, "pos", target, "error", err)
	}
	return e.run(pt)
}

// applyStoreOp applies one store operation, accumulates its inverse and
// dirty regions, and schedules dependent recomputation.
func (e *Engine) applyStoreOp(pt *PendingTransaction, o op.Operation) error {
	res, err := op.Apply(e.grid, o)
	if err != nil {
		return &EngineError{
			Code: ErrCodeApplyFailed,
			Txn:  pt.ID,
			Msg:  fmt.Sprintf("apply %s: %v", o.Type(), err),
		}
	}

	// Forward operations replicate as-applied state; the recompute
	// trigger is local-only, so the recorded copy drops it (the computed
	// results follow as their own operations).
	recorded := o
	if sd, ok := o.(op.SetDataTable); ok && sd.Recompute {
		sd.Recompute = false
		recorded = sd
	}
	pt.forward = append(pt.forward, recorded)
	pt.reverse = append(pt.reverse, res.Reverse)
	pt.dirty = append(pt.dirty, res.Dirty...)

	if e.metrics != nil {
		if sd, ok := o.(op.SetDataTable); ok && sd.Table != nil && sd.Table.SpillError {
			e.metrics.SpillErrors.Inc()
		}
	}

	// Remote transactions carry their author's computed results; honoring
	// triggers here would double-compute on every replica.
	if pt.Source == SourceRemote {
		return nil
	}
	// Layout changes repaint but never invalidate computed values.
	switch o.(type) {
	case op.ResizeColumn, op.ResizeRow:
		return nil
	}
	for _, sr := range res.Dirty {
		e.scheduleAffected(pt, sr)
	}
	if sd, ok := o.(op.SetDataTable); ok && sd.Recompute && sd.Table != nil {
		target := grid.SheetPos{Sheet: sd.Sheet, Pos: sd.Pos}
		if !pt.planned[target] {
			pt.planned[target] = true
			pt.pushBack(op.ComputeCell{Sheet: sd.Sheet, Pos: sd.Pos})
		}
	}
	return nil
}

// computeCell evaluates the code of the table anchored at the target.
// Formulas evaluate inline; script and connection languages dispatch to
// the async bridge and suspend the transaction. Returns suspended=true
// when the transaction parked.
func (e *Engine) computeCell(pt *PendingTransaction, o op.ComputeCell) (bool, error) {
	target := grid.SheetPos{Sheet: o.Sheet, Pos: o.Pos}
	pt.planned[target] = true

	s, ok := e.grid.Sheet(o.Sheet)
	if !ok {
		slog.Debug("compute for deleted sheet skipped", "txn", pt.ID, "pos", target)
		return false, nil
	}
	t, ok := s.Table(o.Pos)
	if !ok || t.Run == nil {
		// The table was edited away after this compute was scheduled.
		slog.Debug("compute for removed table skipped", "txn", pt.ID, "pos", target)
		return false, nil
	}
	if e.metrics != nil {
		e.metrics.Recomputes.Inc()
	}

	if t.Run.Language.Async() {
		return e.dispatchAsync(pt, target, t)
	}
	e.evaluateFormula(pt, target, t)
	return false, nil
}

// dispatchAsync hands the code to the external collaborator and parks
// the transaction. If the collaborator cannot accept the request the
// failure is local: an error result is recorded synchronously and the
// transaction continues without suspending.
func (e *Engine) dispatchAsync(pt *PendingTransaction, target grid.SheetPos, t *grid.DataTable) (bool, error) {
	req := RunRequest{
		TransactionID: pt.ID,
		Pos:           target,
		Language:      t.Run.Language,
		Code:          t.Run.Code,
	}

	var dispatchErr error
	if e.runner == nil {
		dispatchErr = errors.New("no code runner configured")
	} else {
		dispatchErr = e.runner.Dispatch(req)
	}
	if dispatchErr != nil {
		slog.Warn("code runner unavailable",
			"txn", pt.ID,
			"pos", target,
			"language", t.Run.Language,
			"error", dispatchErr,
		)
		e.storeRunFailure(pt, target, t, &grid.RunError{
			Msg: fmt.Sprintf("%s unavailable: %v", t.Run.Language, dispatchErr),
		})
		return false, nil
	}

	if e.metrics != nil {
		e.metrics.AsyncDispatch.Inc()
	}
	pt.waiting = true
	pt.waitingPos = target
	pt.waitingLang = t.Run.Language
	// The parked cell stays on the ancestor stack so anything else this
	// transaction computes meanwhile treats reads of it as circular.
	pt.evaluating = append(pt.evaluating, target)
	return true, nil
}

// evaluateFormula runs the built-in formula path: synchronous, reads
// captured through the accessor, never suspends.
func (e *Engine) evaluateFormula(pt *PendingTransaction, target grid.SheetPos, t *grid.DataTable) {
	if e.eval == nil {
		e.storeRunFailure(pt, target, t, &grid.RunError{Msg: "no formula evaluator configured"})
		return
	}

	pt.evaluating = append(pt.evaluating, target)
	acc := &txnAccessor{engine: e, pt: pt, ctx: e.grid.RefContext(target.Sheet)}
	val, evalErr := e.eval.Evaluate(t.Run.Code, target, acc)
	pt.evaluating = pt.evaluating[:len(pt.evaluating)-1]

	runRec := &grid.CodeRun{
		Language:      grid.LangFormula,
		Code:          t.Run.Code,
		CellsAccessed: acc.reads,
	}
	next := t.Clone()
	next.Run = runRec
	if evalErr != nil {
		runRec.Err = toRunError(evalErr)
		next.Value = grid.ScalarValue(grid.Blank{})
		var ee *EvalError
		if e.metrics != nil && errors.As(evalErr, &ee) && ee.Code == grid.ErrCodeCircular {
			e.metrics.CircularErrors.Inc()
		}
	} else {
		next.Value = val
	}

	if err := e.applyStoreOp(pt, op.SetDataTable{Sheet: target.Sheet, Pos: target.Pos, Table: next}); err != nil {
		slog.Warn("failed to store formula result", "txn", pt.ID, "pos", target, "error", err)
	}
}

// storeRunFailure records an error code run for the target without any
// async round trip.
func (e *Engine) storeRunFailure(pt *PendingTransaction, target grid.SheetPos, t *grid.DataTable, runErr *grid.RunError) {
	next := t.Clone()
	next.Run = &grid.CodeRun{
		Language: t.Run.Language,
		Code:     t.Run.Code,
		Err:      runErr,
	}
	next.Value = grid.ScalarValue(grid.Blank{})
	if err := e.applyStoreOp(pt, op.SetDataTable{Sheet: target.Sheet, Pos: target.Pos, Table: next}); err != nil {
		slog.Warn("failed to store run failure", "txn", pt.ID, "pos", target, "error", err)
	}
}

func toRunError(err error) *grid.RunError {
	var ee *EvalError
	if errors.As(err, &ee) {
		return &grid.RunError{Msg: ee.Msg, Line: ee.Line}
	}
	return &grid.RunError{Msg: err.Error()}
}

// finalize consumes the pending transaction: reverse operations become
// the new history entry, the redo stack clears on fresh user edits, and
// local transactions go out to the ordering collaborator.
func (e *Engine) finalize(pt *PendingTransaction) {
	pt.complete = true

	// Reverse operations accumulated in application order; replaying
	// them must unwind the transaction back-to-front.
	rv := make([]op.Operation, len(pt.reverse))
	for i, o := range pt.reverse {
		rv[len(rv)-1-i] = o
	}
	inverse := &Transaction{ID: pt.ID, Source: pt.Source, Cursor: pt.Cursor, Ops: rv}
	durable := Transaction{ID: pt.ID, Source: pt.Source, Cursor: pt.Cursor, Ops: pt.forward}

	switch pt.Source {
	case SourceUser:
		e.undoStack = append(e.undoStack, inverse)
		e.redoStack = nil
	case SourceUndo:
		e.redoStack = append(e.redoStack, inverse)
	case SourceRedo:
		e.undoStack = append(e.undoStack, inverse)
	case SourceRemote:
		// Foreign edits do not enter local history.
	}

	if pt.Source != SourceRemote {
		e.seq.TrackLocal(durable)
		if e.broadcast != nil {
			e.broadcast(durable)
		}
	}
	if e.onFinalize != nil {
		e.onFinalize(durable)
	}
	if e.onDirty != nil && len(pt.dirty) > 0 {
		e.onDirty(pt.dirty)
	}
	if e.metrics != nil {
		e.metrics.Transactions.WithLabelValues(string(pt.Source)).Inc()
	}

	slog.Info("transaction finalized",
		"txn", pt.ID,
		"source", pt.Source,
		"ops", len(pt.forward),
		"undo_depth", len(e.undoStack),
		"redo_depth", len(e.redoStack),
	)
}
