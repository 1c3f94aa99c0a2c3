package engine_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabula/internal/engine"
	"github.com/roach88/tabula/internal/grid"
	"github.com/roach88/tabula/internal/op"
	"github.com/roach88/tabula/internal/testutil"
)

func newTestEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *grid.Sheet, *testutil.ScriptedRunner) {
	t.Helper()
	g, sheet := grid.NewWithSheet()
	runner := testutil.NewScriptedRunner()
	base := []engine.Option{
		engine.WithEvaluator(testutil.StubEvaluator{}),
		engine.WithRunner(runner),
	}
	eng := engine.New(g, append(base, opts...)...)
	return eng, sheet, runner
}

func display(t *testing.T, eng *engine.Engine, sheet grid.SheetID, ref string) grid.CellValue {
	t.Helper()
	return eng.Grid().MustSheet(sheet).DisplayValue(testutil.MustPos(t, ref))
}

func TestTransactSetsCellValues(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	id, err := eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(5)),
	}, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, grid.Equal(grid.Number(5), display(t, eng, sheet.ID, "A1")))
	assert.Equal(t, 1, eng.UndoDepth())
}

func TestFormulaEvaluatesOnEdit(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	_, err := eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(5)),
	}, "")
	require.NoError(t, err)

	_, err = eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "B1", grid.LangFormula, "=A1*2"),
	}, "")
	require.NoError(t, err)
	assert.True(t, grid.Equal(grid.Number(10), display(t, eng, sheet.ID, "B1")))
}

func TestEditTriggersDependentRecompute(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	_, err := eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(5)),
		testutil.SetCode(t, sheet.ID, "B1", grid.LangFormula, "=A1*2"),
	}, "")
	require.NoError(t, err)

	_, err = eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(7)),
	}, "")
	require.NoError(t, err)
	assert.True(t, grid.Equal(grid.Number(14), display(t, eng, sheet.ID, "B1")),
		"B1 recomputes when its input changes")
}

func TestRecomputeChainsThroughDependents(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	_, err := eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(1)),
		testutil.SetCode(t, sheet.ID, "B1", grid.LangFormula, "=A1+1"),
		testutil.SetCode(t, sheet.ID, "C1", grid.LangFormula, "=B1+1"),
	}, "")
	require.NoError(t, err)
	assert.True(t, grid.Equal(grid.Number(3), display(t, eng, sheet.ID, "C1")))

	// One edit at the root ripples through both formulas: B1's result
	// write dirties its rectangle, which schedules C1 in the same
	// transaction.
	_, err = eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(10)),
	}, "")
	require.NoError(t, err)
	assert.True(t, grid.Equal(grid.Number(11), display(t, eng, sheet.ID, "B1")))
	assert.True(t, grid.Equal(grid.Number(12), display(t, eng, sheet.ID, "C1")))
}

func TestUndoRedoRoundTrip(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	_, err := eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(5)),
		testutil.SetCode(t, sheet.ID, "B1", grid.LangFormula, "=A1*2"),
	}, "")
	require.NoError(t, err)
	_, err = eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(7)),
	}, "")
	require.NoError(t, err)
	require.Equal(t, 2, eng.UndoDepth())

	_, err = eng.Undo()
	require.NoError(t, err)
	assert.True(t, grid.Equal(grid.Number(5), display(t, eng, sheet.ID, "A1")))
	assert.True(t, grid.Equal(grid.Number(10), display(t, eng, sheet.ID, "B1")))
	assert.Equal(t, 1, eng.UndoDepth())
	assert.Equal(t, 1, eng.RedoDepth())

	_, err = eng.Redo()
	require.NoError(t, err)
	assert.True(t, grid.Equal(grid.Number(7), display(t, eng, sheet.ID, "A1")))
	assert.True(t, grid.Equal(grid.Number(14), display(t, eng, sheet.ID, "B1")))
	assert.Equal(t, 2, eng.UndoDepth())
	assert.Equal(t, 0, eng.RedoDepth())
}

func TestUndoEmptyStack(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	_, err := eng.Undo()
	assert.ErrorIs(t, err, engine.ErrNothingToUndo)
	_, err = eng.Redo()
	assert.ErrorIs(t, err, engine.ErrNothingToRedo)
}

func TestFreshEditClearsRedoStack(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	_, err := eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(1)),
	}, "")
	require.NoError(t, err)
	_, err = eng.Undo()
	require.NoError(t, err)
	require.Equal(t, 1, eng.RedoDepth())

	_, err = eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(2)),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 0, eng.RedoDepth())
}

func TestAsyncSuspendResume(t *testing.T) {
	eng, sheet, runner := newTestEngine(t)

	id, err := eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "B1", grid.LangPython, "6 * 7"),
	}, "")
	require.NoError(t, err)

	// The transaction is parked, not finalized: no history entry yet,
	// exactly one captured dispatch.
	assert.Equal(t, 1, eng.AwaitingCount())
	assert.Equal(t, 0, eng.UndoDepth())
	req, err := runner.Last()
	require.NoError(t, err)
	assert.Equal(t, id, req.TransactionID)
	assert.Equal(t, grid.LangPython, req.Language)
	assert.Equal(t, "6 * 7", req.Code)

	pt, ok := eng.Awaiting(id)
	require.True(t, ok)
	pos, lang, waiting := pt.Waiting()
	assert.True(t, waiting)
	assert.Equal(t, grid.LangPython, lang)
	assert.Equal(t, testutil.MustPos(t, "B1"), pos.Pos)

	err = eng.CompleteAsync(id, engine.RunResult{
		Value:  grid.ScalarValue(grid.Number(42)),
		StdOut: "hello\n",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, eng.AwaitingCount())
	assert.Equal(t, 1, eng.UndoDepth(), "finalized only after the result lands")
	assert.True(t, grid.Equal(grid.Number(42), display(t, eng, sheet.ID, "B1")))

	tbl, ok := eng.Grid().MustSheet(sheet.ID).Table(testutil.MustPos(t, "B1"))
	require.True(t, ok)
	require.NotNil(t, tbl.Run)
	assert.Equal(t, "hello\n", tbl.Run.StdOut)
}

func TestAsyncResultArrayValue(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	id, err := eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "A1", grid.LangPython, "range(4)"),
	}, "")
	require.NoError(t, err)

	err = eng.CompleteAsync(id, engine.RunResult{
		Value: grid.ArrayValue([][]grid.CellValue{
			{grid.Number(0), grid.Number(1), grid.Number(2), grid.Number(3)},
		}),
	})
	require.NoError(t, err)
	assert.True(t, grid.Equal(grid.Number(3), display(t, eng, sheet.ID, "D1")),
		"array output spills to the right")
}

func TestAsyncRunnerUnavailableFailsSynchronously(t *testing.T) {
	eng, sheet, runner := newTestEngine(t)
	runner.FailWith(errors.New("interpreter not running"))

	_, err := eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "B1", grid.LangPython, "1"),
	}, "")
	require.NoError(t, err)

	// No suspension: the failure is recorded as the run result and the
	// transaction finalizes in one pass.
	assert.Equal(t, 0, eng.AwaitingCount())
	assert.Equal(t, 1, eng.UndoDepth())
	ev, ok := display(t, eng, sheet.ID, "B1").(grid.ErrorValue)
	require.True(t, ok)
	assert.Equal(t, grid.ErrCodeRun, ev.Code)
	assert.Contains(t, ev.Msg, "unavailable")
}

func TestNoRunnerConfigured(t *testing.T) {
	g, sheet := grid.NewWithSheet()
	eng := engine.New(g, engine.WithEvaluator(testutil.StubEvaluator{}))

	_, err := eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "B1", grid.LangPython, "1"),
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 0, eng.AwaitingCount())
	_, ok := display(t, eng, sheet.ID, "B1").(grid.ErrorValue)
	assert.True(t, ok)
}

func TestCompleteAsyncUnknownID(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	err := eng.CompleteAsync("txn-never-existed", engine.RunResult{})
	require.Error(t, err)
	assert.True(t, engine.IsUnknownTxn(err))
}

func TestCompleteAsyncDeliveredTwice(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	id, err := eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "B1", grid.LangPython, "1"),
	}, "")
	require.NoError(t, err)

	require.NoError(t, eng.CompleteAsync(id, engine.RunResult{Value: grid.ScalarValue(grid.Number(1))}))
	err = eng.CompleteAsync(id, engine.RunResult{Value: grid.ScalarValue(grid.Number(2))})
	assert.True(t, engine.IsUnknownTxn(err), "second delivery is rejected")
	assert.True(t, grid.Equal(grid.Number(1), display(t, eng, sheet.ID, "B1")))
}

func TestAsyncErrorResult(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	id, err := eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "B1", grid.LangPython, "boom()"),
	}, "")
	require.NoError(t, err)

	err = eng.CompleteAsync(id, engine.RunResult{
		Err:    &grid.RunError{Msg: "NameError: boom", Line: 1},
		StdErr: "Traceback...\n",
	})
	require.NoError(t, err)

	ev, ok := display(t, eng, sheet.ID, "B1").(grid.ErrorValue)
	require.True(t, ok)
	assert.Equal(t, grid.ErrCodeRun, ev.Code)
	assert.Contains(t, ev.Msg, "NameError")
}

func TestAsyncSelfReadIsCircular(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	id, err := eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "B1", grid.LangPython, "q.cells('B1')"),
	}, "")
	require.NoError(t, err)

	// The collaborator reports that the run read its own output cell.
	err = eng.CompleteAsync(id, engine.RunResult{
		Value: grid.ScalarValue(grid.Number(1)),
		CellsAccessed: []grid.SheetRect{
			{Sheet: sheet.ID, Rect: grid.SingleRect(testutil.MustPos(t, "B1"))},
		},
	})
	require.NoError(t, err)

	ev, ok := display(t, eng, sheet.ID, "B1").(grid.ErrorValue)
	require.True(t, ok)
	assert.Equal(t, grid.ErrCodeRun, ev.Code)
	assert.Contains(t, ev.Msg, "circular")
}

func TestFormulaSelfReferenceIsCircular(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	_, err := eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "B1", grid.LangFormula, "=B1+1"),
	}, "")
	require.NoError(t, err)

	ev, ok := display(t, eng, sheet.ID, "B1").(grid.ErrorValue)
	require.True(t, ok)
	assert.Contains(t, ev.Msg, "circular")
}

func TestMutualReferencesSettleOncePerTransaction(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	_, err := eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "A1", grid.LangFormula, "=B1"),
	}, "")
	require.NoError(t, err)

	// Each code cell computes at most once per transaction, so the
	// mutual dependency terminates instead of looping.
	_, err = eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "B1", grid.LangFormula, "=A1"),
	}, "")
	require.NoError(t, err)

	assert.True(t, grid.Equal(grid.Number(0), display(t, eng, sheet.ID, "A1")))
	assert.True(t, grid.Equal(grid.Number(0), display(t, eng, sheet.ID, "B1")))
}

func TestBadReferenceBecomesCellError(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	_, err := eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "B1", grid.LangFormula, "=NoSheet!A1"),
	}, "")
	require.NoError(t, err, "reference failures never fail the transaction")

	_, ok := display(t, eng, sheet.ID, "B1").(grid.ErrorValue)
	assert.True(t, ok)
}

func TestMaxOpsCapsRunawayTransactions(t *testing.T) {
	eng, sheet, _ := newTestEngine(t, engine.WithMaxOps(2))

	_, err := eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(1)),
		testutil.SetCell(t, sheet.ID, "B1", grid.Number(2)),
		testutil.SetCell(t, sheet.ID, "C1", grid.Number(3)),
	}, "")
	require.NoError(t, err)

	assert.True(t, grid.Equal(grid.Number(2), display(t, eng, sheet.ID, "B1")))
	assert.True(t, grid.IsBlank(display(t, eng, sheet.ID, "C1")), "work past the cap is dropped")
}

func TestRemoteTransactionAppliesWithoutHistory(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	remote := engine.Transaction{
		ID:     "remote-1",
		Seq:    1,
		Source: engine.SourceUser,
		Ops: []op.Operation{
			testutil.SetCell(t, sheet.ID, "A1", grid.Number(99)),
		},
	}
	require.NoError(t, eng.ReceiveRemote(remote))

	assert.True(t, grid.Equal(grid.Number(99), display(t, eng, sheet.ID, "A1")))
	assert.Equal(t, 0, eng.UndoDepth(), "foreign edits do not enter local undo")
	assert.Equal(t, uint64(1), eng.LastSequence())
}

func TestRemoteTransactionsBufferOutOfOrder(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	second := engine.Transaction{
		ID:  "remote-2",
		Seq: 2,
		Ops: []op.Operation{testutil.SetCell(t, sheet.ID, "A1", grid.Number(2))},
	}
	first := engine.Transaction{
		ID:  "remote-1",
		Seq: 1,
		Ops: []op.Operation{testutil.SetCell(t, sheet.ID, "A1", grid.Number(1))},
	}

	require.NoError(t, eng.ReceiveRemote(second))
	assert.Equal(t, uint64(0), eng.LastSequence(), "gap holds application back")
	assert.True(t, grid.IsBlank(display(t, eng, sheet.ID, "A1")))

	require.NoError(t, eng.ReceiveRemote(first))
	assert.Equal(t, uint64(2), eng.LastSequence())
	assert.True(t, grid.Equal(grid.Number(2), display(t, eng, sheet.ID, "A1")),
		"sequence order decides the final value")
}

func TestAckUnblocksBufferedRemotes(t *testing.T) {
	var sent []engine.Transaction
	eng, sheet, _ := newTestEngine(t, engine.WithBroadcast(func(txn engine.Transaction) {
		sent = append(sent, txn)
	}))

	localID, err := eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(1)),
	}, "")
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, localID, sent[0].ID)

	// A remote edit sequenced after the local one arrives first.
	remote := engine.Transaction{
		ID:  "remote-1",
		Seq: 2,
		Ops: []op.Operation{testutil.SetCell(t, sheet.ID, "B1", grid.Number(2))},
	}
	require.NoError(t, eng.ReceiveRemote(remote))
	assert.True(t, grid.IsBlank(display(t, eng, sheet.ID, "B1")))

	// The ack fills the gap; the local edit is reconciled, not reapplied,
	// and the buffered remote applies.
	require.NoError(t, eng.AckSequence(localID, 1))
	assert.Equal(t, uint64(2), eng.LastSequence())
	assert.True(t, grid.Equal(grid.Number(2), display(t, eng, sheet.ID, "B1")))
}

func TestRemoteCodeResultDoesNotRecompute(t *testing.T) {
	eng, sheet, runner := newTestEngine(t)

	// A remote author shipped both the edit and its computed result.
	table := &grid.DataTable{
		Kind:     grid.KindForLanguage(grid.LangPython),
		Language: grid.LangPython,
		Value:    grid.ScalarValue(grid.Number(7)),
		Run:      &grid.CodeRun{Language: grid.LangPython, Code: "3 + 4"},
	}
	remote := engine.Transaction{
		ID:  "remote-1",
		Seq: 1,
		Ops: []op.Operation{
			op.SetDataTable{Sheet: sheet.ID, Pos: testutil.MustPos(t, "B1"), Table: table},
		},
	}
	require.NoError(t, eng.ReceiveRemote(remote))

	assert.True(t, grid.Equal(grid.Number(7), display(t, eng, sheet.ID, "B1")))
	assert.Empty(t, runner.Requests(), "replicas never re-dispatch remote code")
	assert.Equal(t, 0, eng.AwaitingCount())
}

func TestFinalizeHookSeesForwardOps(t *testing.T) {
	var finalized []engine.Transaction
	eng, sheet, _ := newTestEngine(t, engine.WithFinalizeHook(func(txn engine.Transaction) {
		finalized = append(finalized, txn)
	}))

	_, err := eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(5)),
		testutil.SetCode(t, sheet.ID, "B1", grid.LangFormula, "=A1"),
	}, "")
	require.NoError(t, err)

	require.Len(t, finalized, 1)
	ops := finalized[0].Ops
	// The cell write, the recorded code edit, and the injected result.
	require.Len(t, ops, 3)
	assert.Equal(t, op.TypeSetCellValues, ops[0].Type())
	sd, ok := ops[1].(op.SetDataTable)
	require.True(t, ok)
	assert.False(t, sd.Recompute, "recorded code edits drop the local trigger")
	assert.Equal(t, op.TypeSetDataTable, ops[2].Type())
}

func TestDirtyNotifierCoversRecomputedCells(t *testing.T) {
	var dirty []grid.SheetRect
	eng, sheet, _ := newTestEngine(t, engine.WithDirtyNotifier(func(srs []grid.SheetRect) {
		dirty = append(dirty, srs...)
	}))

	_, err := eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(5)),
		testutil.SetCode(t, sheet.ID, "B1", grid.LangFormula, "=A1"),
	}, "")
	require.NoError(t, err)

	covers := func(ref string) bool {
		p := testutil.MustPos(t, ref)
		for _, sr := range dirty {
			if sr.Sheet == sheet.ID && sr.Rect.Contains(p) {
				return true
			}
		}
		return false
	}
	assert.True(t, covers("A1"))
	assert.True(t, covers("B1"))
}

func TestSheetLifecycleOps(t *testing.T) {
	eng, _, _ := newTestEngine(t)
	g := eng.Grid()

	added := grid.NewSheet("Data", g.EndOrderKey())
	_, err := eng.Transact([]op.Operation{
		op.AddSheet{Snapshot: added.Snapshot()},
	}, "")
	require.NoError(t, err)
	require.Equal(t, 2, g.SheetCount())

	_, err = eng.Transact([]op.Operation{
		op.SetSheetName{Sheet: added.ID, Name: "Data 2024"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "Data 2024", g.MustSheet(added.ID).Name)

	_, err = eng.Transact([]op.Operation{
		op.DeleteSheet{Sheet: added.ID},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 1, g.SheetCount())

	// Undo restores the deleted sheet with its name.
	_, err = eng.Undo()
	require.NoError(t, err)
	assert.Equal(t, 2, g.SheetCount())
	assert.Equal(t, "Data 2024", g.MustSheet(added.ID).Name)
}

func TestDeleteSheetRecomputesCrossSheetReaders(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)
	g := eng.Grid()

	data := grid.NewSheet("Data", g.EndOrderKey())
	_, err := eng.Transact([]op.Operation{
		op.AddSheet{Snapshot: data.Snapshot()},
	}, "")
	require.NoError(t, err)

	_, err = eng.Transact([]op.Operation{
		testutil.SetCell(t, data.ID, "A1", grid.Number(5)),
		testutil.SetCode(t, sheet.ID, "B1", grid.LangFormula, "=Data!A1"),
	}, "")
	require.NoError(t, err)
	require.True(t, grid.Equal(grid.Number(5), display(t, eng, sheet.ID, "B1")))

	// Deleting the sheet dirties its bounds, so the cross-sheet reader
	// re-evaluates into a reference error instead of keeping the last
	// value it read from the dead sheet.
	_, err = eng.Transact([]op.Operation{
		op.DeleteSheet{Sheet: data.ID},
	}, "")
	require.NoError(t, err)
	_, ok := display(t, eng, sheet.ID, "B1").(grid.ErrorValue)
	assert.True(t, ok, "reader of a deleted sheet must not show a stale value")

	// Undoing the delete restores the source and recomputes the reader.
	_, err = eng.Undo()
	require.NoError(t, err)
	assert.True(t, grid.Equal(grid.Number(5), display(t, eng, sheet.ID, "B1")))
}

func TestAsyncSecondDispatchWaitsForFirst(t *testing.T) {
	eng, sheet, runner := newTestEngine(t)

	id, err := eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "B1", grid.LangPython, "1"),
		testutil.SetCode(t, sheet.ID, "C1", grid.LangPython, "2"),
	}, "")
	require.NoError(t, err)

	// Only the first code cell reaches the collaborator while the
	// transaction is parked on it.
	require.Len(t, runner.Requests(), 1)
	pt, ok := eng.Awaiting(id)
	require.True(t, ok)
	pos, _, waiting := pt.Waiting()
	require.True(t, waiting)
	assert.Equal(t, testutil.MustPos(t, "B1"), pos.Pos)

	require.NoError(t, eng.CompleteAsync(id, engine.RunResult{
		Value: grid.ScalarValue(grid.Number(1)),
	}))

	// The first result unparks the drain, which dispatches the second
	// under the same transaction id.
	require.Len(t, runner.Requests(), 2)
	assert.Equal(t, "2", runner.Requests()[1].Code)
	pt, ok = eng.Awaiting(id)
	require.True(t, ok)
	pos, _, waiting = pt.Waiting()
	require.True(t, waiting)
	assert.Equal(t, testutil.MustPos(t, "C1"), pos.Pos)
	assert.Equal(t, 0, eng.UndoDepth(), "still one open transaction")

	require.NoError(t, eng.CompleteAsync(id, engine.RunResult{
		Value: grid.ScalarValue(grid.Number(2)),
	}))
	assert.Equal(t, 0, eng.AwaitingCount())
	assert.Equal(t, 1, eng.UndoDepth())
	assert.True(t, grid.Equal(grid.Number(1), display(t, eng, sheet.ID, "B1")))
	assert.True(t, grid.Equal(grid.Number(2), display(t, eng, sheet.ID, "C1")))
}

func TestResizeRepaintsWithoutRecompute(t *testing.T) {
	var dirty []grid.SheetRect
	eng, sheet, runner := newTestEngine(t, engine.WithDirtyNotifier(func(srs []grid.SheetRect) {
		dirty = append(dirty, srs...)
	}))

	id, err := eng.Transact([]op.Operation{
		testutil.SetCode(t, sheet.ID, "B1", grid.LangPython, "q.cells('A1')"),
	}, "")
	require.NoError(t, err)
	require.NoError(t, eng.CompleteAsync(id, engine.RunResult{
		Value: grid.ScalarValue(grid.Number(1)),
		CellsAccessed: []grid.SheetRect{
			{Sheet: sheet.ID, Rect: grid.SingleRect(testutil.MustPos(t, "A1"))},
		},
	}))
	require.Len(t, runner.Requests(), 1)

	// Resizing the column B1 reads from repaints it but never re-runs
	// the code: layout changes leave computed values valid.
	dirty = nil
	_, err = eng.Transact([]op.Operation{
		op.ResizeColumn{Sheet: sheet.ID, Col: 0, Width: 120},
	}, "")
	require.NoError(t, err)
	assert.Len(t, runner.Requests(), 1, "no re-dispatch on resize")
	assert.Equal(t, 0, eng.AwaitingCount())

	covered := false
	for _, sr := range dirty {
		if sr.Sheet == sheet.ID && sr.Rect.Contains(testutil.MustPos(t, "A1")) {
			covered = true
		}
	}
	assert.True(t, covered, "the resized column strip is reported for repaint")
}

func TestRejectedOperationSkipsButContinues(t *testing.T) {
	eng, sheet, _ := newTestEngine(t)

	// The middle operation targets a missing sheet; the transaction
	// applies everything else.
	_, err := eng.Transact([]op.Operation{
		testutil.SetCell(t, sheet.ID, "A1", grid.Number(1)),
		op.SetSheetName{Sheet: "missing", Name: "X"},
		testutil.SetCell(t, sheet.ID, "B1", grid.Number(2)),
	}, "")
	require.NoError(t, err)
	assert.True(t, grid.Equal(grid.Number(1), display(t, eng, sheet.ID, "A1")))
	assert.True(t, grid.Equal(grid.Number(2), display(t, eng, sheet.ID, "B1")))
}
