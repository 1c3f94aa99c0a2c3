// Package engine implements the transaction and computation core: it
// turns user intent into applied, undoable, replicable operation
// sequences, schedules dependent recomputation, and coordinates the
// suspend/resume protocol for asynchronous external code execution.
package engine

import (
	"log/slog"
	"sync"

	"github.com/roach88/tabula/internal/grid"
	"github.com/roach88/tabula/internal/metrics"
	"github.com/roach88/tabula/internal/op"
)

// DefaultMaxOps is the default cap on operations applied per
// transaction. It bounds runaway recompute cascades; ordinary
// transactions stay far below it.
const DefaultMaxOps = 10000

// Engine is the single-writer transaction engine for one grid.
//
// All mutation funnels through the engine: local calls, async
// completions, and remote sequenced transactions serialize onto the same
// apply path. There is exactly one logical writer, so the engine holds
// no fine-grained locks; the whole public surface sits behind one mutex
// for hosts that call in from multiple goroutines.
//
// INVARIANTS:
//   - At most one PendingTransaction is suspended per outstanding async
//     dispatch; the transaction id is the resume correlation key.
//   - A pending transaction is consumed into a durable Transaction
//     exactly once, and is never both finalized and awaiting.
//   - Remote transactions apply in sequence-number order.
type Engine struct {
	mu sync.Mutex

	grid  *grid.Grid
	idGen TxnIDGenerator

	eval   FormulaEvaluator
	runner CodeRunner

	// awaiting parks transactions suspended on an async call, keyed by
	// the id the external collaborator must echo back.
	awaiting map[TxnID]*PendingTransaction

	undoStack []*Transaction
	redoStack []*Transaction

	seq       *Sequencer
	broadcast func(Transaction)

	onFinalize func(Transaction)
	onDirty    func([]grid.SheetRect)

	maxOps  int
	metrics *metrics.Set
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvaluator injects the synchronous formula evaluator.
func WithEvaluator(ev FormulaEvaluator) Option {
	return func(e *Engine) { e.eval = ev }
}

// WithRunner injects the async script/connector collaborator.
func WithRunner(r CodeRunner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithIDGenerator overrides transaction id generation (tests).
func WithIDGenerator(g TxnIDGenerator) Option {
	return func(e *Engine) { e.idGen = g }
}

// WithBroadcast sets the outbound hook handing locally finalized
// transactions to the multiplayer ordering collaborator.
func WithBroadcast(fn func(Transaction)) Option {
	return func(e *Engine) { e.broadcast = fn }
}

// WithFinalizeHook sets a hook invoked with every finalized transaction,
// local or remote. The journal subscribes here.
func WithFinalizeHook(fn func(Transaction)) Option {
	return func(e *Engine) { e.onFinalize = fn }
}

// WithDirtyNotifier sets a hook invoked with the dirty regions of every
// finalized transaction, for renderers and collaborators.
func WithDirtyNotifier(fn func([]grid.SheetRect)) Option {
	return func(e *Engine) { e.onDirty = fn }
}

// WithMaxOps overrides the per-transaction operation cap.
func WithMaxOps(n int) Option {
	return func(e *Engine) { e.maxOps = n }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Set) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates an engine owning g. The grid must not be mutated except
// through the engine from this point on.
func New(g *grid.Grid, opts ...Option) *Engine {
	e := &Engine{
		grid:     g,
		idGen:    UUIDv7Generator{},
		awaiting: make(map[TxnID]*PendingTransaction),
		seq:      NewSequencer(),
		maxOps:   DefaultMaxOps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Grid returns the engine's grid for reading. Callers must not mutate it.
func (e *Engine) Grid() *grid.Grid {
	return e.grid
}

// Transact begins a transaction from user intent: applies the operations
// (and everything they trigger), then either finalizes synchronously or
// parks awaiting an async result. The returned id identifies the
// transaction in either case.
func (e *Engine) Transact(ops []op.Operation, cursor string) (TxnID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pt := newPending(e.idGen.Generate(), SourceUser, cursor, ops)
	slog.Debug("transaction started", "txn", pt.ID, "ops", len(ops))
	if err := e.run(pt); err != nil {
		return pt.ID, err
	}
	return pt.ID, nil
}

// CompleteAsync resumes the transaction awaiting the given id with the
// external collaborator's result. An unknown id is fatal to nothing but
// that result: it is logged and reported, the store is untouched.
func (e *Engine) CompleteAsync(id TxnID, res RunResult) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	pt, ok := e.awaiting[id]
	if !ok {
		err := &EngineError{Code: ErrCodeUnknownTxn, Txn: id, Msg: "no transaction awaiting this result"}
		slog.Error("async completion rejected", "txn", id, "error", err)
		return err
	}
	delete(e.awaiting, id)
	if e.metrics != nil {
		e.metrics.AsyncResumed.Inc()
	}
	return e.resume(pt, res)
}

// Undo pops the most recent undo entry and re-runs it as a fresh
// transaction carrying the stored reverse operations.
func (e *Engine) Undo() (TxnID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.undoStack) == 0 {
		return "", ErrNothingToUndo
	}
	entry := e.undoStack[len(e.undoStack)-1]
	e.undoStack = e.undoStack[:len(e.undoStack)-1]

	// A fresh id: the replayed transaction must not collide with the
	// original in replication or logging.
	pt := newPending(e.idGen.Generate(), SourceUndo, entry.Cursor, entry.Ops)
	slog.Debug("undo", "txn", pt.ID, "undoes", entry.ID)
	if err := e.run(pt); err != nil {
		return pt.ID, err
	}
	return pt.ID, nil
}

// Redo pops the most recent redo entry and re-runs it.
func (e *Engine) Redo() (TxnID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.redoStack) == 0 {
		return "", ErrNothingToRedo
	}
	entry := e.redoStack[len(e.redoStack)-1]
	e.redoStack = e.redoStack[:len(e.redoStack)-1]

	pt := newPending(e.idGen.Generate(), SourceRedo, entry.Cursor, entry.Ops)
	slog.Debug("redo", "txn", pt.ID, "redoes", entry.ID)
	if err := e.run(pt); err != nil {
		return pt.ID, err
	}
	return pt.ID, nil
}

// ReceiveRemote accepts a sequenced transaction from another client.
// Transactions apply in sequence order; out-of-order arrivals are
// buffered until the gap fills.
func (e *Engine) ReceiveRemote(t Transaction) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ready := range e.seq.Receive(t) {
		if err := e.applyRemote(ready); err != nil {
			return err
		}
	}
	return nil
}

// AckSequence records the sequence number the ordering collaborator
// assigned to a locally applied transaction. The local edit is
// reconciled, not reapplied; any buffered remote transactions unblocked
// by the ack apply now.
func (e *Engine) AckSequence(id TxnID, seq uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, ready := range e.seq.Ack(id, seq) {
		if err := e.applyRemote(ready); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyRemote(t Transaction) error {
	pt := newPending(t.ID, SourceRemote, t.Cursor, t.Ops)
	slog.Debug("applying remote transaction", "txn", t.ID, "seq", t.Seq)
	return e.run(pt)
}

// UndoDepth returns the undo stack depth.
func (e *Engine) UndoDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.undoStack)
}

// RedoDepth returns the redo stack depth.
func (e *Engine) RedoDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.redoStack)
}

// AwaitingCount returns the number of transactions parked on async calls.
func (e *Engine) AwaitingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.awaiting)
}

// Awaiting returns the parked transaction with the given id, if any.
// For tests and diagnostics.
func (e *Engine) Awaiting(id TxnID) (*PendingTransaction, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pt, ok := e.awaiting[id]
	return pt, ok
}

// LastSequence returns the highest contiguously applied sequence number.
func (e *Engine) LastSequence() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq.LastApplied()
}
