package engine

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/tabula/internal/grid"
	"github.com/roach88/tabula/internal/op"
)

// Source records where a transaction originated. It decides which
// history stack the inverse lands on and whether the transaction is
// broadcast to collaborators.
type Source string

const (
	SourceUser   Source = "user"
	SourceUndo   Source = "undo"
	SourceRedo   Source = "redo"
	SourceRemote Source = "remote"
)

// Transaction is the durable, replicable record of a completed (or
// foreign) transaction: an id, an ordered operation list, optional
// client cursor metadata, and the sequence number once assigned. It is
// the atomic unit written to history and sent over the wire, and it
// serializes deterministically so reverse replay stays correct.
type Transaction struct {
	ID     TxnID
	Seq    uint64
	Source Source
	Cursor string
	Ops    []op.Operation
}

type transactionWire struct {
	ID     TxnID           `json:"id"`
	Seq    uint64          `json:"sequence_num,omitempty"`
	Source Source          `json:"source"`
	Cursor string          `json:"cursor,omitempty"`
	Ops    json.RawMessage `json:"operations"`
}

// MarshalJSON implements json.Marshaler.
func (t Transaction) MarshalJSON() ([]byte, error) {
	ops, err := op.MarshalList(t.Ops)
	if err != nil {
		return nil, fmt.Errorf("engine: marshal transaction %s: %w", t.ID, err)
	}
	return json.Marshal(transactionWire{
		ID:     t.ID,
		Seq:    t.Seq,
		Source: t.Source,
		Cursor: t.Cursor,
		Ops:    ops,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var w transactionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("engine: unmarshal transaction: %w", err)
	}
	ops, err := op.UnmarshalList(w.Ops)
	if err != nil {
		return err
	}
	*t = Transaction{ID: w.ID, Seq: w.Seq, Source: w.Source, Cursor: w.Cursor, Ops: ops}
	return nil
}

// PendingTransaction is a transaction in flight, owned exclusively by
// the engine. Operations drain from the front of the queue; applying one
// may append more (recompute scheduling, code-edit follow-ups), which
// makes draining a work-list rather than a single pass. A pending
// transaction is consumed into a durable Transaction exactly once,
// either synchronously or after a suspend/resume round-trip.
type PendingTransaction struct {
	ID     TxnID
	Source Source
	Cursor string

	queue   []op.Operation
	forward []op.Operation // as applied, in order (replication)
	reverse []op.Operation // inverses in application order; reversed at finalize

	dirty         []grid.SheetRect
	cellsAccessed []grid.SheetRect

	// evaluating is the ancestor stack of code cells currently being
	// computed in this transaction (including a parked async cell). A
	// read that touches any ancestor's rectangle is a circular reference.
	evaluating []grid.SheetPos

	// planned marks code cells already scheduled or computed in this
	// transaction: each code cell re-evaluates at most once per txn.
	planned map[grid.SheetPos]bool

	waiting     bool
	waitingPos  grid.SheetPos
	waitingLang grid.Language

	complete bool
}

func newPending(id TxnID, source Source, cursor string, ops []op.Operation) *PendingTransaction {
	queue := make([]op.Operation, len(ops))
	copy(queue, ops)
	return &PendingTransaction{
		ID:      id,
		Source:  source,
		Cursor:  cursor,
		queue:   queue,
		planned: make(map[grid.SheetPos]bool),
	}
}

// pushBack appends o to the work list.
func (pt *PendingTransaction) pushBack(o op.Operation) {
	pt.queue = append(pt.queue, o)
}

// Waiting reports whether the transaction is parked on an async call,
// and for which cell.
func (pt *PendingTransaction) Waiting() (grid.SheetPos, grid.Language, bool) {
	return pt.waitingPos, pt.waitingLang, pt.waiting
}

// CellsAccessed returns every rectangle read by code evaluated during
// this transaction so far.
func (pt *PendingTransaction) CellsAccessed() []grid.SheetRect {
	return pt.cellsAccessed
}
