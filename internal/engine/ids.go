package engine

import (
	"sync"

	"github.com/google/uuid"
)

// TxnID identifies a transaction. It is the correlation key between a
// suspended transaction and its async result, and the identity used by
// the undo stacks, the journal, and the multiplayer sequencer.
type TxnID string

// TxnIDGenerator produces unique transaction ids.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type TxnIDGenerator interface {
	Generate() TxnID
}

// UUIDv7Generator generates time-sortable UUIDv7 transaction ids.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
func (UUIDv7Generator) Generate() TxnID {
	return TxnID(uuid.Must(uuid.NewV7()).String())
}

// FixedGenerator returns predetermined ids for testing, enabling
// deterministic traces and golden comparison.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []TxnID
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
// Generate panics once all ids are consumed; this fail-fast behavior
// catches tests that create more transactions than they expected.
func NewFixedGenerator(ids ...TxnID) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
func (g *FixedGenerator) Generate() TxnID {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all transaction ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
