package engine

import "log/slog"

// Sequencer reconciles the local optimistic timeline with the global
// order assigned by the external ordering collaborator.
//
// Local transactions apply immediately and are tracked here until their
// sequence number comes back, at which point they are marked applied
// rather than reapplied. Remote transactions carry a sequence number and
// must apply in that order; arrivals past a gap are buffered until the
// gap fills. Conflicting concurrent edits need no merge logic: every
// operation is a full replacement of a region, so sequence order alone
// yields last-writer-wins convergence.
type Sequencer struct {
	lastApplied uint64

	// unsequenced tracks locally applied transactions awaiting an ack.
	unsequenced map[TxnID]Transaction

	// pending buffers sequenced transactions (or "already applied
	// locally" markers) above the contiguous frontier.
	pending map[uint64]sequenced
}

type sequenced struct {
	txn   Transaction
	local bool // already applied optimistically; advance only
}

// NewSequencer creates a sequencer with no history.
func NewSequencer() *Sequencer {
	return &Sequencer{
		unsequenced: make(map[TxnID]Transaction),
		pending:     make(map[uint64]sequenced),
	}
}

// LastApplied returns the highest contiguously applied sequence number.
func (s *Sequencer) LastApplied() uint64 {
	return s.lastApplied
}

// UnsequencedCount returns how many local transactions await their ack.
func (s *Sequencer) UnsequencedCount() int {
	return len(s.unsequenced)
}

// TrackLocal records a locally applied transaction whose sequence number
// has not come back yet.
func (s *Sequencer) TrackLocal(t Transaction) {
	s.unsequenced[t.ID] = t
}

// Ack assigns the collaborator's sequence number to a tracked local
// transaction. The transaction itself is already applied; the ack only
// advances the frontier. Any buffered foreign transactions that become
// contiguous are returned in order for application.
func (s *Sequencer) Ack(id TxnID, seq uint64) []Transaction {
	t, ok := s.unsequenced[id]
	if !ok {
		// Either a duplicate ack or an ack for a transaction this client
		// never sent. Nothing to reconcile.
		slog.Warn("ack for untracked transaction", "txn", id, "seq", seq)
		return nil
	}
	delete(s.unsequenced, id)
	t.Seq = seq
	s.pending[seq] = sequenced{txn: t, local: true}
	return s.drain()
}

// Receive buffers a foreign sequenced transaction and returns every
// transaction now ready to apply, in sequence order. Duplicates at or
// below the frontier are dropped.
func (s *Sequencer) Receive(t Transaction) []Transaction {
	if t.Seq == 0 {
		slog.Warn("remote transaction without sequence number dropped", "txn", t.ID)
		return nil
	}
	if t.Seq <= s.lastApplied {
		slog.Debug("duplicate sequenced transaction dropped", "txn", t.ID, "seq", t.Seq)
		return nil
	}
	if _, ok := s.pending[t.Seq]; !ok {
		s.pending[t.Seq] = sequenced{txn: t}
	}
	return s.drain()
}

// drain advances the contiguous frontier, emitting foreign transactions
// that must now apply and skipping local ones (already applied).
func (s *Sequencer) drain() []Transaction {
	var ready []Transaction
	for {
		next, ok := s.pending[s.lastApplied+1]
		if !ok {
			return ready
		}
		delete(s.pending, s.lastApplied+1)
		s.lastApplied++
		if !next.local {
			ready = append(ready, next.txn)
		}
	}
}
