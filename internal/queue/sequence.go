package queue

import (
	"sync/atomic"
	"time"
)

// Sequencer hands out increasing patch sequence numbers. The repository
// uses them to reject a patch older than one it already wrote, so numbers
// must keep growing across restarts of a process sharing the same database.
type Sequencer struct{ n atomic.Uint64 }

// NewSequencer starts numbering after the current wall clock in nanoseconds.
func NewSequencer() *Sequencer {
	s := &Sequencer{}
	s.Seed(uint64(time.Now().UnixNano()))
	return s
}

// Seed raises the counter to at least start. It never moves it backwards.
func (s *Sequencer) Seed(start uint64) {
	for {
		cur := s.n.Load()
		if cur >= start || s.n.CompareAndSwap(cur, start) {
			return
		}
	}
}

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }
