package sequence

import "sync/atomic"

// Sequencer hands out strictly increasing order ids. Ids are never reused;
// after WAL replay it resumes from the last replayed id.
type Sequencer struct {
	next atomic.Uint64
}

func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.next.Store(start)
	return s
}

// Next returns the next id.
func (s *Sequencer) Next() uint64 {
	return s.next.Add(1)
}

// Current returns the last issued id.
func (s *Sequencer) Current() uint64 {
	return s.next.Load()
}

// Reset jumps the sequencer forward. Only used after replay.
func (s *Sequencer) Reset(v uint64) {
	s.next.Store(v)
}
