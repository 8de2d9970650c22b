// Package ids provides the process-unique id sequence shared by every
// persistent object in the engine (subjects, archetypes, traittypes,
// beliefs, states, minds).
package ids

import "sync/atomic"

// Sequence is a monotone generator of uint64 ids, starting at 1.
// The zero value is ready to use.
type Sequence struct {
	counter uint64
}

// Next returns the next id in the sequence.
func (s *Sequence) Next() uint64 {
	return atomic.AddUint64(&s.counter, 1)
}

// Reset zeroes the sequence. Intended for the registry reset hook;
// never call this while any id issued since the last reset is still reachable.
func (s *Sequence) Reset() {
	atomic.StoreUint64(&s.counter, 0)
}

// Peek returns the most recently issued id without consuming one, or 0 if
// Next has never been called since construction or the last Reset.
func (s *Sequence) Peek() uint64 {
	return atomic.LoadUint64(&s.counter)
}
