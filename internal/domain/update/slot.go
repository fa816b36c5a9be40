package update

import "sync"

// Slot holds at most one pending descriptor. Store overwrites, Take reads and clears.
// The zero value is an empty slot ready for use.
type Slot struct {
	// mu serializes Store and Take.
	mu sync.Mutex
	// pending is the descriptor waiting for install.
	pending *Descriptor
}

// Store puts the descriptor into the slot and returns the one it replaced, if any.
func (s *Slot) Store(d *Descriptor) *Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := s.pending
	s.pending = d

	return replaced
}

// Take returns the pending descriptor and leaves the slot empty.
// It returns nil when nothing is pending.
func (s *Slot) Take() *Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.pending
	s.pending = nil

	return pending
}
