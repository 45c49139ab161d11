package service

import "sync"

// spotLocks hands out one mutex per (lot, label) so the overlap check and
// the insert of a proposal are atomic per spot. Proposals on different
// spots proceed fully in parallel; there is no global lock.
//
// Entries are reference counted and dropped once the last holder releases,
// so the map stays bounded by in-flight proposals rather than by every
// spot ever booked.
type spotLocks struct {
	mu    sync.Mutex
	locks map[string]*spotLock
}

type spotLock struct {
	mu   sync.Mutex
	refs int
}

func newSpotLocks() *spotLocks {
	return &spotLocks{locks: make(map[string]*spotLock)}
}

// acquire blocks until the lock for the spot is held and returns the
// release function.
func (s *spotLocks) acquire(lotID, label string) func() {
	key := lotID + "|" + label

	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &spotLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}
