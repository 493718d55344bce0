package mkr5

import "sync"

// stateStore is the in-process map addr -> PumpState (spec.md §4.4). Lazily
// populated on first observation, single-writer (PumpMaster's dispatch
// path), many-reader via RWMutex. Per §9's "global defaultdict store ->
// explicit ownership" note, this type is unexported and only ever reached
// through PumpMaster.
type stateStore struct {
	mu    sync.RWMutex
	pumps map[PumpAddress]*PumpState
}

func newStateStore() *stateStore {
	return &stateStore{pumps: make(map[PumpAddress]*PumpState)}
}

// get returns the pump record for addr, creating it on first observation.
func (s *stateStore) get(addr PumpAddress) *PumpState {
	s.mu.RLock()
	p, ok := s.pumps[addr]
	s.mu.RUnlock()
	if ok {
		return p
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pumps[addr]; ok {
		return p
	}
	p = newPumpState(addr)
	s.pumps[addr] = p
	return p
}

// snapshot returns a deep copy of one pump's state, or nil if never seen.
// The copy is taken under the record's own lock, not just the store's map
// lock, so it never races PumpMaster's dispatch-path writes to the same
// PumpState (spec.md §4.4).
func (s *stateStore) snapshot(addr PumpAddress) *PumpState {
	s.mu.RLock()
	p, ok := s.pumps[addr]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.copyLocked()
}

// list returns a deep-copied snapshot of every pump observed so far.
func (s *stateStore) list() []*PumpState {
	s.mu.RLock()
	pumps := make([]*PumpState, 0, len(s.pumps))
	for _, p := range s.pumps {
		pumps = append(pumps, p)
	}
	s.mu.RUnlock()

	out := make([]*PumpState, 0, len(pumps))
	for _, p := range pumps {
		p.mu.RLock()
		out = append(out, p.copyLocked())
		p.mu.RUnlock()
	}
	return out
}
