package mkr5

import (
	"sync"
	"time"
)

// mockEndpoint is an in-memory Endpoint double: writes are recorded, and
// Read drains a queue of canned reply chunks fed in by the test via
// enqueueReply. It mirrors the sort of fake driven by no-hardware CI that
// spec.md §8's scenarios assume.
type mockEndpoint struct {
	mu      sync.Mutex
	writes  [][]byte
	replies [][]byte
	closed  bool
	readErr error
}

func newMockEndpoint() *mockEndpoint {
	return &mockEndpoint{}
}

func (m *mockEndpoint) WriteAll(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := append([]byte(nil), data...)
	m.writes = append(m.writes, cp)
	return nil
}

// enqueueReply schedules chunk to be returned by the next Read call.
func (m *mockEndpoint) enqueueReply(chunk []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, chunk)
}

// Read mirrors serialio.Port.Read's real blocking behavior: when no reply
// is queued, it blocks for the entire remaining time until deadline rather
// than returning early, the same way poll.WaitInput blocks a real fd. A
// mock that returns quickly regardless of deadline would hide bugs where
// Transact fails to bound each Read call by the GAP instead of the full
// transact timeout.
func (m *mockEndpoint) Read(deadline time.Time) ([]byte, error) {
	m.mu.Lock()
	if m.readErr != nil {
		m.mu.Unlock()
		return nil, m.readErr
	}
	if len(m.replies) > 0 {
		chunk := m.replies[0]
		m.replies = m.replies[1:]
		m.mu.Unlock()
		return chunk, nil
	}
	m.mu.Unlock()

	if deadline.IsZero() {
		time.Sleep(time.Millisecond)
		return nil, nil
	}
	if remaining := time.Until(deadline); remaining > 0 {
		time.Sleep(remaining)
	}
	return nil, nil
}

func (m *mockEndpoint) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockEndpoint) lastWrite() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return nil
	}
	return m.writes[len(m.writes)-1]
}
