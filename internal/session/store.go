package session

import "sync"

// SeqNumStore persists the next expected inbound and next outbound sequence
// numbers so a reconnect under the same identity pair resumes where the last
// connection stopped. The engine calls Save after every counter change;
// implementations decide durability. The engine itself never implements
// persistence beyond the in-memory default.
type SeqNumStore interface {
	Load() (nextInbound, nextOutbound uint64, err error)
	Save(nextInbound, nextOutbound uint64) error
}

// MemoryStore is the default SeqNumStore: counters live and die with the
// process. Both counters start at 1.
type MemoryStore struct {
	mu  sync.Mutex
	in  uint64
	out uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{in: 1, out: 1}
}

func (s *MemoryStore) Load() (uint64, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.in, s.out, nil
}

func (s *MemoryStore) Save(nextInbound, nextOutbound uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.in, s.out = nextInbound, nextOutbound
	return nil
}
