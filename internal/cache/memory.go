package cache

import (
	"context"
	"sync"

	"basegraph.app/tally/internal/model"
)

// MemoryStore keeps the encoded snapshot in process. It round-trips through
// the same codec as the persistent stores so callers never share slices with it.
type MemoryStore struct {
	mu   sync.RWMutex
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Get(ctx context.Context) (*model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.data == nil {
		return nil, nil
	}
	return decode(s.data)
}

func (s *MemoryStore) Set(ctx context.Context, snapshot model.Snapshot) error {
	data, err := encode(snapshot)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// SetRaw stores bytes as-is. Used to seed fixtures and legacy payloads.
func (s *MemoryStore) SetRaw(data []byte) {
	s.mu.Lock()
	s.data = append([]byte(nil), data...)
	s.mu.Unlock()
}
