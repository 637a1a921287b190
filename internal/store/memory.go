package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/testherd/testherd/internal/core"
)

// memoryStore is the embedded ResultStore used when no database is configured
// (and by tests). Sets are copied on the way in and out so callers can never
// mutate shared state.
type memoryStore struct {
	mu   sync.RWMutex
	sets map[string]*core.ResultSet
}

// NewMemoryStore returns an empty in-memory result store.
func NewMemoryStore() ResultStore {
	return &memoryStore{sets: make(map[string]*core.ResultSet)}
}

func (s *memoryStore) Put(_ context.Context, rs *core.ResultSet) error {
	if rs == nil || rs.CommitID == "" {
		return fmt.Errorf("result set must carry a commit id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[rs.CommitID] = copySet(rs)
	return nil
}

func (s *memoryStore) Get(_ context.Context, commitID string) (*core.ResultSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.sets[commitID]
	if !ok {
		return nil, ErrNotFound
	}
	return copySet(rs), nil
}

func (s *memoryStore) Latest(_ context.Context) (*core.ResultSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *core.ResultSet
	for _, rs := range s.sets {
		if latest == nil || rs.Sequence > latest.Sequence {
			latest = rs
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return copySet(latest), nil
}

func copySet(rs *core.ResultSet) *core.ResultSet {
	cp := *rs
	cp.Results = make([]core.Result, len(rs.Results))
	copy(cp.Results, rs.Results)
	return &cp
}
