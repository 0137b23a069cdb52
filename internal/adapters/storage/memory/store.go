package memory

import (
	"context"
	"sync"

	"stream-prober/internal/domain"
)

// Store keeps completed run records in insertion order, evicting the oldest
// once capacity is reached.
type Store struct {
	mu      sync.RWMutex
	runs    []domain.RunRecord
	maxRuns int
	evicted int
}

func NewStore(maxRuns int) *Store {
	if maxRuns <= 0 {
		maxRuns = 100
	}
	return &Store{runs: make([]domain.RunRecord, 0, maxRuns), maxRuns: maxRuns}
}

func (s *Store) AppendRun(ctx context.Context, r domain.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.runs) >= s.maxRuns {
		n := copy(s.runs, s.runs[1:])
		s.runs = s.runs[:n]
		s.evicted++
	}
	s.runs = append(s.runs, r)
	return nil
}

func (s *Store) ListRuns(ctx context.Context) ([]domain.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RunRecord, len(s.runs))
	copy(out, s.runs)
	return out, nil
}

func (s *Store) ClearRuns(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = s.runs[:0]
	return nil
}

// Evicted returns how many runs were dropped to capacity.
func (s *Store) Evicted() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.evicted
}
