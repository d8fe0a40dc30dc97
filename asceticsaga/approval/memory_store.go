package approval

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStateStore keeps the latest snapshot of every workflow in memory.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]State
	saves  int
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]State)}
}

func (s *MemoryStateStore) SaveState(_ context.Context, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.WorkflowID] = state.clone()
	s.saves++
	return nil
}

func (s *MemoryStateStore) LoadState(_ context.Context, workflowID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[workflowID]
	if !ok {
		return State{}, errors.Wrapf(ErrWorkflowNotFound, "workflow %s", workflowID)
	}
	return state.clone(), nil
}

// Saves is the number of snapshots written so far.
func (s *MemoryStateStore) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
