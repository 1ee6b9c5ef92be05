// Package memory provides an in-memory CheckpointStore for tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/smallnest/blogforge/store"
)

// MemoryCheckpointStore implements store.CheckpointStore in process memory.
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*store.Checkpoint // by checkpoint ID
	byRun       map[string][]string          // run ID -> checkpoint IDs in save order
}

var _ store.CheckpointStore = (*MemoryCheckpointStore)(nil)

// NewMemoryCheckpointStore creates a new in-memory checkpoint store.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*store.Checkpoint),
		byRun:       make(map[string][]string),
	}
}

// Save stores a checkpoint.
func (s *MemoryCheckpointStore) Save(ctx context.Context, cp *store.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.checkpoints[cp.ID]; !exists {
		s.byRun[cp.RunID] = append(s.byRun[cp.RunID], cp.ID)
	}
	clone := *cp
	s.checkpoints[cp.ID] = &clone
	return nil
}

// Load retrieves a checkpoint by ID.
func (s *MemoryCheckpointStore) Load(ctx context.Context, checkpointID string) (*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *cp
	return &clone, nil
}

// List returns all checkpoints for a run in version order.
func (s *MemoryCheckpointStore) List(ctx context.Context, runID string) ([]*store.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byRun[runID]
	result := make([]*store.Checkpoint, 0, len(ids))
	for _, id := range ids {
		if cp, ok := s.checkpoints[id]; ok {
			clone := *cp
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

// Latest returns the highest-version checkpoint for a run.
func (s *MemoryCheckpointStore) Latest(ctx context.Context, runID string) (*store.Checkpoint, error) {
	checkpoints, err := s.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(checkpoints) == 0 {
		return nil, store.ErrNotFound
	}
	return checkpoints[len(checkpoints)-1], nil
}

// Delete removes a checkpoint.
func (s *MemoryCheckpointStore) Delete(ctx context.Context, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[checkpointID]
	if !ok {
		return nil
	}
	delete(s.checkpoints, checkpointID)

	ids := s.byRun[cp.RunID]
	for i, id := range ids {
		if id == checkpointID {
			s.byRun[cp.RunID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Clear removes all checkpoints for a run.
func (s *MemoryCheckpointStore) Clear(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.byRun[runID] {
		delete(s.checkpoints, id)
	}
	delete(s.byRun, runID)
	return nil
}
