package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/blogforge/store"
)

func newCheckpoint(id, runID, node string, version int) *store.Checkpoint {
	return &store.Checkpoint{
		ID:        id,
		RunID:     runID,
		NodeName:  node,
		State:     map[string]any{"node": node},
		Timestamp: time.Now(),
		Version:   version,
	}
}

func TestMemoryCheckpointStore_SaveLoad(t *testing.T) {
	s := NewMemoryCheckpointStore()
	ctx := context.Background()

	cp := newCheckpoint("cp-1", "run-1", "outline", 1)
	require.NoError(t, s.Save(ctx, cp))

	loaded, err := s.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, "outline", loaded.NodeName)

	_, err = s.Load(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryCheckpointStore_ListAndLatest(t *testing.T) {
	s := NewMemoryCheckpointStore()
	ctx := context.Background()

	// Save out of order; List must sort by version.
	require.NoError(t, s.Save(ctx, newCheckpoint("cp-2", "run-1", "draft", 2)))
	require.NoError(t, s.Save(ctx, newCheckpoint("cp-1", "run-1", "outline", 1)))
	require.NoError(t, s.Save(ctx, newCheckpoint("cp-other", "run-2", "outline", 1)))

	list, err := s.List(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "cp-1", list[0].ID)
	assert.Equal(t, "cp-2", list[1].ID)

	latest, err := s.Latest(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "cp-2", latest.ID)

	_, err = s.Latest(ctx, "run-none")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMemoryCheckpointStore_DeleteAndClear(t *testing.T) {
	s := NewMemoryCheckpointStore()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, newCheckpoint("cp-1", "run-1", "a", 1)))
	require.NoError(t, s.Save(ctx, newCheckpoint("cp-2", "run-1", "b", 2)))

	require.NoError(t, s.Delete(ctx, "cp-1"))
	list, err := s.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.Clear(ctx, "run-1"))
	list, err = s.List(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestMemoryCheckpointStore_SaveIsCopy(t *testing.T) {
	s := NewMemoryCheckpointStore()
	ctx := context.Background()

	cp := newCheckpoint("cp-1", "run-1", "a", 1)
	require.NoError(t, s.Save(ctx, cp))

	cp.NodeName = "mutated"
	loaded, err := s.Load(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "a", loaded.NodeName)
}
