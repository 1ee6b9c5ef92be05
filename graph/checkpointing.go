package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smallnest/blogforge/log"
	"github.com/smallnest/blogforge/store"
	"github.com/smallnest/blogforge/store/memory"
)

// Checkpoint is an alias for store.Checkpoint
type Checkpoint = store.Checkpoint

// CheckpointStore is an alias for store.CheckpointStore
type CheckpointStore = store.CheckpointStore

// NewMemoryCheckpointStore creates a new in-memory checkpoint store.
func NewMemoryCheckpointStore() store.CheckpointStore {
	return memory.NewMemoryCheckpointStore()
}

// NewRunID generates a new unique run identifier.
func NewRunID() string {
	return fmt.Sprintf("run_%s", uuid.New().String())
}

// CheckpointedRunnable wraps a Runnable with automatic checkpointing.
// After every completed step the merged state is persisted, keyed by
// the run ID, so an interrupted or crashed run can be resumed.
type CheckpointedRunnable[S any] struct {
	runnable *Runnable[S]
	store    store.CheckpointStore
}

// WithCheckpointing returns a CheckpointedRunnable persisting state to cs.
func (r *Runnable[S]) WithCheckpointing(cs store.CheckpointStore) *CheckpointedRunnable[S] {
	return &CheckpointedRunnable[S]{
		runnable: r,
		store:    cs,
	}
}

// Invoke executes the graph with checkpointing under a fresh run ID.
func (cr *CheckpointedRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	return cr.InvokeWithConfig(ctx, initialState, nil)
}

// InvokeWithConfig executes the graph with checkpointing support.
//
// When config.RunID names a run with existing checkpoints and ResumeFrom is
// not set, execution resumes from the latest checkpoint: its state replaces
// initialState and its recorded next nodes become the resume point. A run
// whose latest checkpoint already reached END returns the stored final state
// without re-executing anything.
func (cr *CheckpointedRunnable[S]) InvokeWithConfig(ctx context.Context, initialState S, config *Config) (S, error) {
	if config == nil {
		config = &Config{}
	}

	runID := config.RunID
	explicitRun := runID != ""
	if runID == "" {
		runID = NewRunID()
		config.RunID = runID
	}

	state := initialState
	version := 0

	if explicitRun && len(config.ResumeFrom) == 0 {
		latest, err := cr.store.Latest(ctx, runID)
		switch {
		case err == nil:
			version = latest.Version
			decoded, ok := decodeState[S](latest.State)
			if ok {
				next := checkpointNextNodes(latest)
				switch {
				case next == nil:
					// No routing recorded, restart from the entry point
					// with the recovered state.
					state = decoded
				case runCompleted(next):
					return decoded, nil
				default:
					state = decoded
					config.ResumeFrom = next
				}
			} else {
				log.Warn("checkpoint state for run %s has unexpected shape, starting over", runID)
			}
		case errors.Is(err, store.ErrNotFound):
			// Fresh run under a caller-chosen ID
		default:
			var zero S
			return zero, fmt.Errorf("failed to load latest checkpoint: %w", err)
		}
	}

	// Shallow copy so concurrent invocations get independent hooks.
	run := *cr.runnable
	run.stepHook = func(ctx context.Context, nodeName string, s S, next []string) {
		version++
		metadata := map[string]any{"next": next}
		for k, v := range config.Metadata {
			if k != "next" {
				metadata[k] = v
			}
		}

		cp := &store.Checkpoint{
			ID:        fmt.Sprintf("checkpoint_%s", uuid.New().String()),
			RunID:     runID,
			NodeName:  nodeName,
			State:     s,
			Metadata:  metadata,
			Timestamp: time.Now(),
			Version:   version,
		}
		if err := cr.store.Save(ctx, cp); err != nil {
			log.Error("failed to save checkpoint for run %s at node %s: %v", runID, nodeName, err)
		}
	}

	return run.InvokeWithConfig(ctx, state, config)
}

// ListCheckpoints lists all checkpoints for a run, oldest first.
func (cr *CheckpointedRunnable[S]) ListCheckpoints(ctx context.Context, runID string) ([]*store.Checkpoint, error) {
	return cr.store.List(ctx, runID)
}

// ClearCheckpoints removes all checkpoints for a run.
func (cr *CheckpointedRunnable[S]) ClearCheckpoints(ctx context.Context, runID string) error {
	return cr.store.Clear(ctx, runID)
}

// decodeState converts a stored checkpoint state back to S. The direct type
// assertion covers in-memory stores; persistent stores hand back generic
// JSON values, which are re-marshalled into S.
func decodeState[S any](v any) (S, bool) {
	if s, ok := v.(S); ok {
		return s, true
	}

	var s S
	data, err := json.Marshal(v)
	if err != nil {
		return s, false
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, false
	}
	return s, true
}

// checkpointNextNodes extracts the recorded next nodes from a checkpoint.
func checkpointNextNodes(cp *store.Checkpoint) []string {
	raw, ok := cp.Metadata["next"]
	if !ok {
		return nil
	}

	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		next := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				next = append(next, s)
			}
		}
		return next
	}
	return nil
}

// runCompleted reports whether the recorded next nodes indicate the run
// already reached END.
func runCompleted(next []string) bool {
	if len(next) == 0 {
		return true
	}
	for _, n := range next {
		if n != END {
			return false
		}
	}
	return true
}
