// Package store defines checkpoint persistence for pipeline runs.
// A checkpoint captures the workflow state after a graph step so that an
// interrupted or crashed run can be resumed, and a completed run can be
// served from its final state without re-executing any nodes.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a checkpoint does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint represents a saved pipeline state at a specific point in execution.
type Checkpoint struct {
	ID        string         `json:"id"`
	RunID     string         `json:"run_id"`
	NodeName  string         `json:"node_name"`
	State     any            `json:"state"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp time.Time      `json:"timestamp"`
	Version   int            `json:"version"`
}

// CheckpointStore defines the interface for checkpoint persistence.
type CheckpointStore interface {
	// Save stores a checkpoint.
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load retrieves a checkpoint by ID.
	Load(ctx context.Context, checkpointID string) (*Checkpoint, error)

	// List returns all checkpoints for a run, oldest first.
	List(ctx context.Context, runID string) ([]*Checkpoint, error)

	// Latest returns the highest-version checkpoint for a run.
	Latest(ctx context.Context, runID string) (*Checkpoint, error)

	// Delete removes a checkpoint.
	Delete(ctx context.Context, checkpointID string) error

	// Clear removes all checkpoints for a run.
	Clear(ctx context.Context, runID string) error
}
