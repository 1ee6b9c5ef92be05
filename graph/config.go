package graph

import "context"

// Config controls a single invocation of a compiled graph.
type Config struct {
	// RunID identifies this run for checkpointing. If empty, a new one
	// is generated.
	RunID string

	// InterruptBefore pauses execution before any of the named nodes run.
	InterruptBefore []string

	// InterruptAfter pauses execution after any of the named nodes ran.
	InterruptAfter []string

	// ResumeFrom overrides the entry point, continuing execution at the
	// given nodes.
	ResumeFrom []string

	// ResumeValue is handed to Interrupt() inside a resumed node.
	ResumeValue any

	// Metadata is attached to every checkpoint saved during the run.
	Metadata map[string]any
}

type configKey struct{}

// WithConfig injects the invocation config into the context.
func WithConfig(ctx context.Context, config *Config) context.Context {
	return context.WithValue(ctx, configKey{}, config)
}

// GetConfig retrieves the invocation config from the context, or nil.
func GetConfig(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey{}).(*Config); ok {
		return cfg
	}
	return nil
}

type resumeValueKey struct{}

// WithResumeValue adds a resume value to the context.
// This value will be returned by Interrupt() when re-executing a node.
func WithResumeValue(ctx context.Context, value any) context.Context {
	return context.WithValue(ctx, resumeValueKey{}, value)
}

// GetResumeValue retrieves the resume value from the context.
func GetResumeValue(ctx context.Context) any {
	return ctx.Value(resumeValueKey{})
}

// WithRunID creates a Config with the given run ID set.
// This enables checkpoint-based resumption of a previous run.
func WithRunID(runID string) *Config {
	return &Config{RunID: runID}
}

// WithInterruptBefore creates a Config with interrupt points set before
// the specified nodes.
func WithInterruptBefore(nodes ...string) *Config {
	return &Config{InterruptBefore: nodes}
}

// WithInterruptAfter creates a Config with interrupt points set after
// the specified nodes.
func WithInterruptAfter(nodes ...string) *Config {
	return &Config{InterruptAfter: nodes}
}
