package llm

import (
	"context"
	"sync"
	"time"

	"github.com/smallnest/blogforge/log"
)

// Call is one priced model invocation.
type Call struct {
	ProjectID string    `json:"project_id,omitempty"`
	AgentName string    `json:"agent_name"`
	Operation string    `json:"operation"`
	Model     string    `json:"model"`
	Usage     Usage     `json:"usage"`
	Cost      float64   `json:"cost"`
	Estimated bool      `json:"estimated,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type attributionKey struct{}

type attribution struct {
	projectID string
	agentName string
}

// WithProjectID tags the context so every call made through a shared
// Tracked model is attributed to the given project. Agents set this at
// their entry points; the recorder reads it off Call.ProjectID.
func WithProjectID(ctx context.Context, projectID string) context.Context {
	attr, _ := ctx.Value(attributionKey{}).(attribution)
	attr.projectID = projectID
	return context.WithValue(ctx, attributionKey{}, attr)
}

// WithAgentName overrides the Tracked model's agent label for calls
// made under this context.
func WithAgentName(ctx context.Context, agentName string) context.Context {
	attr, _ := ctx.Value(attributionKey{}).(attribution)
	attr.agentName = agentName
	return context.WithValue(ctx, attributionKey{}, attr)
}

// ProjectIDFrom returns the project ID attached with WithProjectID, or "".
func ProjectIDFrom(ctx context.Context) string {
	attr, _ := ctx.Value(attributionKey{}).(attribution)
	return attr.projectID
}

// AgentNameFrom returns the agent label attached with WithAgentName, or "".
func AgentNameFrom(ctx context.Context) string {
	attr, _ := ctx.Value(attributionKey{}).(attribution)
	return attr.agentName
}

// Recorder persists priced calls. The project store implements this to
// attribute spend to a project.
type Recorder interface {
	RecordCall(ctx context.Context, call Call) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, call Call) error

func (f RecorderFunc) RecordCall(ctx context.Context, call Call) error {
	return f(ctx, call)
}

// Aggregator accumulates call totals in process, for cheap mid-run
// cost reads without hitting the store.
type Aggregator struct {
	mu    sync.Mutex
	calls int
	usage Usage
	cost  float64
}

// Observe adds one call to the running totals.
func (a *Aggregator) Observe(call Call) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	a.usage.InputTokens += call.Usage.InputTokens
	a.usage.OutputTokens += call.Usage.OutputTokens
	a.cost += call.Cost
}

// Totals returns the call count, accumulated usage and cost so far.
func (a *Aggregator) Totals() (int, Usage, float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls, a.usage, a.cost
}

// Tracked decorates a Model with usage estimation, pricing and reporting.
// When the provider omits token counts the prompt and completion lengths
// are estimated instead, and the call is flagged as estimated.
type Tracked struct {
	model      Model
	agentName  string
	recorder   Recorder
	aggregator *Aggregator
	logger     log.Logger
}

// TrackedOption configures a Tracked model.
type TrackedOption func(*Tracked)

// WithRecorder sets the persistent call recorder.
func WithRecorder(r Recorder) TrackedOption {
	return func(t *Tracked) { t.recorder = r }
}

// WithAggregator sets the in-process totals accumulator.
func WithAggregator(a *Aggregator) TrackedOption {
	return func(t *Tracked) { t.aggregator = a }
}

// WithLogger overrides the default logger.
func WithLogger(l log.Logger) TrackedOption {
	return func(t *Tracked) { t.logger = l }
}

// NewTracked wraps a model. agentName attributes the spend.
func NewTracked(model Model, agentName string, opts ...TrackedOption) *Tracked {
	t := &Tracked{
		model:     model,
		agentName: agentName,
		logger:    log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracked) ModelName() string {
	return t.model.ModelName()
}

// Generate satisfies Model so Tracked models nest.
func (t *Tracked) Generate(ctx context.Context, prompt string) (string, Usage, error) {
	return t.GenerateAs(ctx, "generate", prompt)
}

// GenerateAs runs a completion and reports it under the given operation.
func (t *Tracked) GenerateAs(ctx context.Context, operation, prompt string) (string, Usage, error) {
	output, usage, err := t.model.Generate(ctx, prompt)
	if err != nil {
		return "", usage, err
	}

	estimated := false
	if usage.TotalTokens() == 0 {
		usage = Usage{
			InputTokens:  EstimateTokens(prompt),
			OutputTokens: EstimateTokens(output),
		}
		estimated = true
	}

	agentName := t.agentName
	if name := AgentNameFrom(ctx); name != "" {
		agentName = name
	}
	call := Call{
		ProjectID: ProjectIDFrom(ctx),
		AgentName: agentName,
		Operation: operation,
		Model:     t.model.ModelName(),
		Usage:     usage,
		Cost:      CostOf(t.model.ModelName(), usage),
		Estimated: estimated,
		Timestamp: time.Now().UTC(),
	}

	if t.aggregator != nil {
		t.aggregator.Observe(call)
	}
	if t.recorder != nil {
		if recErr := t.recorder.RecordCall(ctx, call); recErr != nil {
			// Generation succeeded; a failed cost write must not lose the output.
			t.logger.Error("failed to record llm call: agent=%s op=%s err=%v",
				call.AgentName, call.Operation, recErr)
		}
	}

	return output, usage, nil
}
