package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModel returns scripted outputs in order.
type fakeModel struct {
	name    string
	outputs []string
	usages  []Usage
	err     error
	calls   int
}

func (f *fakeModel) ModelName() string { return f.name }

func (f *fakeModel) Generate(_ context.Context, _ string) (string, Usage, error) {
	if f.err != nil {
		return "", Usage{}, f.err
	}
	i := f.calls
	if i >= len(f.outputs) {
		i = len(f.outputs) - 1
	}
	f.calls++
	var usage Usage
	if i < len(f.usages) {
		usage = f.usages[i]
	}
	return f.outputs[i], usage, nil
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 25, EstimateTokens(string(make([]byte, 100))))
}

func TestCostOf(t *testing.T) {
	usage := Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.InDelta(t, 12.50, CostOf("gpt-4o", usage), 1e-9)
	assert.InDelta(t, 0.75, CostOf("gpt-4o-mini", usage), 1e-9)

	// dated snapshot resolves to its family, longest prefix wins
	assert.InDelta(t, 0.75, CostOf("gpt-4o-mini-2024-07-18", usage), 1e-9)
	assert.InDelta(t, 12.50, CostOf("gpt-4o-2024-11-20", usage), 1e-9)

	assert.Zero(t, CostOf("some-local-model", usage))
}

func TestTracked_ReportsUsage(t *testing.T) {
	fake := &fakeModel{
		name:    "gpt-4o",
		outputs: []string{"generated text"},
		usages:  []Usage{{InputTokens: 1000, OutputTokens: 500}},
	}

	var recorded []Call
	recorder := RecorderFunc(func(_ context.Context, call Call) error {
		recorded = append(recorded, call)
		return nil
	})
	agg := &Aggregator{}

	tracked := NewTracked(fake, "outline", WithRecorder(recorder), WithAggregator(agg))

	out, usage, err := tracked.GenerateAs(context.Background(), "generate_outline", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "generated text", out)
	assert.Equal(t, 1000, usage.InputTokens)

	require.Len(t, recorded, 1)
	assert.Equal(t, "outline", recorded[0].AgentName)
	assert.Equal(t, "generate_outline", recorded[0].Operation)
	assert.False(t, recorded[0].Estimated)
	assert.InDelta(t, 1000.0/1e6*2.50+500.0/1e6*10.00, recorded[0].Cost, 1e-9)

	calls, total, cost := agg.Totals()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1500, total.TotalTokens())
	assert.Greater(t, cost, 0.0)
}

func TestTracked_AttributesProjectAndAgentFromContext(t *testing.T) {
	fake := &fakeModel{
		name:    "gpt-4o",
		outputs: []string{"text"},
		usages:  []Usage{{InputTokens: 10, OutputTokens: 5}},
	}

	var recorded []Call
	tracked := NewTracked(fake, "pipeline", WithRecorder(RecorderFunc(func(_ context.Context, c Call) error {
		recorded = append(recorded, c)
		return nil
	})))

	ctx := WithAgentName(WithProjectID(context.Background(), "p1"), "draft")
	_, _, err := tracked.Generate(ctx, "prompt")
	require.NoError(t, err)

	require.Len(t, recorded, 1)
	assert.Equal(t, "p1", recorded[0].ProjectID)
	assert.Equal(t, "draft", recorded[0].AgentName)

	// untagged context keeps the constructor label and no project
	recorded = recorded[:0]
	fake.calls = 0
	fake.outputs = []string{"text"}
	_, _, err = tracked.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	assert.Empty(t, recorded[0].ProjectID)
	assert.Equal(t, "pipeline", recorded[0].AgentName)
}

func TestTracked_EstimatesWhenProviderSilent(t *testing.T) {
	fake := &fakeModel{name: "gpt-4o", outputs: []string{"12345678"}}

	var recorded []Call
	tracked := NewTracked(fake, "draft", WithRecorder(RecorderFunc(func(_ context.Context, c Call) error {
		recorded = append(recorded, c)
		return nil
	})))

	_, usage, err := tracked.GenerateAs(context.Background(), "generate_section", "a prompt of some length")
	require.NoError(t, err)
	assert.Equal(t, EstimateTokens("a prompt of some length"), usage.InputTokens)
	assert.Equal(t, EstimateTokens("12345678"), usage.OutputTokens)
	require.Len(t, recorded, 1)
	assert.True(t, recorded[0].Estimated)
}

func TestTracked_GenerationErrorNotRecorded(t *testing.T) {
	fake := &fakeModel{name: "gpt-4o", err: errors.New("rate limit exceeded")}

	var recorded []Call
	tracked := NewTracked(fake, "draft", WithRecorder(RecorderFunc(func(_ context.Context, c Call) error {
		recorded = append(recorded, c)
		return nil
	})))

	_, _, err := tracked.Generate(context.Background(), "prompt")
	assert.Error(t, err)
	assert.Empty(t, recorded)
}

func TestTracked_RecorderFailureDoesNotFailCall(t *testing.T) {
	fake := &fakeModel{name: "gpt-4o", outputs: []string{"ok"}}
	tracked := NewTracked(fake, "draft", WithRecorder(RecorderFunc(func(_ context.Context, _ Call) error {
		return errors.New("store unavailable")
	})))

	out, _, err := tracked.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestNewModel_UnknownProvider(t *testing.T) {
	_, err := NewModel(ProviderOptions{Provider: "aws-bedrock", Model: "x", APIKey: "k"})
	assert.Error(t, err)
}

func TestNewOpenAIModel_Validation(t *testing.T) {
	_, err := NewOpenAIModel(OpenAIOptions{Model: "gpt-4o"})
	assert.Error(t, err)
	_, err = NewOpenAIModel(OpenAIOptions{APIKey: "k"})
	assert.Error(t, err)
}

func TestUsageFromGenerationInfo(t *testing.T) {
	usage := usageFromGenerationInfo(map[string]any{
		"PromptTokens":     120,
		"CompletionTokens": float64(80),
	})
	assert.Equal(t, 120, usage.InputTokens)
	assert.Equal(t, 80, usage.OutputTokens)

	assert.Zero(t, usageFromGenerationInfo(nil).TotalTokens())
}
