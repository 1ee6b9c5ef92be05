package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildReviewGraph(t *testing.T) *Runnable[map[string]any] {
	t.Helper()

	g := NewStateGraph[map[string]any]()
	g.AddNode("draft", "draft", func(ctx context.Context, state map[string]any) (map[string]any, error) {
		state["value"] = state["value"].(string) + "D"
		return state, nil
	})
	g.AddNode("review", "review", func(ctx context.Context, state map[string]any) (map[string]any, error) {
		state["value"] = state["value"].(string) + "R"
		return state, nil
	})
	g.AddNode("publish", "publish", func(ctx context.Context, state map[string]any) (map[string]any, error) {
		state["value"] = state["value"].(string) + "P"
		return state, nil
	})
	g.SetEntryPoint("draft")
	g.AddEdge("draft", "review")
	g.AddEdge("review", "publish")
	g.AddEdge("publish", END)

	runnable, err := g.Compile()
	require.NoError(t, err)
	return runnable
}

func TestInterruptBefore(t *testing.T) {
	runnable := buildReviewGraph(t)

	_, err := runnable.InvokeWithConfig(context.Background(), map[string]any{"value": ""}, WithInterruptBefore("review"))
	require.Error(t, err)

	var interrupt *GraphInterrupt
	require.ErrorAs(t, err, &interrupt)
	assert.Equal(t, "review", interrupt.Node)

	state, ok := interrupt.State.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "D", state["value"])

	// Resume from the interrupted node
	res, err := runnable.InvokeWithConfig(context.Background(), state, &Config{
		ResumeFrom: interrupt.NextNodes,
	})
	require.NoError(t, err)
	assert.Equal(t, "DRP", res["value"])
}

func TestInterruptAfter(t *testing.T) {
	runnable := buildReviewGraph(t)

	_, err := runnable.InvokeWithConfig(context.Background(), map[string]any{"value": ""}, WithInterruptAfter("review"))
	require.Error(t, err)

	var interrupt *GraphInterrupt
	require.ErrorAs(t, err, &interrupt)
	assert.Equal(t, "review", interrupt.Node)
	assert.Equal(t, []string{"publish"}, interrupt.NextNodes)

	state, ok := interrupt.State.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "DR", state["value"])

	res, err := runnable.InvokeWithConfig(context.Background(), state, &Config{
		ResumeFrom: interrupt.NextNodes,
	})
	require.NoError(t, err)
	assert.Equal(t, "DRP", res["value"])
}

func TestDynamicInterruptAndResume(t *testing.T) {
	g := NewStateGraph[map[string]any]()
	g.AddNode("ask_feedback", "ask for feedback", func(ctx context.Context, state map[string]any) (map[string]any, error) {
		answer, err := Interrupt(ctx, "does this section look right?")
		if err != nil {
			return state, err
		}
		state["feedback"] = answer
		return state, nil
	})
	g.SetEntryPoint("ask_feedback")
	g.AddEdge("ask_feedback", END)

	runnable, err := g.Compile()
	require.NoError(t, err)

	// First run pauses at the interrupt
	_, err = runnable.Invoke(context.Background(), map[string]any{})
	require.Error(t, err)

	var interrupt *GraphInterrupt
	require.ErrorAs(t, err, &interrupt)
	assert.Equal(t, "ask_feedback", interrupt.Node)
	assert.Equal(t, "does this section look right?", interrupt.InterruptValue)
	assert.Equal(t, []string{"ask_feedback"}, interrupt.NextNodes)

	// Second run resumes with an answer
	res, err := runnable.InvokeWithConfig(context.Background(), map[string]any{}, &Config{
		ResumeFrom:  interrupt.NextNodes,
		ResumeValue: "looks good",
	})
	require.NoError(t, err)
	assert.Equal(t, "looks good", res["feedback"])
}

func TestDynamicInterruptNotRetried(t *testing.T) {
	calls := 0

	g := NewStateGraph[map[string]any]()
	g.AddNode("wait", "wait", func(ctx context.Context, state map[string]any) (map[string]any, error) {
		calls++
		_, err := Interrupt(ctx, "waiting")
		return state, err
	})
	g.SetEntryPoint("wait")
	g.AddEdge("wait", END)
	g.SetRetryPolicy(&RetryPolicy{
		MaxRetries:      3,
		RetryableErrors: []string{"interrupt"},
	})

	runnable, err := g.Compile()
	require.NoError(t, err)

	_, err = runnable.Invoke(context.Background(), map[string]any{})
	require.Error(t, err)

	var interrupt *GraphInterrupt
	assert.ErrorAs(t, err, &interrupt)
	assert.Equal(t, 1, calls)
}
