package project

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, *Project) {
	t.Helper()
	m := NewManager(newTestStore(t))
	p, err := m.CreateProject(context.Background(), "test-blog", nil)
	require.NoError(t, err)
	return m, p
}

func TestManager_RejectsEmptyName(t *testing.T) {
	m := NewManager(newTestStore(t))
	_, err := m.CreateProject(context.Background(), "   ", nil)
	assert.Error(t, err)
}

func TestManager_ProgressEmptyProject(t *testing.T) {
	m, p := newTestManager(t)

	progress, err := m.GetProgress(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, progress.Percentage)
	assert.Empty(t, progress.Milestones)
	assert.Equal(t, 0, progress.Sections.Total)
}

func TestManager_ProgressMilestonesOnly(t *testing.T) {
	m, p := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveMilestone(ctx, p.ID, MilestoneFilesUploaded, map[string]any{}, nil))
	require.NoError(t, m.SaveMilestone(ctx, p.ID, MilestoneOutlineGenerated, map[string]any{}, nil))

	progress, err := m.GetProgress(ctx, p.ID)
	require.NoError(t, err)
	// 2 of 5 milestones, no sections recorded: 20%
	assert.Equal(t, 20, progress.Percentage)
	assert.Equal(t, []MilestoneType{MilestoneFilesUploaded, MilestoneOutlineGenerated}, progress.Milestones)
}

func TestManager_ProgressWithSections(t *testing.T) {
	m, p := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveMilestone(ctx, p.ID, MilestoneFilesUploaded, map[string]any{}, nil))
	require.NoError(t, m.SaveMilestone(ctx, p.ID, MilestoneOutlineGenerated, map[string]any{}, nil))
	require.NoError(t, m.SaveSections(ctx, p.ID, []*Section{
		{SectionIndex: 0, Status: SectionCompleted},
		{SectionIndex: 1, Status: SectionCompleted},
		{SectionIndex: 2, Status: SectionGenerating},
		{SectionIndex: 3},
	}))

	progress, err := m.GetProgress(ctx, p.ID)
	require.NoError(t, err)
	// 2/5 milestones = 20%, 2/4 sections = 25%
	assert.Equal(t, 45, progress.Percentage)
	assert.Equal(t, 2, progress.Sections.Completed)
	assert.Equal(t, 1, progress.Sections.Generating)
	assert.Equal(t, 1, progress.Sections.Pending)
}

func TestManager_ProgressMissingProject(t *testing.T) {
	m := NewManager(newTestStore(t))
	_, err := m.GetProgress(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_NextStep(t *testing.T) {
	cases := []struct {
		current MilestoneType
		want    string
	}{
		{"", "upload_files"},
		{MilestoneFilesUploaded, "generate_outline"},
		{MilestoneOutlineGenerated, "generate_draft"},
		{MilestoneDraftCompleted, "refine_blog"},
		{MilestoneBlogRefined, "generate_social"},
		{MilestoneSocialGenerated, "completed"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, nextStepFor(tc.current), "milestone %q", tc.current)
	}
}

func TestManager_Resume(t *testing.T) {
	m, p := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveMilestone(ctx, p.ID, MilestoneFilesUploaded,
		map[string]any{"file_count": float64(2)}, nil))
	require.NoError(t, m.SaveSections(ctx, p.ID, []*Section{{SectionIndex: 0, Title: "Intro"}}))
	require.NoError(t, m.TrackCost(ctx, p.ID, &CostEntry{
		AgentName: "ingest", Operation: "embed", Model: "text-embedding-3-small", Cost: 0.0001,
	}))

	state, err := m.Resume(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, state.Project.ID)
	assert.Len(t, state.Milestones, 1)
	assert.Len(t, state.Sections, 1)
	assert.Equal(t, "generate_outline", state.NextStep)
	assert.InDelta(t, 0.0001, state.CostSummary.TotalCost, 1e-9)
	assert.Equal(t, 10, state.Progress.Percentage)
}

func TestManager_CostSummary(t *testing.T) {
	m, p := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.TrackCost(ctx, p.ID, &CostEntry{
		AgentName: "outline", Operation: "generate_outline", Model: "gpt-4o",
		InputTokens: 1000, OutputTokens: 300, Cost: 0.005,
	}))
	require.NoError(t, m.TrackCost(ctx, p.ID, &CostEntry{
		AgentName: "draft", Operation: "generate_section", Model: "gpt-4o",
		InputTokens: 2000, OutputTokens: 800, Cost: 0.013,
	}))
	require.NoError(t, m.TrackCost(ctx, p.ID, &CostEntry{
		AgentName: "draft", Operation: "generate_section", Model: "gpt-4o-mini",
		InputTokens: 500, OutputTokens: 200, Cost: 0.0003,
	}))

	summary, err := m.CostSummary(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.0183, summary.TotalCost, 1e-9)
	assert.Equal(t, 3500, summary.TotalInputTokens)
	assert.Equal(t, 1300, summary.TotalOutputTokens)
	assert.InDelta(t, 0.0133, summary.CostByAgent["draft"], 1e-9)
	assert.InDelta(t, 0.018, summary.CostByModel["gpt-4o"], 1e-9)
}

func TestManager_CostAnalysis(t *testing.T) {
	m, p := newTestManager(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, m.TrackCost(ctx, p.ID, &CostEntry{AgentName: "a", Operation: "op1", Cost: 0.01, CreatedAt: base}))
	require.NoError(t, m.TrackCost(ctx, p.ID, &CostEntry{AgentName: "b", Operation: "op2", Cost: 0.02, CreatedAt: base.Add(time.Second)}))

	analysis, err := m.CostAnalysis(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, analysis.TotalOperations)
	require.Len(t, analysis.Timeline, 2)
	assert.InDelta(t, 0.01, analysis.Timeline[0].CumulativeCost, 1e-9)
	assert.InDelta(t, 0.03, analysis.Timeline[1].CumulativeCost, 1e-9)
}

func TestManager_ExportJSON(t *testing.T) {
	m, p := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveMilestone(ctx, p.ID, MilestoneOutlineGenerated,
		map[string]any{"title": "Go Concurrency"}, nil))

	out, contentType, err := m.Export(ctx, p.ID, ExportJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(out, &payload))
	milestones := payload["milestones"].(map[string]any)
	outline := milestones["outline_generated"].(map[string]any)
	assert.Equal(t, "Go Concurrency", outline["title"])
}

func TestManager_ExportMarkdownPrefersRefined(t *testing.T) {
	m, p := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveMilestone(ctx, p.ID, MilestoneDraftCompleted,
		map[string]any{"compiled_blog": "draft body"}, nil))
	require.NoError(t, m.SaveMilestone(ctx, p.ID, MilestoneBlogRefined,
		map[string]any{"refined_content": "# Polished\n\nrefined body"}, nil))

	out, contentType, err := m.Export(ctx, p.ID, ExportMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", contentType)
	assert.Equal(t, "# Polished\n\nrefined body", string(out))
}

func TestManager_ExportMarkdownFallsBackToDraft(t *testing.T) {
	m, p := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveMilestone(ctx, p.ID, MilestoneDraftCompleted,
		map[string]any{"compiled_blog": "draft body"}, nil))

	out, _, err := m.Export(ctx, p.ID, ExportMarkdown)
	require.NoError(t, err)
	assert.Equal(t, "# test-blog\n\ndraft body", string(out))
}

func TestManager_ExportHTMLSanitized(t *testing.T) {
	m, p := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveMilestone(ctx, p.ID, MilestoneBlogRefined,
		map[string]any{"refined_content": "# Title\n\nbody <script>alert(1)</script>"}, nil))

	out, contentType, err := m.Export(ctx, p.ID, ExportHTML)
	require.NoError(t, err)
	assert.Equal(t, "text/html", contentType)
	assert.Contains(t, string(out), "<h1")
	assert.NotContains(t, string(out), "<script>")
}

func TestManager_ExportNoContent(t *testing.T) {
	m, p := newTestManager(t)
	_, _, err := m.Export(context.Background(), p.ID, ExportMarkdown)
	assert.Error(t, err)
}

func TestManager_ExportUnknownFormat(t *testing.T) {
	m, p := newTestManager(t)
	_, _, err := m.Export(context.Background(), p.ID, ExportFormat("docx"))
	assert.Error(t, err)
}

func TestManager_ConcurrentWritesStayConsistent(t *testing.T) {
	m := NewManager(newTestStore(t))
	ctx := context.Background()

	var projects []*Project
	for i := 0; i < 3; i++ {
		p, err := m.CreateProject(ctx, fmt.Sprintf("proj-%d", i), nil)
		require.NoError(t, err)
		projects = append(projects, p)
	}

	var wg sync.WaitGroup
	for _, p := range projects {
		for j := 0; j < 5; j++ {
			wg.Add(1)
			go func(id string, n int) {
				defer wg.Done()
				entry := &CostEntry{AgentName: "draft", Operation: fmt.Sprintf("op-%d", n), Cost: 0.001}
				assert.NoError(t, m.TrackCost(ctx, id, entry))
			}(p.ID, j)
		}
	}
	wg.Wait()

	for _, p := range projects {
		entries, err := m.ListCosts(ctx, p.ID)
		require.NoError(t, err)
		assert.Len(t, entries, 5)

		summary, err := m.CostSummary(ctx, p.ID)
		require.NoError(t, err)
		assert.InDelta(t, 0.005, summary.TotalCost, 1e-9)
		ops := make(map[string]bool)
		for _, e := range entries {
			ops[e.Operation] = true
		}
		assert.True(t, strings.HasPrefix(entries[0].Operation, "op-"))
		assert.Len(t, ops, 5)
	}
}
