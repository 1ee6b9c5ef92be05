package project

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_CreateAndGetProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "kubernetes-deep-dive", map[string]any{"topic": "k8s"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, StatusActive, p.Status)

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "kubernetes-deep-dive", got.Name)
	assert.Equal(t, "k8s", got.Metadata["topic"])
	assert.Empty(t, got.CurrentMilestone)

	byName, err := s.GetProjectByName(ctx, "kubernetes-deep-dive")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)
}

func TestSQLiteStore_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateProject(ctx, "dup", nil)
	require.NoError(t, err)
	_, err = s.CreateProject(ctx, "dup", nil)
	assert.Error(t, err)
}

func TestSQLiteStore_ListProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateProject(ctx, "alpha", nil)
	require.NoError(t, err)
	_, err = s.CreateProject(ctx, "beta", nil)
	require.NoError(t, err)

	require.NoError(t, s.ArchiveProject(ctx, a.ID))

	active, err := s.ListProjects(ctx, StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "beta", active[0].Name)

	all, err := s.ListProjects(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	archived, err := s.ListProjects(ctx, StatusArchived)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.NotNil(t, archived[0].ArchivedAt)
}

func TestSQLiteStore_DeleteProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "doomed", nil)
	require.NoError(t, err)

	require.NoError(t, s.DeleteProject(ctx, p.ID, false))

	// soft-deleted projects disappear from reads but stay recoverable
	_, err = s.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetProjectByName(ctx, "doomed")
	assert.ErrorIs(t, err, ErrNotFound)

	all, err := s.ListProjects(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)

	deleted, err := s.ListProjects(ctx, StatusDeleted)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, StatusDeleted, deleted[0].Status)

	require.NoError(t, s.SaveMilestone(ctx, p.ID, MilestoneFilesUploaded, map[string]any{"files": 2}, nil))

	require.NoError(t, s.DeleteProject(ctx, p.ID, true))
	_, err = s.GetProject(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// cascade removed dependent rows
	milestones, err := s.ListMilestones(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, milestones)

	assert.ErrorIs(t, s.DeleteProject(ctx, "missing", true), ErrNotFound)
}

func TestSQLiteStore_UpdateMetadataMerges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "meta", map[string]any{"a": "1"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateMetadata(ctx, p.ID, map[string]any{"b": "2"}))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "1", got.Metadata["a"])
	assert.Equal(t, "2", got.Metadata["b"])
}

func TestSQLiteStore_MilestoneUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "milestones", nil)
	require.NoError(t, err)

	require.NoError(t, s.SaveMilestone(ctx, p.ID, MilestoneFilesUploaded,
		map[string]any{"file_count": float64(3)}, nil))
	require.NoError(t, s.SaveMilestone(ctx, p.ID, MilestoneOutlineGenerated,
		map[string]any{"sections": float64(4)}, map[string]any{"model": "gpt-4o"}))

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, MilestoneOutlineGenerated, got.CurrentMilestone)

	// re-saving the same type replaces the data, not duplicates the row
	require.NoError(t, s.SaveMilestone(ctx, p.ID, MilestoneOutlineGenerated,
		map[string]any{"sections": float64(6)}, nil))

	ms, err := s.LoadMilestone(ctx, p.ID, MilestoneOutlineGenerated)
	require.NoError(t, err)
	assert.Equal(t, float64(6), ms.Data["sections"])

	all, err := s.ListMilestones(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.LoadMilestone(ctx, p.ID, MilestoneBlogRefined)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.SaveMilestone(ctx, "missing", MilestoneFilesUploaded, map[string]any{}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_SectionsReplaceAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "sections", nil)
	require.NoError(t, err)

	first := []*Section{
		{SectionIndex: 0, Title: "Intro", Status: SectionCompleted},
		{SectionIndex: 1, Title: "Body"},
		{SectionIndex: 2, Title: "Outro"},
	}
	require.NoError(t, s.SaveSections(ctx, p.ID, first))

	second := []*Section{
		{SectionIndex: 0, Title: "Rewritten Intro"},
		{SectionIndex: 1, Title: "Rewritten Body"},
	}
	require.NoError(t, s.SaveSections(ctx, p.ID, second))

	got, err := s.LoadSections(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Rewritten Intro", got[0].Title)
	assert.Equal(t, SectionPending, got[0].Status)
	assert.Equal(t, 1, got[1].SectionIndex)
}

func TestSQLiteStore_UpdateSectionStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "status", nil)
	require.NoError(t, err)
	require.NoError(t, s.SaveSections(ctx, p.ID, []*Section{{SectionIndex: 0, Title: "Intro"}}))

	require.NoError(t, s.UpdateSectionStatus(ctx, p.ID, 0, SectionCompleted, 0.0042))

	got, err := s.LoadSections(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, SectionCompleted, got[0].Status)
	assert.InDelta(t, 0.0042, got[0].CostDelta, 1e-9)

	assert.ErrorIs(t, s.UpdateSectionStatus(ctx, p.ID, 99, SectionFailed, 0), ErrNotFound)
}

func TestSQLiteStore_CostTracking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "costs", nil)
	require.NoError(t, err)

	base := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	entries := []*CostEntry{
		{AgentName: "outline", Operation: "generate_outline", Model: "gpt-4o", InputTokens: 1200, OutputTokens: 400, Cost: 0.007, CreatedAt: base},
		{AgentName: "draft", Operation: "generate_section", Model: "gpt-4o", InputTokens: 3000, OutputTokens: 900, Cost: 0.0165, CreatedAt: base.Add(time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, s.TrackCost(ctx, p.ID, e))
	}

	got, err := s.ListCosts(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "outline", got[0].AgentName)
	assert.Equal(t, "draft", got[1].AgentName)
	assert.Equal(t, 3000, got[1].InputTokens)
}

func TestSQLiteStore_CompletedBlogVersioning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProject(ctx, "versioned", nil)
	require.NoError(t, err)

	blog := &CompletedBlog{Title: "v1", Content: "first take", WordCount: 2}
	require.NoError(t, s.SaveCompletedBlog(ctx, p.ID, blog))

	got, err := s.GetCompletedBlog(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)

	blog.Title = "v2"
	blog.Content = "second take"
	require.NoError(t, s.SaveCompletedBlog(ctx, p.ID, blog))

	got, err = s.GetCompletedBlog(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "v2", got.Title)

	proj, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, proj.CompletedAt)

	_, err = s.GetCompletedBlog(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
