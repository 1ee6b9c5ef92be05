package project

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	mdparser "github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

// ExportFormat selects the output format of Manager.Export.
type ExportFormat string

const (
	ExportJSON     ExportFormat = "json"
	ExportMarkdown ExportFormat = "markdown"
	ExportHTML     ExportFormat = "html"
)

// Manager wraps a Store with per-project write serialization and the
// derived views: progress, resume state, cost summaries and export.
// Writes to the same project are serialized; different projects proceed
// in parallel.
type Manager struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a manager over the given store.
func NewManager(store Store) *Manager {
	return &Manager{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// Store returns the underlying store for read-only access.
func (m *Manager) Store() Store {
	return m.store
}

// projectLock returns the mutex for a project, creating it on first use.
func (m *Manager) projectLock(projectID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[projectID] = lock
	}
	return lock
}

// CreateProject creates a project, failing if the name is taken.
func (m *Manager) CreateProject(ctx context.Context, name string, metadata map[string]any) (*Project, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("project name must not be empty")
	}
	return m.store.CreateProject(ctx, name, metadata)
}

func (m *Manager) GetProject(ctx context.Context, id string) (*Project, error) {
	return m.store.GetProject(ctx, id)
}

func (m *Manager) GetProjectByName(ctx context.Context, name string) (*Project, error) {
	return m.store.GetProjectByName(ctx, name)
}

func (m *Manager) ListProjects(ctx context.Context, status Status) ([]*Project, error) {
	return m.store.ListProjects(ctx, status)
}

func (m *Manager) ArchiveProject(ctx context.Context, id string) error {
	lock := m.projectLock(id)
	lock.Lock()
	defer lock.Unlock()
	return m.store.ArchiveProject(ctx, id)
}

func (m *Manager) DeleteProject(ctx context.Context, id string, permanent bool) error {
	lock := m.projectLock(id)
	lock.Lock()
	defer lock.Unlock()
	return m.store.DeleteProject(ctx, id, permanent)
}

func (m *Manager) UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error {
	lock := m.projectLock(id)
	lock.Lock()
	defer lock.Unlock()
	return m.store.UpdateMetadata(ctx, id, metadata)
}

func (m *Manager) SaveMilestone(ctx context.Context, projectID string, typ MilestoneType, data, metadata map[string]any) error {
	lock := m.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.SaveMilestone(ctx, projectID, typ, data, metadata)
}

func (m *Manager) LoadMilestone(ctx context.Context, projectID string, typ MilestoneType) (*Milestone, error) {
	return m.store.LoadMilestone(ctx, projectID, typ)
}

func (m *Manager) ListMilestones(ctx context.Context, projectID string) ([]*Milestone, error) {
	return m.store.ListMilestones(ctx, projectID)
}

func (m *Manager) SaveSections(ctx context.Context, projectID string, sections []*Section) error {
	lock := m.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.SaveSections(ctx, projectID, sections)
}

func (m *Manager) LoadSections(ctx context.Context, projectID string) ([]*Section, error) {
	return m.store.LoadSections(ctx, projectID)
}

func (m *Manager) UpdateSectionStatus(ctx context.Context, projectID string, sectionIndex int, status SectionStatus, costDelta float64) error {
	lock := m.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.UpdateSectionStatus(ctx, projectID, sectionIndex, status, costDelta)
}

func (m *Manager) TrackCost(ctx context.Context, projectID string, entry *CostEntry) error {
	lock := m.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.TrackCost(ctx, projectID, entry)
}

func (m *Manager) SaveCompletedBlog(ctx context.Context, projectID string, blog *CompletedBlog) error {
	lock := m.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()
	return m.store.SaveCompletedBlog(ctx, projectID, blog)
}

func (m *Manager) GetCompletedBlog(ctx context.Context, projectID string) (*CompletedBlog, error) {
	return m.store.GetCompletedBlog(ctx, projectID)
}

// GetSectionStats counts sections by status.
func (m *Manager) GetSectionStats(ctx context.Context, projectID string) (*SectionStats, error) {
	sections, err := m.store.LoadSections(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return sectionStats(sections), nil
}

func sectionStats(sections []*Section) *SectionStats {
	stats := &SectionStats{Total: len(sections)}
	for _, s := range sections {
		switch s.Status {
		case SectionCompleted:
			stats.Completed++
		case SectionGenerating:
			stats.Generating++
		case SectionFailed:
			stats.Failed++
		default:
			stats.Pending++
		}
	}
	return stats
}

// GetProgress computes how far a project is through the pipeline.
// Milestones contribute up to 50%, completed sections the other 50%.
// With no sections recorded yet the section half contributes nothing.
func (m *Manager) GetProgress(ctx context.Context, projectID string) (*Progress, error) {
	if _, err := m.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	milestones, err := m.store.ListMilestones(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sections, err := m.store.LoadSections(ctx, projectID)
	if err != nil {
		return nil, err
	}

	reached := make([]MilestoneType, 0, len(milestones))
	have := make(map[MilestoneType]bool, len(milestones))
	for _, ms := range milestones {
		have[ms.Type] = true
	}
	for _, typ := range AllMilestoneTypes {
		if have[typ] {
			reached = append(reached, typ)
		}
	}

	stats := sectionStats(sections)

	pct := float64(len(reached)) / float64(len(AllMilestoneTypes)) * 50
	if stats.Total > 0 {
		pct += float64(stats.Completed) / float64(stats.Total) * 50
	}

	return &Progress{
		Percentage: int(pct),
		Milestones: reached,
		Sections:   *stats,
	}, nil
}

// nextStepFor maps the furthest reached milestone to the next pipeline action.
func nextStepFor(current MilestoneType) string {
	switch current {
	case "":
		return "upload_files"
	case MilestoneFilesUploaded:
		return "generate_outline"
	case MilestoneOutlineGenerated:
		return "generate_draft"
	case MilestoneDraftCompleted:
		return "refine_blog"
	case MilestoneBlogRefined:
		return "generate_social"
	default:
		return "completed"
	}
}

// Resume assembles everything a client needs to pick up a project where
// it left off.
func (m *Manager) Resume(ctx context.Context, projectID string) (*ResumeState, error) {
	p, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	milestones, err := m.store.ListMilestones(ctx, projectID)
	if err != nil {
		return nil, err
	}
	sections, err := m.store.LoadSections(ctx, projectID)
	if err != nil {
		return nil, err
	}
	summary, err := m.CostSummary(ctx, projectID)
	if err != nil {
		return nil, err
	}
	progress, err := m.GetProgress(ctx, projectID)
	if err != nil {
		return nil, err
	}

	return &ResumeState{
		Project:     p,
		Milestones:  milestones,
		Sections:    sections,
		CostSummary: summary,
		Progress:    progress,
		NextStep:    nextStepFor(p.CurrentMilestone),
	}, nil
}

// ListCosts returns the raw cost entries of a project, oldest first.
func (m *Manager) ListCosts(ctx context.Context, projectID string) ([]*CostEntry, error) {
	return m.store.ListCosts(ctx, projectID)
}

// CostSummary aggregates all recorded cost entries of a project.
func (m *Manager) CostSummary(ctx context.Context, projectID string) (*CostSummary, error) {
	entries, err := m.store.ListCosts(ctx, projectID)
	if err != nil {
		return nil, err
	}

	summary := &CostSummary{
		CostByAgent: make(map[string]float64),
		CostByModel: make(map[string]float64),
	}
	for _, e := range entries {
		summary.TotalCost += e.Cost
		summary.TotalInputTokens += e.InputTokens
		summary.TotalOutputTokens += e.OutputTokens
		summary.CostByAgent[e.AgentName] += e.Cost
		if e.Model != "" {
			summary.CostByModel[e.Model] += e.Cost
		}
	}
	return summary, nil
}

// CostAnalysis returns the per-operation timeline with running totals.
func (m *Manager) CostAnalysis(ctx context.Context, projectID string) (*CostAnalysis, error) {
	entries, err := m.store.ListCosts(ctx, projectID)
	if err != nil {
		return nil, err
	}

	analysis := &CostAnalysis{
		TotalOperations: len(entries),
		Timeline:        make([]TimelinePoint, 0, len(entries)),
	}
	var cumulative float64
	for _, e := range entries {
		cumulative += e.Cost
		analysis.Timeline = append(analysis.Timeline, TimelinePoint{
			AgentName:      e.AgentName,
			Operation:      e.Operation,
			Cost:           e.Cost,
			CumulativeCost: cumulative,
			Timestamp:      e.CreatedAt,
		})
	}
	return analysis, nil
}

// Export renders a project for download. JSON includes the project and
// all milestone data; markdown and HTML render the latest blog content.
func (m *Manager) Export(ctx context.Context, projectID string, format ExportFormat) ([]byte, string, error) {
	p, err := m.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, "", err
	}

	switch format {
	case ExportJSON:
		milestones, err := m.store.ListMilestones(ctx, projectID)
		if err != nil {
			return nil, "", err
		}
		byType := make(map[string]map[string]any, len(milestones))
		for _, ms := range milestones {
			byType[string(ms.Type)] = ms.Data
		}
		payload := map[string]any{
			"project":    p,
			"milestones": byType,
		}
		out, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode export: %w", err)
		}
		return out, "application/json", nil

	case ExportMarkdown:
		md, err := m.renderMarkdown(ctx, p)
		if err != nil {
			return nil, "", err
		}
		return []byte(md), "text/markdown", nil

	case ExportHTML:
		md, err := m.renderMarkdown(ctx, p)
		if err != nil {
			return nil, "", err
		}
		return renderHTML(md), "text/html", nil

	default:
		return nil, "", fmt.Errorf("unsupported export format %q", format)
	}
}

// renderMarkdown picks the most refined content available: the refined
// blog if present, otherwise the compiled draft.
func (m *Manager) renderMarkdown(ctx context.Context, p *Project) (string, error) {
	var body string

	if ms, err := m.store.LoadMilestone(ctx, p.ID, MilestoneBlogRefined); err == nil {
		body, _ = ms.Data["refined_content"].(string)
	}
	if body == "" {
		ms, err := m.store.LoadMilestone(ctx, p.ID, MilestoneDraftCompleted)
		if err != nil {
			return "", fmt.Errorf("project has no exportable content: %w", err)
		}
		body, _ = ms.Data["compiled_blog"].(string)
	}
	if body == "" {
		return "", fmt.Errorf("project has no exportable content")
	}

	if strings.HasPrefix(strings.TrimSpace(body), "#") {
		return body, nil
	}
	return fmt.Sprintf("# %s\n\n%s", p.Name, body), nil
}

func renderHTML(md string) []byte {
	p := mdparser.NewWithExtensions(mdparser.CommonExtensions | mdparser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags})
	raw := markdown.Render(doc, renderer)
	return bluemonday.UGCPolicy().SanitizeBytes(raw)
}
