// Package draft writes the blog sections from the approved outline,
// grounding each section in retrieved source content and looping a
// quality gate until the section meets the bar.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/smallnest/blogforge/agents"
	"github.com/smallnest/blogforge/agents/persona"
	"github.com/smallnest/blogforge/graph"
	"github.com/smallnest/blogforge/llm"
	"github.com/smallnest/blogforge/project"
	"github.com/smallnest/blogforge/rag"
	"github.com/smallnest/blogforge/store"
)

const (
	defaultQualityThreshold = 0.85
	defaultMaxIterations    = 3
)

// Quality scores one generated section on five axes, each in [0, 1].
type Quality struct {
	Completeness      float64 `json:"completeness"`
	TechnicalAccuracy float64 `json:"technical_accuracy"`
	Clarity           float64 `json:"clarity"`
	CodeQuality       float64 `json:"code_quality"`
	Engagement        float64 `json:"engagement"`
	Feedback          string  `json:"feedback,omitempty"`
}

// Overall is the mean of the five scores.
func (q Quality) Overall() float64 {
	return (q.Completeness + q.TechnicalAccuracy + q.Clarity + q.CodeQuality + q.Engagement) / 5
}

// SectionPlan is one outline section to draft.
type SectionPlan struct {
	Index         int      `json:"index"`
	Title         string   `json:"title"`
	Subsections   []string `json:"subsections,omitempty"`
	LearningGoals []string `json:"learning_goals,omitempty"`
}

// SectionState flows through the per-section graph.
type SectionState struct {
	ProjectID  string
	BlogTitle  string
	Difficulty string
	Plan       SectionPlan

	// UserFeedback is set when a section is regenerated on request.
	UserFeedback string

	References []rag.ContentReference
	Content    string
	CodeBlocks []string
	Quality    *Quality
	Feedback   string
	Iteration  int
	Usage      llm.Usage
}

// Mapper maps an outline section onto ranked source references.
type Mapper interface {
	MapSection(ctx context.Context, query rag.SectionQuery) ([]rag.ContentReference, error)
}

// Options tune the quality loop. Checkpoints, when set, persists the
// per-section graph state so a crashed drafting run resumes mid-section.
type Options struct {
	QualityThreshold float64
	MaxIterations    int
	// Persona names the writer voice prepended to generation prompts.
	// Empty means persona.DefaultName.
	Persona     string
	Checkpoints store.CheckpointStore
}

// Agent drafts sections: retrieve_context → generate_section →
// enhance_content → extract_code → validate_quality, looping through
// auto_feedback → incorporate_feedback while the score is below the
// threshold.
type Agent struct {
	model       agents.Generator
	mapper      Mapper
	projects    *project.Manager
	threshold   float64
	maxIter     int
	persona     string
	checkpoints store.CheckpointStore
	runnable    *graph.Runnable[SectionState]
}

// New creates a draft agent.
func New(model agents.Generator, mapper Mapper, projects *project.Manager, opts Options) (*Agent, error) {
	a := &Agent{
		model:       model,
		mapper:      mapper,
		projects:    projects,
		threshold:   opts.QualityThreshold,
		maxIter:     opts.MaxIterations,
		persona:     opts.Persona,
		checkpoints: opts.Checkpoints,
	}
	if a.threshold <= 0 {
		a.threshold = defaultQualityThreshold
	}
	if a.maxIter <= 0 {
		a.maxIter = defaultMaxIterations
	}
	if a.persona == "" {
		a.persona = persona.DefaultName
	}

	g := graph.NewStateGraph[SectionState]()
	g.AddNode("retrieve_context", "map source content onto the section", a.retrieveContext)
	g.AddNode("generate_section", "write the section body", a.generateSection)
	g.AddNode("enhance_content", "tighten transitions and flow", a.enhanceContent)
	g.AddNode("extract_code", "collect the code examples", a.extractCode)
	g.AddNode("validate_quality", "score the section", a.validateQuality)
	g.AddNode("auto_feedback", "write revision feedback", a.autoFeedback)
	g.AddNode("incorporate_feedback", "revise using the feedback", a.incorporateFeedback)

	g.SetEntryPoint("retrieve_context")
	g.AddEdge("retrieve_context", "generate_section")
	g.AddEdge("generate_section", "enhance_content")
	g.AddEdge("enhance_content", "extract_code")
	g.AddEdge("extract_code", "validate_quality")
	g.AddConditionalEdge("validate_quality", a.qualityGate)
	g.AddEdge("auto_feedback", "incorporate_feedback")
	g.AddEdge("incorporate_feedback", "validate_quality")

	runnable, err := g.Compile()
	if err != nil {
		return nil, err
	}
	a.runnable = runnable
	return a, nil
}

func (a *Agent) qualityGate(_ context.Context, s SectionState) string {
	if s.Quality != nil && s.Quality.Overall() >= a.threshold {
		return graph.END
	}
	if s.Iteration >= a.maxIter {
		return graph.END
	}
	return "auto_feedback"
}

// DraftPlan is the full drafting request: the blog metadata plus the
// ordered sections from the outline milestone.
type DraftPlan struct {
	BlogTitle  string
	Difficulty string
	Sections   []SectionPlan
}

// Result summarizes a drafting run.
type Result struct {
	Sections     []*project.Section
	CompiledBlog string
	TotalCost    float64
}

// GenerateDraft drafts every section of the plan, persists the section
// rows and records the draft_completed milestone with the compiled blog.
func (a *Agent) GenerateDraft(ctx context.Context, projectID string, plan DraftPlan) (*Result, error) {
	if len(plan.Sections) == 0 {
		return nil, fmt.Errorf("draft plan has no sections")
	}

	ctx = llm.WithAgentName(llm.WithProjectID(ctx, projectID), "draft")
	started := time.Now()
	rows := make([]*project.Section, 0, len(plan.Sections))
	var totalCost float64

	for _, sp := range plan.Sections {
		out, err := a.generateOne(ctx, projectID, plan, sp, "")
		if err != nil {
			rows = append(rows, &project.Section{
				SectionIndex: sp.Index,
				Title:        sp.Title,
				Status:       project.SectionFailed,
			})
			if saveErr := a.projects.SaveSections(ctx, projectID, rows); saveErr != nil {
				return nil, saveErr
			}
			return nil, fmt.Errorf("section %d (%s): %w", sp.Index, sp.Title, err)
		}
		row := a.sectionRow(out)
		rows = append(rows, row)
		totalCost += row.CostDelta
	}

	if err := a.projects.SaveSections(ctx, projectID, rows); err != nil {
		return nil, err
	}

	compiled := compileSections(plan.BlogTitle, rows)
	err := a.projects.SaveMilestone(ctx, projectID, project.MilestoneDraftCompleted, map[string]any{
		"compiled_blog":   compiled,
		"section_count":   len(rows),
		"total_cost":      totalCost,
		"generation_time": time.Since(started).Seconds(),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to record draft milestone: %w", err)
	}

	return &Result{Sections: rows, CompiledBlog: compiled, TotalCost: totalCost}, nil
}

// RegenerateSection redrafts a single section, optionally steering it
// with user feedback, and rewrites the stored section rows.
func (a *Agent) RegenerateSection(ctx context.Context, projectID string, plan DraftPlan, index int, feedback string) (*project.Section, error) {
	var target *SectionPlan
	for i := range plan.Sections {
		if plan.Sections[i].Index == index {
			target = &plan.Sections[i]
			break
		}
	}
	if target == nil {
		return nil, fmt.Errorf("no section with index %d", index)
	}

	ctx = llm.WithAgentName(llm.WithProjectID(ctx, projectID), "draft")
	existing, err := a.projects.LoadSections(ctx, projectID)
	if err != nil {
		return nil, err
	}

	out, err := a.generateOne(ctx, projectID, plan, *target, feedback)
	if err != nil {
		return nil, fmt.Errorf("section %d (%s): %w", index, target.Title, err)
	}
	row := a.sectionRow(out)

	replaced := false
	for i, sec := range existing {
		if sec.SectionIndex == index {
			existing[i] = row
			replaced = true
			break
		}
	}
	if !replaced {
		existing = append(existing, row)
	}
	if err := a.projects.SaveSections(ctx, projectID, existing); err != nil {
		return nil, err
	}
	return row, nil
}

// Compile reassembles the stored sections into a single blog document
// and refreshes the draft_completed milestone.
func (a *Agent) Compile(ctx context.Context, projectID, blogTitle string) (string, error) {
	rows, err := a.projects.LoadSections(ctx, projectID)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("no sections to compile")
	}
	for _, row := range rows {
		if row.Status != project.SectionCompleted {
			return "", fmt.Errorf("section %d (%s) is %s", row.SectionIndex, row.Title, row.Status)
		}
	}

	compiled := compileSections(blogTitle, rows)
	var totalCost float64
	for _, row := range rows {
		totalCost += row.CostDelta
	}
	err = a.projects.SaveMilestone(ctx, projectID, project.MilestoneDraftCompleted, map[string]any{
		"compiled_blog": compiled,
		"section_count": len(rows),
		"total_cost":    totalCost,
	}, nil)
	if err != nil {
		return "", err
	}
	return compiled, nil
}

func (a *Agent) generateOne(ctx context.Context, projectID string, plan DraftPlan, sp SectionPlan, feedback string) (SectionState, error) {
	initial := SectionState{
		ProjectID:    projectID,
		BlogTitle:    plan.BlogTitle,
		Difficulty:   plan.Difficulty,
		Plan:         sp,
		UserFeedback: feedback,
	}
	if a.checkpoints == nil {
		return a.runnable.Invoke(ctx, initial)
	}

	// A stable run ID lets a crashed run resume mid-section; clearing on
	// success keeps redrafts of the same section starting fresh.
	runID := fmt.Sprintf("draft:%s:%d", projectID, sp.Index)
	checkpointed := a.runnable.WithCheckpointing(a.checkpoints)
	out, err := checkpointed.InvokeWithConfig(ctx, initial, &graph.Config{RunID: runID})
	if err != nil {
		return out, err
	}
	if clearErr := checkpointed.ClearCheckpoints(ctx, runID); clearErr != nil {
		return out, fmt.Errorf("failed to clear draft checkpoints: %w", clearErr)
	}
	return out, nil
}

func (a *Agent) sectionRow(s SectionState) *project.Section {
	return &project.Section{
		SectionIndex: s.Plan.Index,
		Title:        s.Plan.Title,
		Content:      s.Content,
		Status:       project.SectionCompleted,
		CostDelta:    a.costOf(s.Usage),
		InputTokens:  s.Usage.InputTokens,
		OutputTokens: s.Usage.OutputTokens,
	}
}

func (a *Agent) costOf(usage llm.Usage) float64 {
	if named, ok := a.model.(interface{ ModelName() string }); ok {
		return llm.CostOf(named.ModelName(), usage)
	}
	return 0
}

func compileSections(title string, rows []*project.Section) string {
	var b strings.Builder
	if title != "" {
		b.WriteString("# " + title + "\n\n")
	}
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n\n")
		}
		content := strings.TrimSpace(row.Content)
		if !strings.HasPrefix(content, "#") {
			b.WriteString("## " + row.Title + "\n\n")
		}
		b.WriteString(content)
	}
	return b.String()
}

// PlanFromMilestone rebuilds the draft plan from the stored outline
// milestone data.
func PlanFromMilestone(data map[string]any) (DraftPlan, error) {
	raw, ok := data["outline"]
	if !ok {
		return DraftPlan{}, fmt.Errorf("milestone has no outline")
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return DraftPlan{}, err
	}
	var outline struct {
		Title      string `json:"title"`
		Difficulty string `json:"difficulty"`
		Sections   []struct {
			Title         string   `json:"title"`
			Subsections   []string `json:"subsections"`
			LearningGoals []string `json:"learning_goals"`
		} `json:"sections"`
	}
	if err := json.Unmarshal(encoded, &outline); err != nil {
		return DraftPlan{}, err
	}
	if len(outline.Sections) == 0 {
		return DraftPlan{}, fmt.Errorf("outline has no sections")
	}

	plan := DraftPlan{BlogTitle: outline.Title, Difficulty: outline.Difficulty}
	for i, sec := range outline.Sections {
		plan.Sections = append(plan.Sections, SectionPlan{
			Index:         i,
			Title:         sec.Title,
			Subsections:   sec.Subsections,
			LearningGoals: sec.LearningGoals,
		})
	}
	return plan, nil
}
