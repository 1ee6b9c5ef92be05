// Package refine turns a compiled draft into a publishable blog post:
// introduction, conclusion, summary, title options and the assembled
// final document.
package refine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallnest/blogforge/agents"
	"github.com/smallnest/blogforge/agents/persona"
	"github.com/smallnest/blogforge/graph"
	"github.com/smallnest/blogforge/llm"
	"github.com/smallnest/blogforge/project"
)

// TitleOption is one candidate title for the post.
type TitleOption struct {
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle,omitempty"`
	Reasoning string `json:"reasoning,omitempty"`
}

// State flows through the refinement graph. Err carries a node failure
// so partial results survive the run.
type State struct {
	ProjectID     string
	OriginalDraft string

	Introduction string
	Conclusion   string
	Summary      string
	TitleOptions []TitleOption
	RefinedDraft string
	Usage        llm.Usage
	Err          string
}

// Result is the outcome of a refinement run.
type Result struct {
	RefinedDraft string
	Summary      string
	TitleOptions []TitleOption
	Usage        llm.Usage
}

// Agent refines drafts: generate_introduction → generate_conclusion →
// generate_summary → generate_titles → assemble_draft, short-circuiting
// to the end when a step fails.
type Agent struct {
	model    agents.Generator
	projects *project.Manager
	persona  string
	runnable *graph.Runnable[State]
}

// New creates a refinement agent writing in the default persona.
func New(model agents.Generator, projects *project.Manager) (*Agent, error) {
	return NewWithPersona(model, projects, persona.DefaultName)
}

// NewWithPersona creates a refinement agent with a specific writer voice.
func NewWithPersona(model agents.Generator, projects *project.Manager, personaName string) (*Agent, error) {
	if personaName == "" {
		personaName = persona.DefaultName
	}
	a := &Agent{model: model, projects: projects, persona: personaName}

	g := graph.NewStateGraph[State]()
	g.AddNode("generate_introduction", "write the introduction", a.generateIntroduction)
	g.AddNode("generate_conclusion", "write the conclusion", a.generateConclusion)
	g.AddNode("generate_summary", "write the tl;dr summary", a.generateSummary)
	g.AddNode("generate_titles", "propose title options", a.generateTitles)
	g.AddNode("assemble_draft", "assemble the refined post", a.assembleDraft)

	g.SetEntryPoint("generate_introduction")
	g.AddConditionalEdge("generate_introduction", nextOr("generate_conclusion"))
	g.AddConditionalEdge("generate_conclusion", nextOr("generate_summary"))
	g.AddConditionalEdge("generate_summary", nextOr("generate_titles"))
	g.AddConditionalEdge("generate_titles", nextOr("assemble_draft"))
	g.AddEdge("assemble_draft", graph.END)

	runnable, err := g.Compile()
	if err != nil {
		return nil, err
	}
	a.runnable = runnable
	return a, nil
}

// nextOr routes to the next step unless a previous node recorded an
// error, in which case the run ends early.
func nextOr(next string) func(context.Context, State) string {
	return func(_ context.Context, s State) string {
		if s.Err != "" {
			return graph.END
		}
		return next
	}
}

// Refine runs the refinement graph over the compiled draft and records
// the blog_refined milestone.
func (a *Agent) Refine(ctx context.Context, projectID, draft string) (*Result, error) {
	if strings.TrimSpace(draft) == "" {
		return nil, fmt.Errorf("draft is empty")
	}

	ctx = llm.WithAgentName(llm.WithProjectID(ctx, projectID), "refinement")
	out, err := a.runnable.Invoke(ctx, State{ProjectID: projectID, OriginalDraft: draft})
	if err != nil {
		return nil, err
	}
	if out.Err != "" {
		return nil, fmt.Errorf("refinement failed: %s", out.Err)
	}

	err = a.projects.SaveMilestone(ctx, projectID, project.MilestoneBlogRefined, map[string]any{
		"refined_content": out.RefinedDraft,
		"summary":         out.Summary,
		"title_options":   titleOptionsToMaps(out.TitleOptions),
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to record refinement milestone: %w", err)
	}

	return &Result{
		RefinedDraft: out.RefinedDraft,
		Summary:      out.Summary,
		TitleOptions: out.TitleOptions,
		Usage:        out.Usage,
	}, nil
}

// RefineFromMilestone loads the compiled draft from the draft_completed
// milestone and refines it.
func (a *Agent) RefineFromMilestone(ctx context.Context, projectID string) (*Result, error) {
	ms, err := a.projects.LoadMilestone(ctx, projectID, project.MilestoneDraftCompleted)
	if err != nil {
		return nil, fmt.Errorf("no completed draft to refine: %w", err)
	}
	draft, _ := ms.Data["compiled_blog"].(string)
	return a.Refine(ctx, projectID, draft)
}

func titleOptionsToMaps(options []TitleOption) []map[string]any {
	out := make([]map[string]any, 0, len(options))
	for _, o := range options {
		out = append(out, map[string]any{
			"title":     o.Title,
			"subtitle":  o.Subtitle,
			"reasoning": o.Reasoning,
		})
	}
	return out
}

// TitleOptionsFromMilestone decodes stored title options.
func TitleOptionsFromMilestone(data map[string]any) []TitleOption {
	raw, ok := data["title_options"]
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var options []TitleOption
	if err := json.Unmarshal(encoded, &options); err != nil {
		return nil
	}
	return options
}
