// Package outline generates a structured blog outline from ingested
// source content.
package outline

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallnest/blogforge/agents"
	"github.com/smallnest/blogforge/graph"
	"github.com/smallnest/blogforge/llm"
	"github.com/smallnest/blogforge/project"
)

// Section is one planned blog section.
type Section struct {
	Title         string   `json:"title"`
	Subsections   []string `json:"subsections,omitempty"`
	LearningGoals []string `json:"learning_goals,omitempty"`
	EstimatedTime string   `json:"estimated_time,omitempty"`
}

// Outline is the final generated blog plan.
type Outline struct {
	Title         string    `json:"title"`
	Difficulty    string    `json:"difficulty"`
	Prerequisites []string  `json:"prerequisites,omitempty"`
	Sections      []Section `json:"sections"`
	Introduction  string    `json:"introduction,omitempty"`
	Conclusion    string    `json:"conclusion,omitempty"`
}

// Analysis is the content analysis produced by the first node.
type Analysis struct {
	MainTopics           []string `json:"main_topics"`
	TechnicalConcepts    []string `json:"technical_concepts"`
	ComplexityIndicators []string `json:"complexity_indicators,omitempty"`
	LearningObjectives   []string `json:"learning_objectives,omitempty"`
}

// Difficulty is the assessed audience level.
type Difficulty struct {
	Level     string `json:"level"`
	Reasoning string `json:"reasoning,omitempty"`
}

// Prerequisites lists what a reader needs before starting.
type Prerequisites struct {
	RequiredKnowledge []string `json:"required_knowledge"`
	RecommendedTools  []string `json:"recommended_tools,omitempty"`
	SetupInstructions []string `json:"setup_instructions,omitempty"`
}

// State flows through the outline graph.
type State struct {
	ProjectID   string
	ContentHash string
	MainContent string
	CodeContent string

	Analysis      *Analysis
	Difficulty    *Difficulty
	Prerequisites *Prerequisites
	Structure     *Outline
	Final         *Outline
}

// Agent builds outlines: analyze_content → assess_difficulty →
// identify_prerequisites → structure_outline → generate_final.
type Agent struct {
	model    agents.Generator
	projects *project.Manager
	runnable *graph.Runnable[State]
}

// New creates an outline agent.
func New(model agents.Generator, projects *project.Manager) (*Agent, error) {
	a := &Agent{model: model, projects: projects}

	g := graph.NewStateGraph[State]()
	g.AddNode("analyze_content", "extract topics and concepts", a.analyzeContent)
	g.AddNode("assess_difficulty", "judge the audience level", a.assessDifficulty)
	g.AddNode("identify_prerequisites", "list required knowledge", a.identifyPrerequisites)
	g.AddNode("structure_outline", "draft the section structure", a.structureOutline)
	g.AddNode("generate_final", "produce the final outline", a.generateFinal)

	g.SetEntryPoint("analyze_content")
	g.AddEdge("analyze_content", "assess_difficulty")
	g.AddEdge("assess_difficulty", "identify_prerequisites")
	g.AddEdge("identify_prerequisites", "structure_outline")
	g.AddEdge("structure_outline", "generate_final")
	g.AddEdge("generate_final", graph.END)

	runnable, err := g.Compile()
	if err != nil {
		return nil, err
	}
	a.runnable = runnable
	return a, nil
}

// Runnable exposes the compiled graph for callers that need custom
// invocation configs.
func (a *Agent) Runnable() *graph.Runnable[State] {
	return a.runnable
}

// Propose runs the outline graph but interrupts after the final node,
// handing the outline back for human review instead of recording the
// milestone. Approve completes the step with the reviewed outline.
func (a *Agent) Propose(ctx context.Context, projectID, contentHash, mainContent, codeContent string) (*Outline, error) {
	ctx = llm.WithAgentName(llm.WithProjectID(ctx, projectID), "outline")
	out, err := a.runnable.InvokeWithConfig(ctx, State{
		ProjectID:   projectID,
		ContentHash: contentHash,
		MainContent: mainContent,
		CodeContent: codeContent,
	}, graph.WithInterruptAfter("generate_final"))
	if err != nil {
		var gi *graph.GraphInterrupt
		if !errors.As(err, &gi) {
			return nil, err
		}
	}
	if out.Final == nil {
		return nil, fmt.Errorf("outline generation produced no result")
	}
	return out.Final, nil
}

// Approve records a reviewed, possibly edited outline as the
// outline_generated milestone.
func (a *Agent) Approve(ctx context.Context, projectID, contentHash string, outline *Outline) error {
	if outline == nil || len(outline.Sections) == 0 {
		return fmt.Errorf("approved outline has no sections")
	}
	return a.saveMilestone(ctx, projectID, contentHash, outline)
}

// Generate builds an outline for a project. When the stored outline
// milestone carries the same content hash the cached outline is
// returned without any model calls.
func (a *Agent) Generate(ctx context.Context, projectID, contentHash, mainContent, codeContent string) (*Outline, bool, error) {
	if cached := a.cachedOutline(ctx, projectID, contentHash); cached != nil {
		return cached, true, nil
	}

	ctx = llm.WithAgentName(llm.WithProjectID(ctx, projectID), "outline")
	out, err := a.runnable.Invoke(ctx, State{
		ProjectID:   projectID,
		ContentHash: contentHash,
		MainContent: mainContent,
		CodeContent: codeContent,
	})
	if err != nil {
		return nil, false, err
	}
	if out.Final == nil {
		return nil, false, fmt.Errorf("outline generation produced no result")
	}

	if err := a.saveMilestone(ctx, projectID, contentHash, out.Final); err != nil {
		return nil, false, err
	}
	return out.Final, false, nil
}

func (a *Agent) cachedOutline(ctx context.Context, projectID, contentHash string) *Outline {
	if contentHash == "" {
		return nil
	}
	ms, err := a.projects.LoadMilestone(ctx, projectID, project.MilestoneOutlineGenerated)
	if err != nil {
		return nil
	}
	if ms.Data["content_hash"] != contentHash {
		return nil
	}
	raw, ok := ms.Data["outline"]
	if !ok {
		return nil
	}
	var cached Outline
	if !decodeInto(raw, &cached) {
		return nil
	}
	return &cached
}

func (a *Agent) saveMilestone(ctx context.Context, projectID, contentHash string, outline *Outline) error {
	err := a.projects.SaveMilestone(ctx, projectID, project.MilestoneOutlineGenerated, map[string]any{
		"outline":      outlineToMap(outline),
		"content_hash": contentHash,
		"title":        outline.Title,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to record outline milestone: %w", err)
	}
	return nil
}
