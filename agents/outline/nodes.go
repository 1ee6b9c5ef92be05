package outline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/smallnest/blogforge/agents"
)

const maxPromptContent = 12000

const analyzePrompt = `You are a technical content analyst. Study the source material below and extract its essential structure.

SOURCE MATERIAL:
%s

CODE EXAMPLES:
%s

Respond with JSON only:
{
  "main_topics": ["topic", ...],
  "technical_concepts": ["concept", ...],
  "complexity_indicators": ["indicator", ...],
  "learning_objectives": ["objective", ...]
}`

const difficultyPrompt = `You are assessing the target audience for a technical blog post.

MAIN TOPICS: %s
TECHNICAL CONCEPTS: %s
COMPLEXITY INDICATORS: %s

Pick one level: beginner, intermediate, or advanced.

Respond with JSON only:
{
  "level": "...",
  "reasoning": "..."
}`

const prerequisitesPrompt = `You are listing prerequisites for a %s-level technical blog post.

TECHNICAL CONCEPTS: %s
LEARNING OBJECTIVES: %s

Respond with JSON only:
{
  "required_knowledge": ["...", ...],
  "recommended_tools": ["...", ...],
  "setup_instructions": ["...", ...]
}`

const structurePrompt = `You are planning the section structure of a technical blog post.

MAIN TOPICS: %s
DIFFICULTY: %s
LEARNING OBJECTIVES: %s

Plan 4 to 8 sections that build on each other. Each section needs a clear title, optional subsections, the learning goals it covers, and an estimated reading time.

Respond with JSON only:
{
  "title": "working title",
  "sections": [
    {
      "title": "...",
      "subsections": ["...", ...],
      "learning_goals": ["...", ...],
      "estimated_time": "X min"
    }
  ]
}`

const finalPrompt = `You are finalizing a blog outline. Polish the draft structure below into the final outline: refine the title, write a one-paragraph introduction plan and conclusion plan, and keep the sections in order.

DRAFT STRUCTURE:
%s

DIFFICULTY: %s
PREREQUISITES: %s

Respond with JSON only:
{
  "title": "...",
  "difficulty": "%s",
  "prerequisites": ["...", ...],
  "sections": [
    {
      "title": "...",
      "subsections": ["...", ...],
      "learning_goals": ["...", ...],
      "estimated_time": "X min"
    }
  ],
  "introduction": "...",
  "conclusion": "..."
}`

func (a *Agent) analyzeContent(ctx context.Context, s State) (State, error) {
	prompt := fmt.Sprintf(analyzePrompt,
		truncate(s.MainContent, maxPromptContent),
		truncate(s.CodeContent, maxPromptContent/2))
	var analysis Analysis
	if err := a.generateInto(ctx, prompt, &analysis); err != nil {
		return s, fmt.Errorf("content analysis failed: %w", err)
	}
	if len(analysis.MainTopics) == 0 {
		return s, fmt.Errorf("content analysis returned no topics")
	}
	s.Analysis = &analysis
	return s, nil
}

func (a *Agent) assessDifficulty(ctx context.Context, s State) (State, error) {
	prompt := fmt.Sprintf(difficultyPrompt,
		joinList(s.Analysis.MainTopics),
		joinList(s.Analysis.TechnicalConcepts),
		joinList(s.Analysis.ComplexityIndicators))
	var difficulty Difficulty
	if err := a.generateInto(ctx, prompt, &difficulty); err != nil {
		return s, fmt.Errorf("difficulty assessment failed: %w", err)
	}
	switch difficulty.Level {
	case "beginner", "intermediate", "advanced":
	default:
		difficulty.Level = "intermediate"
	}
	s.Difficulty = &difficulty
	return s, nil
}

func (a *Agent) identifyPrerequisites(ctx context.Context, s State) (State, error) {
	prompt := fmt.Sprintf(prerequisitesPrompt,
		s.Difficulty.Level,
		joinList(s.Analysis.TechnicalConcepts),
		joinList(s.Analysis.LearningObjectives))
	var prereqs Prerequisites
	if err := a.generateInto(ctx, prompt, &prereqs); err != nil {
		return s, fmt.Errorf("prerequisite identification failed: %w", err)
	}
	s.Prerequisites = &prereqs
	return s, nil
}

func (a *Agent) structureOutline(ctx context.Context, s State) (State, error) {
	prompt := fmt.Sprintf(structurePrompt,
		joinList(s.Analysis.MainTopics),
		s.Difficulty.Level,
		joinList(s.Analysis.LearningObjectives))
	var structure Outline
	if err := a.generateInto(ctx, prompt, &structure); err != nil {
		return s, fmt.Errorf("outline structuring failed: %w", err)
	}
	if len(structure.Sections) == 0 {
		return s, fmt.Errorf("outline structuring returned no sections")
	}
	s.Structure = &structure
	return s, nil
}

func (a *Agent) generateFinal(ctx context.Context, s State) (State, error) {
	draft, err := json.MarshalIndent(s.Structure, "", "  ")
	if err != nil {
		return s, err
	}
	prompt := fmt.Sprintf(finalPrompt,
		string(draft),
		s.Difficulty.Level,
		joinList(s.Prerequisites.RequiredKnowledge),
		s.Difficulty.Level)
	var final Outline
	if err := a.generateInto(ctx, prompt, &final); err != nil {
		return s, fmt.Errorf("final outline generation failed: %w", err)
	}
	if len(final.Sections) == 0 {
		final.Sections = s.Structure.Sections
	}
	if final.Title == "" {
		final.Title = s.Structure.Title
	}
	if final.Difficulty == "" {
		final.Difficulty = s.Difficulty.Level
	}
	if len(final.Prerequisites) == 0 {
		final.Prerequisites = s.Prerequisites.RequiredKnowledge
	}
	s.Final = &final
	return s, nil
}

func (a *Agent) generateInto(ctx context.Context, prompt string, out any) error {
	text, _, err := a.model.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	return agents.UnmarshalJSON(text, out)
}

func joinList(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}

// outlineToMap round-trips an outline through JSON so the milestone
// store receives plain map data.
func outlineToMap(o *Outline) map[string]any {
	raw, err := json.Marshal(o)
	if err != nil {
		return map[string]any{"title": o.Title}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{"title": o.Title}
	}
	return m
}

func decodeInto(raw any, out any) bool {
	data, err := json.Marshal(raw)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}
