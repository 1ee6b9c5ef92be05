package draft

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/smallnest/blogforge/agents"
	"github.com/smallnest/blogforge/agents/persona"
	"github.com/smallnest/blogforge/rag"
)

const maxReferenceChars = 8000

const sectionPrompt = `You are a technical blog writer drafting one section of "%s" (%s level).

SECTION: %s
SUBSECTIONS: %s
LEARNING GOALS: %s

SOURCE MATERIAL:
%s
%s
Write the section in markdown. Ground every claim in the source material, include the relevant code examples in fenced blocks, and teach toward the learning goals. Start with a "## %s" heading. Do not write an introduction or conclusion for the whole post.`

const enhancePrompt = `You are an editor. Improve the flow of this blog section: smooth the transitions, vary sentence length, and trim filler. Keep every code block exactly as written. Return only the revised markdown.

SECTION:
%s`

const qualityPrompt = `You are reviewing one section of a technical blog post against its plan.

SECTION TITLE: %s
LEARNING GOALS: %s

SECTION:
%s

Score each axis from 0.0 to 1.0 and respond with JSON only:
{
  "completeness": 0.0,
  "technical_accuracy": 0.0,
  "clarity": 0.0,
  "code_quality": 0.0,
  "engagement": 0.0,
  "feedback": "one short paragraph on the weakest axis"
}`

const feedbackPrompt = `You are a writing coach. This blog section scored below the quality bar. Using the review below, write concrete revision instructions: what to add, cut, or rework. Be specific and brief.

REVIEW SCORES: completeness %.2f, technical accuracy %.2f, clarity %.2f, code quality %.2f, engagement %.2f
REVIEWER NOTES: %s

SECTION:
%s`

const revisePrompt = `You are a technical blog writer revising one section. Apply the feedback below. Keep the "## " heading and keep code blocks fenced. Return only the revised markdown.

FEEDBACK:
%s

SECTION:
%s`

func (a *Agent) retrieveContext(ctx context.Context, s SectionState) (SectionState, error) {
	refs, err := a.mapper.MapSection(ctx, rag.SectionQuery{
		Title:         s.Plan.Title,
		LearningGoals: s.Plan.LearningGoals,
	})
	if err != nil {
		return s, fmt.Errorf("content mapping failed: %w", err)
	}
	s.References = refs
	return s, nil
}

func (a *Agent) generateSection(ctx context.Context, s SectionState) (SectionState, error) {
	var steering string
	if s.UserFeedback != "" {
		steering = fmt.Sprintf("READER FEEDBACK ON THE PREVIOUS VERSION:\n%s\n\n", s.UserFeedback)
	}
	prompt := persona.Prefix(a.persona, fmt.Sprintf(sectionPrompt,
		s.BlogTitle,
		s.Difficulty,
		s.Plan.Title,
		joinOr(s.Plan.Subsections, "none"),
		joinOr(s.Plan.LearningGoals, "none"),
		renderReferences(s.References),
		steering,
		s.Plan.Title))

	content, usage, err := a.model.Generate(ctx, prompt)
	if err != nil {
		return s, fmt.Errorf("section generation failed: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		return s, fmt.Errorf("section generation returned no content")
	}
	s.Content = content
	s.Usage.InputTokens += usage.InputTokens
	s.Usage.OutputTokens += usage.OutputTokens
	return s, nil
}

func (a *Agent) enhanceContent(ctx context.Context, s SectionState) (SectionState, error) {
	enhanced, usage, err := a.model.Generate(ctx, fmt.Sprintf(enhancePrompt, s.Content))
	if err != nil {
		return s, fmt.Errorf("section enhancement failed: %w", err)
	}
	if strings.TrimSpace(enhanced) != "" {
		s.Content = enhanced
	}
	s.Usage.InputTokens += usage.InputTokens
	s.Usage.OutputTokens += usage.OutputTokens
	return s, nil
}

var codeBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n(.*?)```")

func (a *Agent) extractCode(_ context.Context, s SectionState) (SectionState, error) {
	s.CodeBlocks = nil
	for _, m := range codeBlockRe.FindAllStringSubmatch(s.Content, -1) {
		block := strings.TrimRight(m[1], "\n")
		if block != "" {
			s.CodeBlocks = append(s.CodeBlocks, block)
		}
	}
	return s, nil
}

func (a *Agent) validateQuality(ctx context.Context, s SectionState) (SectionState, error) {
	prompt := fmt.Sprintf(qualityPrompt,
		s.Plan.Title,
		joinOr(s.Plan.LearningGoals, "none"),
		s.Content)
	text, usage, err := a.model.Generate(ctx, prompt)
	s.Usage.InputTokens += usage.InputTokens
	s.Usage.OutputTokens += usage.OutputTokens
	if err != nil {
		return s, fmt.Errorf("quality validation failed: %w", err)
	}

	var q Quality
	if err := agents.UnmarshalJSON(text, &q); err != nil {
		return s, fmt.Errorf("quality review was not parseable: %w", err)
	}
	s.Quality = &q
	return s, nil
}

func (a *Agent) autoFeedback(ctx context.Context, s SectionState) (SectionState, error) {
	q := s.Quality
	prompt := fmt.Sprintf(feedbackPrompt,
		q.Completeness, q.TechnicalAccuracy, q.Clarity, q.CodeQuality, q.Engagement,
		q.Feedback,
		s.Content)
	feedback, usage, err := a.model.Generate(ctx, prompt)
	s.Usage.InputTokens += usage.InputTokens
	s.Usage.OutputTokens += usage.OutputTokens
	if err != nil {
		return s, fmt.Errorf("revision feedback failed: %w", err)
	}
	s.Feedback = feedback
	return s, nil
}

func (a *Agent) incorporateFeedback(ctx context.Context, s SectionState) (SectionState, error) {
	revised, usage, err := a.model.Generate(ctx, persona.Prefix(a.persona, fmt.Sprintf(revisePrompt, s.Feedback, s.Content)))
	s.Usage.InputTokens += usage.InputTokens
	s.Usage.OutputTokens += usage.OutputTokens
	if err != nil {
		return s, fmt.Errorf("revision failed: %w", err)
	}
	if strings.TrimSpace(revised) != "" {
		s.Content = revised
	}
	s.Iteration++
	return s, nil
}

func renderReferences(refs []rag.ContentReference) string {
	if len(refs) == 0 {
		return "none available"
	}
	var b strings.Builder
	for i, ref := range refs {
		if b.Len() > maxReferenceChars {
			break
		}
		fmt.Fprintf(&b, "[%d] (%s", i+1, ref.Kind)
		if ref.Source != "" {
			fmt.Fprintf(&b, ", from %s", ref.Source)
		}
		b.WriteString(")\n")
		b.WriteString(ref.Content)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

func joinOr(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}
