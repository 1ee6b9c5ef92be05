package refine

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/blogforge/agents"
	"github.com/smallnest/blogforge/agents/persona"
)

const maxDraftChars = 24000

const introductionPrompt = `You are a technical blog writer. Write the opening section for the post below: hook the reader with the problem it solves, state what they will learn, and set expectations about difficulty. Two to four paragraphs of markdown, no heading.

POST:
%s`

const conclusionPrompt = `You are a technical blog writer. Write the closing section for the post below: recap the key takeaways and point the reader at sensible next steps. Two to three paragraphs of markdown, no heading.

POST:
%s`

const summaryPrompt = `Write a tl;dr summary of the post below in two to three sentences. Plain text only.

POST:
%s`

const titlesPrompt = `You are naming a technical blog post. Propose 3 to 5 title options for the post below, each with a subtitle and a one-line reason it works.

POST:
%s

Respond with JSON only:
[
  {"title": "...", "subtitle": "...", "reasoning": "..."}
]`

func (a *Agent) generateIntroduction(ctx context.Context, s State) (State, error) {
	text, usage, err := a.model.Generate(ctx, persona.Prefix(a.persona, fmt.Sprintf(introductionPrompt, clip(s.OriginalDraft))))
	s.Usage.InputTokens += usage.InputTokens
	s.Usage.OutputTokens += usage.OutputTokens
	if err != nil {
		s.Err = fmt.Sprintf("introduction: %v", err)
		return s, nil
	}
	s.Introduction = strings.TrimSpace(text)
	return s, nil
}

func (a *Agent) generateConclusion(ctx context.Context, s State) (State, error) {
	text, usage, err := a.model.Generate(ctx, persona.Prefix(a.persona, fmt.Sprintf(conclusionPrompt, clip(s.OriginalDraft))))
	s.Usage.InputTokens += usage.InputTokens
	s.Usage.OutputTokens += usage.OutputTokens
	if err != nil {
		s.Err = fmt.Sprintf("conclusion: %v", err)
		return s, nil
	}
	s.Conclusion = strings.TrimSpace(text)
	return s, nil
}

func (a *Agent) generateSummary(ctx context.Context, s State) (State, error) {
	text, usage, err := a.model.Generate(ctx, fmt.Sprintf(summaryPrompt, clip(s.OriginalDraft)))
	s.Usage.InputTokens += usage.InputTokens
	s.Usage.OutputTokens += usage.OutputTokens
	if err != nil {
		s.Err = fmt.Sprintf("summary: %v", err)
		return s, nil
	}
	s.Summary = strings.TrimSpace(text)
	return s, nil
}

func (a *Agent) generateTitles(ctx context.Context, s State) (State, error) {
	text, usage, err := a.model.Generate(ctx, fmt.Sprintf(titlesPrompt, clip(s.OriginalDraft)))
	s.Usage.InputTokens += usage.InputTokens
	s.Usage.OutputTokens += usage.OutputTokens
	if err != nil {
		s.Err = fmt.Sprintf("titles: %v", err)
		return s, nil
	}

	var options []TitleOption
	if err := agents.UnmarshalJSON(text, &options); err != nil {
		s.Err = fmt.Sprintf("titles: %v", err)
		return s, nil
	}
	if len(options) == 0 {
		s.Err = "titles: model proposed none"
		return s, nil
	}
	s.TitleOptions = options
	return s, nil
}

// assembleDraft stitches the refined post together: chosen title,
// summary callout, introduction, the original body without its old
// top-level title, then the conclusion.
func (a *Agent) assembleDraft(_ context.Context, s State) (State, error) {
	var b strings.Builder

	title := s.TitleOptions[0]
	b.WriteString("# " + title.Title + "\n\n")
	if title.Subtitle != "" {
		b.WriteString("*" + title.Subtitle + "*\n\n")
	}
	if s.Summary != "" {
		b.WriteString("> **TL;DR:** " + s.Summary + "\n\n")
	}
	if s.Introduction != "" {
		b.WriteString(s.Introduction + "\n\n")
	}
	b.WriteString(stripLeadingTitle(s.OriginalDraft))
	if s.Conclusion != "" {
		b.WriteString("\n\n## Conclusion\n\n" + s.Conclusion)
	}

	s.RefinedDraft = strings.TrimSpace(b.String()) + "\n"
	return s, nil
}

// stripLeadingTitle drops a "# " heading at the top of the draft, since
// the refined post carries its own title.
func stripLeadingTitle(draft string) string {
	trimmed := strings.TrimLeft(draft, "\n")
	if strings.HasPrefix(trimmed, "# ") {
		if idx := strings.Index(trimmed, "\n"); idx >= 0 {
			return strings.TrimLeft(trimmed[idx+1:], "\n")
		}
		return ""
	}
	return trimmed
}

func clip(s string) string {
	if len(s) <= maxDraftChars {
		return s
	}
	return s[:maxDraftChars] + "\n... (truncated)"
}
