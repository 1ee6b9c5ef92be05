// Package agents holds the LLM pipeline agents and shared helpers for
// parsing model output.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/smallnest/blogforge/llm"
	"github.com/smallnest/blogforge/project"
)

// Generator is the text generation surface agents depend on. Both
// llm.Model and llm.Tracked satisfy it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, llm.Usage, error)
}

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\n?(.*?)```")

// ExtractJSON pulls the first JSON object or array out of model output,
// tolerating surrounding prose and markdown fences.
func ExtractJSON(text string) (string, error) {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	start := -1
	var opening, closing byte
	for i := 0; i < len(text); i++ {
		if text[i] == '{' || text[i] == '[' {
			start = i
			opening = text[i]
			closing = '}'
			if opening == '[' {
				closing = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", fmt.Errorf("no json found in model output")
	}

	depth := 0
	inString := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case opening:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced json in model output")
}

// UnmarshalJSON extracts and decodes the first JSON value in model output.
func UnmarshalJSON(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode model output: %w", err)
	}
	return nil
}

// CostRecorder persists every priced model call as a cost entry on the
// project the call was made for. Calls carrying no project ID in their
// context are skipped; the in-process aggregator still sees them.
func CostRecorder(projects *project.Manager) llm.RecorderFunc {
	return func(ctx context.Context, call llm.Call) error {
		if call.ProjectID == "" {
			return nil
		}
		entry := &project.CostEntry{
			AgentName:    call.AgentName,
			Operation:    call.Operation,
			Model:        call.Model,
			InputTokens:  call.Usage.InputTokens,
			OutputTokens: call.Usage.OutputTokens,
			Cost:         call.Cost,
			CreatedAt:    call.Timestamp,
		}
		if call.Estimated {
			entry.Metadata = map[string]any{"estimated_tokens": true}
		}
		return projects.TrackCost(ctx, call.ProjectID, entry)
	}
}

// ExtractTag returns the content between <tag> and </tag>, trimmed.
// The second return reports whether the tag was found.
func ExtractTag(text, tag string) (string, bool) {
	re := regexp.MustCompile(`(?is)<` + regexp.QuoteMeta(tag) + `>(.*?)</` + regexp.QuoteMeta(tag) + `>`)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
