// Package social derives promotion content from a refined blog post:
// a content breakdown, a LinkedIn post, an X post and a newsletter blurb.
package social

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/blogforge/agents"
	"github.com/smallnest/blogforge/agents/persona"
	"github.com/smallnest/blogforge/llm"
	"github.com/smallnest/blogforge/project"
)

const maxBlogChars = 20000

const socialPrompt = `You are a developer-relations writer promoting the technical blog post below. Produce all four pieces, each inside its tag:

<content_breakdown>
A bullet breakdown of the post's key points, for repurposing.
</content_breakdown>

<linkedin_post>
A LinkedIn post: professional tone, a hook line, 3-5 short paragraphs, 2-3 hashtags.
</linkedin_post>

<x_post>
An X post under 280 characters with one hashtag.
</x_post>

<newsletter_content>
A newsletter blurb: subject line on the first line, then 2-3 paragraphs.
</newsletter_content>

BLOG POST:
%s`

// Content is the generated promotion bundle. Missing pieces stay empty.
type Content struct {
	ContentBreakdown  string `json:"content_breakdown,omitempty"`
	LinkedInPost      string `json:"linkedin_post,omitempty"`
	XPost             string `json:"x_post,omitempty"`
	NewsletterContent string `json:"newsletter_content,omitempty"`
	Usage             llm.Usage
}

// Agent generates social content with a single model call.
type Agent struct {
	model    agents.Generator
	projects *project.Manager
}

// New creates a social content agent.
func New(model agents.Generator, projects *project.Manager) *Agent {
	return &Agent{model: model, projects: projects}
}

// Generate produces the promotion bundle for a blog post and records
// the social_generated milestone. A piece the model omits is left
// empty; the call fails only when every tag is missing.
func (a *Agent) Generate(ctx context.Context, projectID, blog string) (*Content, error) {
	if strings.TrimSpace(blog) == "" {
		return nil, fmt.Errorf("blog content is empty")
	}

	ctx = llm.WithAgentName(llm.WithProjectID(ctx, projectID), "social")
	text, usage, err := a.model.Generate(ctx, persona.Prefix(persona.SocialName, fmt.Sprintf(socialPrompt, clip(blog))))
	if err != nil {
		return nil, fmt.Errorf("social generation failed: %w", err)
	}

	content := &Content{Usage: usage}
	found := 0
	if v, ok := agents.ExtractTag(text, "content_breakdown"); ok {
		content.ContentBreakdown = v
		found++
	}
	if v, ok := agents.ExtractTag(text, "linkedin_post"); ok {
		content.LinkedInPost = v
		found++
	}
	if v, ok := agents.ExtractTag(text, "x_post"); ok {
		content.XPost = v
		found++
	}
	if v, ok := agents.ExtractTag(text, "newsletter_content"); ok {
		content.NewsletterContent = v
		found++
	}
	if found == 0 {
		return nil, fmt.Errorf("social generation produced no usable content")
	}

	err = a.projects.SaveMilestone(ctx, projectID, project.MilestoneSocialGenerated, map[string]any{
		"content_breakdown":  content.ContentBreakdown,
		"linkedin_post":      content.LinkedInPost,
		"x_post":             content.XPost,
		"newsletter_content": content.NewsletterContent,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to record social milestone: %w", err)
	}
	return content, nil
}

// GenerateFromMilestone loads the refined blog (falling back to the
// compiled draft) and generates social content for it.
func (a *Agent) GenerateFromMilestone(ctx context.Context, projectID string) (*Content, error) {
	blog := a.latestBlog(ctx, projectID)
	if blog == "" {
		return nil, fmt.Errorf("no blog content to promote")
	}
	return a.Generate(ctx, projectID, blog)
}

func (a *Agent) latestBlog(ctx context.Context, projectID string) string {
	if ms, err := a.projects.LoadMilestone(ctx, projectID, project.MilestoneBlogRefined); err == nil {
		if content, _ := ms.Data["refined_content"].(string); content != "" {
			return content
		}
	}
	if ms, err := a.projects.LoadMilestone(ctx, projectID, project.MilestoneDraftCompleted); err == nil {
		if content, _ := ms.Data["compiled_blog"].(string); content != "" {
			return content
		}
	}
	return ""
}

func clip(s string) string {
	if len(s) <= maxBlogChars {
		return s
	}
	return s[:maxBlogChars] + "\n... (truncated)"
}
