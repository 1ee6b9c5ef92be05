package server

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smallnest/blogforge/agents/draft"
	"github.com/smallnest/blogforge/agents/ingest"
	"github.com/smallnest/blogforge/agents/outline"
	"github.com/smallnest/blogforge/parser"
	"github.com/smallnest/blogforge/project"
)

// upload accepts the project's source files as multipart form data and
// parks them in the job cache for the process step.
func (s *Server) upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		s.fail(c, badRequest("multipart form required"))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		s.fail(c, badRequest("no files uploaded"))
		return
	}

	job := map[string]any{"project_id": c.Param("id"), "stage": "uploaded"}
	names := make([]string, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			s.fail(c, fmt.Errorf("failed to open %q: %w", h.Filename, err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			s.fail(c, fmt.Errorf("failed to read %q: %w", h.Filename, err))
			return
		}
		job["file:"+h.Filename] = string(data)
		names = append(names, h.Filename)
	}

	jobID := uuid.NewString()
	if err := s.jobs.Set(c.Request.Context(), jobID, job, jobTTL); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "files": names})
}

type jobRequest struct {
	JobID string `json:"job_id" binding:"required"`
}

// process ingests the uploaded files into the vector index and keeps
// the parsed content on the job for outline generation.
func (s *Server) process(c *gin.Context) {
	var req jobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("job_id is required"))
		return
	}
	ctx := c.Request.Context()

	job, err := s.jobs.Get(ctx, req.JobID)
	if err != nil {
		s.fail(c, badRequest("unknown or expired job"))
		return
	}

	var files []ingest.File
	for key, value := range job {
		name, ok := strings.CutPrefix(key, "file:")
		if !ok {
			continue
		}
		content, _ := value.(string)
		files = append(files, ingest.File{Name: name, Content: []byte(content)})
	}
	if len(files) == 0 {
		s.fail(c, badRequest("job has no files"))
		return
	}

	out, err := s.agents.Ingest.Ingest(ctx, c.Param("id"), files)
	if err != nil {
		s.fail(c, err)
		return
	}

	main, code := splitParsedContent(out.Parsed)
	err = s.jobs.Update(ctx, req.JobID, map[string]any{
		"stage":        "processed",
		"content_hash": out.ContentHash,
		"main_content": main,
		"code_content": code,
	})
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":       req.JobID,
		"content_hash": out.ContentHash,
		"chunks_added": out.Added,
		"skipped":      out.Skipped,
	})
}

// splitParsedContent flattens parsed files into prose and code views
// for the outline prompts.
func splitParsedContent(parsed map[string]*parser.ContentStructure) (string, string) {
	var main, code []string
	for _, structure := range parsed {
		if m := structure.MainContent(); m != "" {
			main = append(main, m)
		}
		code = append(code, structure.CodeSegments()...)
	}
	return strings.Join(main, "\n\n"), strings.Join(code, "\n\n")
}

type outlineRequest struct {
	JobID string `json:"job_id"`
	// Review pauses the pipeline after generation so a human can edit
	// the outline before it is approved.
	Review bool `json:"review"`
}

func (s *Server) generateOutline(c *gin.Context) {
	var req outlineRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.JobID == "" {
		s.fail(c, badRequest("job_id is required"))
		return
	}
	ctx := c.Request.Context()

	job, err := s.jobs.Get(ctx, req.JobID)
	if err != nil {
		s.fail(c, badRequest("unknown or expired job"))
		return
	}
	main, _ := job["main_content"].(string)
	code, _ := job["code_content"].(string)
	hash, _ := job["content_hash"].(string)
	if main == "" && code == "" {
		s.fail(c, badRequest("job has no processed content, call process first"))
		return
	}

	if req.Review {
		proposed, err := s.agents.Outline.Propose(ctx, c.Param("id"), hash, main, code)
		if err != nil {
			s.fail(c, err)
			return
		}
		if err := s.jobs.Update(ctx, req.JobID, map[string]any{"stage": "outline_proposed"}); err != nil {
			s.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"outline": proposed, "requires_approval": true})
		return
	}

	result, cached, err := s.agents.Outline.Generate(ctx, c.Param("id"), hash, main, code)
	if err != nil {
		s.fail(c, err)
		return
	}
	if err := s.jobs.Update(ctx, req.JobID, map[string]any{"stage": "outlined"}); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outline": result, "cached": cached})
}

type approveOutlineRequest struct {
	JobID   string          `json:"job_id"`
	Outline outline.Outline `json:"outline"`
}

func (s *Server) approveOutline(c *gin.Context) {
	var req approveOutlineRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.JobID == "" {
		s.fail(c, badRequest("job_id and outline are required"))
		return
	}
	if len(req.Outline.Sections) == 0 {
		s.fail(c, badRequest("approved outline has no sections"))
		return
	}
	ctx := c.Request.Context()

	job, err := s.jobs.Get(ctx, req.JobID)
	if err != nil {
		s.fail(c, badRequest("unknown or expired job"))
		return
	}
	hash, _ := job["content_hash"].(string)

	if err := s.agents.Outline.Approve(ctx, c.Param("id"), hash, &req.Outline); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.jobs.Update(ctx, req.JobID, map[string]any{"stage": "outlined"}); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"approved": true, "outline": req.Outline})
}

// draftPlan loads the outline milestone and turns it into a draft plan.
func (s *Server) draftPlan(c *gin.Context) (draft.DraftPlan, bool) {
	ms, err := s.projects.LoadMilestone(c.Request.Context(), c.Param("id"), project.MilestoneOutlineGenerated)
	if err != nil {
		s.fail(c, badRequest("project has no outline, generate one first"))
		return draft.DraftPlan{}, false
	}
	plan, err := draft.PlanFromMilestone(ms.Data)
	if err != nil {
		s.fail(c, err)
		return draft.DraftPlan{}, false
	}
	return plan, true
}

func (s *Server) generateDraft(c *gin.Context) {
	plan, ok := s.draftPlan(c)
	if !ok {
		return
	}
	result, err := s.agents.Draft.GenerateDraft(c.Request.Context(), c.Param("id"), plan)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sections":      result.Sections,
		"compiled_blog": result.CompiledBlog,
		"total_cost":    result.TotalCost,
	})
}

type draftSectionRequest struct {
	Index    *int   `json:"index" binding:"required"`
	Feedback string `json:"feedback"`
}

func (s *Server) draftSection(c *gin.Context) {
	s.regenerateSection(c, false)
}

func (s *Server) draftSectionFeedback(c *gin.Context) {
	s.regenerateSection(c, true)
}

func (s *Server) regenerateSection(c *gin.Context, requireFeedback bool) {
	var req draftSectionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Index == nil {
		s.fail(c, badRequest("index is required"))
		return
	}
	if requireFeedback && strings.TrimSpace(req.Feedback) == "" {
		s.fail(c, badRequest("feedback is required"))
		return
	}

	plan, ok := s.draftPlan(c)
	if !ok {
		return
	}
	row, err := s.agents.Draft.RegenerateSection(c.Request.Context(), c.Param("id"), plan, *req.Index, req.Feedback)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"section": row})
}

func (s *Server) compile(c *gin.Context) {
	plan, ok := s.draftPlan(c)
	if !ok {
		return
	}
	compiled, err := s.agents.Draft.Compile(c.Request.Context(), c.Param("id"), plan.BlogTitle)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"compiled_blog": compiled})
}

func (s *Server) refineBlog(c *gin.Context) {
	result, err := s.agents.Refine.RefineFromMilestone(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"refined_blog":  result.RefinedDraft,
		"summary":       result.Summary,
		"title_options": result.TitleOptions,
	})
}

func (s *Server) generateSocial(c *gin.Context) {
	content, err := s.agents.Social.GenerateFromMilestone(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, content)
}

// resume restores the project state and hands back a fresh job handle
// pointing at the next pipeline step.
func (s *Server) resume(c *gin.Context) {
	ctx := c.Request.Context()
	state, err := s.projects.Resume(ctx, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}

	jobID := uuid.NewString()
	err = s.jobs.Set(ctx, jobID, map[string]any{
		"project_id": c.Param("id"),
		"stage":      "resumed",
		"next_step":  state.NextStep,
	}, jobTTL)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": state, "job_id": jobID})
}
