package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/smallnest/blogforge/project"
)

type createProjectRequest struct {
	Name     string         `json:"name" binding:"required"`
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) createProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("name is required"))
		return
	}
	p, err := s.projects.CreateProject(c.Request.Context(), req.Name, req.Metadata)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) listProjects(c *gin.Context) {
	status := project.Status(c.Query("status"))
	projects, err := s.projects.ListProjects(c.Request.Context(), status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects, "count": len(projects)})
}

func (s *Server) getProject(c *gin.Context) {
	p, err := s.projects.GetProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) getProjectByName(c *gin.Context) {
	p, err := s.projects.GetProjectByName(c.Request.Context(), c.Param("name"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deleteProject(c *gin.Context) {
	permanent := c.Query("permanent") == "true"
	if err := s.projects.DeleteProject(c.Request.Context(), c.Param("id"), permanent); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true, "permanent": permanent})
}

func (s *Server) archiveProject(c *gin.Context) {
	if err := s.projects.ArchiveProject(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": true})
}

func (s *Server) updateMetadata(c *gin.Context) {
	var metadata map[string]any
	if err := c.ShouldBindJSON(&metadata); err != nil {
		s.fail(c, badRequest("metadata must be a JSON object"))
		return
	}
	if err := s.projects.UpdateMetadata(c.Request.Context(), c.Param("id"), metadata); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (s *Server) saveSections(c *gin.Context) {
	var sections []*project.Section
	if err := c.ShouldBindJSON(&sections); err != nil {
		s.fail(c, badRequest("sections must be a JSON array"))
		return
	}
	if err := s.projects.SaveSections(c.Request.Context(), c.Param("id"), sections); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": len(sections)})
}

func (s *Server) listSections(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	sections, err := s.projects.LoadSections(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	stats, err := s.projects.GetSectionStats(ctx, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sections": sections, "stats": stats})
}

type sectionStatusRequest struct {
	Status    project.SectionStatus `json:"status" binding:"required"`
	CostDelta float64               `json:"cost_delta"`
}

func (s *Server) updateSectionStatus(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		s.fail(c, badRequest("section index must be an integer"))
		return
	}
	var req sectionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("status is required"))
		return
	}
	err = s.projects.UpdateSectionStatus(c.Request.Context(), c.Param("id"), index, req.Status, req.CostDelta)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": true})
}

func (s *Server) trackCost(c *gin.Context) {
	var entry project.CostEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		s.fail(c, badRequest("invalid cost entry"))
		return
	}
	if entry.AgentName == "" || entry.Operation == "" {
		s.fail(c, badRequest("agent_name and operation are required"))
		return
	}
	if err := s.projects.TrackCost(c.Request.Context(), c.Param("id"), &entry); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tracked": true})
}

func (s *Server) costSummary(c *gin.Context) {
	summary, err := s.projects.CostSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) costAnalysis(c *gin.Context) {
	analysis, err := s.projects.CostAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (s *Server) progress(c *gin.Context) {
	p, err := s.projects.GetProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type milestoneRequest struct {
	Type     project.MilestoneType `json:"type" binding:"required"`
	Data     map[string]any        `json:"data" binding:"required"`
	Metadata map[string]any        `json:"metadata"`
}

func (s *Server) saveMilestone(c *gin.Context) {
	var req milestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, badRequest("type and data are required"))
		return
	}
	if !req.Type.Valid() {
		s.fail(c, badRequest(fmt.Sprintf("unknown milestone type %q", req.Type)))
		return
	}
	err := s.projects.SaveMilestone(c.Request.Context(), c.Param("id"), req.Type, req.Data, req.Metadata)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"saved": true})
}

func (s *Server) listMilestones(c *gin.Context) {
	milestones, err := s.projects.ListMilestones(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"milestones": milestones})
}

func (s *Server) getMilestone(c *gin.Context) {
	typ := project.MilestoneType(c.Param("type"))
	ms, err := s.projects.LoadMilestone(c.Request.Context(), c.Param("id"), typ)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ms)
}

func (s *Server) export(c *gin.Context) {
	format := project.ExportFormat(c.DefaultQuery("format", "json"))
	switch format {
	case project.ExportJSON, project.ExportMarkdown, project.ExportHTML:
	default:
		s.fail(c, badRequest("format must be json, markdown or html"))
		return
	}
	data, contentType, err := s.projects.Export(c.Request.Context(), c.Param("id"), format)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}
