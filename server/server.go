// Package server exposes the blog generation pipeline over an HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/smallnest/blogforge/agents/draft"
	"github.com/smallnest/blogforge/agents/ingest"
	"github.com/smallnest/blogforge/agents/outline"
	"github.com/smallnest/blogforge/agents/refine"
	"github.com/smallnest/blogforge/agents/social"
	"github.com/smallnest/blogforge/cache"
	"github.com/smallnest/blogforge/config"
	"github.com/smallnest/blogforge/log"
	"github.com/smallnest/blogforge/project"
)

// jobTTL bounds how long an upload/process job survives between calls.
const jobTTL = 2 * time.Hour

// Agents bundles the pipeline agents the server drives.
type Agents struct {
	Ingest  *ingest.Agent
	Outline *outline.Agent
	Draft   *draft.Agent
	Refine  *refine.Agent
	Social  *social.Agent
}

// Server is the HTTP API server.
type Server struct {
	cfg      config.ServerConfig
	projects *project.Manager
	jobs     cache.Cache
	agents   Agents
	logger   log.Logger

	httpServer *http.Server
}

// New creates a server around the project manager, the job cache and
// the pipeline agents.
func New(cfg config.ServerConfig, projects *project.Manager, jobs cache.Cache, agents Agents, logger log.Logger) *Server {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Server{
		cfg:      cfg,
		projects: projects,
		jobs:     jobs,
		agents:   agents,
		logger:   logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	if s.cfg.MaxUploadSizeMB > 0 {
		r.MaxMultipartMemory = s.cfg.MaxUploadSizeMB << 20
	}

	r.GET("/health", s.health)

	api := r.Group("/api/v2")
	{
		api.POST("/projects", s.createProject)
		api.GET("/projects", s.listProjects)
		api.GET("/projects/by-name/:name", s.getProjectByName)
		api.GET("/projects/:id", s.getProject)
		api.DELETE("/projects/:id", s.deleteProject)
		api.POST("/projects/:id/archive", s.archiveProject)
		api.PATCH("/projects/:id/metadata", s.updateMetadata)

		api.PUT("/projects/:id/sections", s.saveSections)
		api.GET("/projects/:id/sections", s.listSections)
		api.PATCH("/projects/:id/sections/:index/status", s.updateSectionStatus)

		api.POST("/projects/:id/costs", s.trackCost)
		api.GET("/projects/:id/costs", s.costSummary)
		api.GET("/projects/:id/costs/analysis", s.costAnalysis)

		api.GET("/projects/:id/progress", s.progress)
		api.POST("/projects/:id/resume", s.resume)

		api.POST("/projects/:id/milestones", s.saveMilestone)
		api.GET("/projects/:id/milestones", s.listMilestones)
		api.GET("/projects/:id/milestones/:type", s.getMilestone)

		api.GET("/projects/:id/export", s.export)

		api.POST("/projects/:id/upload", s.upload)
		api.POST("/projects/:id/process", s.process)
		api.POST("/projects/:id/outline", s.generateOutline)
		api.POST("/projects/:id/outline/approve", s.approveOutline)
		api.POST("/projects/:id/draft", s.generateDraft)
		api.POST("/projects/:id/draft/section", s.draftSection)
		api.POST("/projects/:id/draft/section/feedback", s.draftSectionFeedback)
		api.POST("/projects/:id/compile", s.compile)
		api.POST("/projects/:id/refine", s.refineBlog)
		api.POST("/projects/:id/social", s.generateSocial)
	}

	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening on %s", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail maps an error to a status code and the structured error payload.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, project.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return &requestError{msg: msg}
}

type requestError struct{ msg string }

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Is(target error) bool { return target == errBadRequest }
