// Package project implements the relational project store and the manager
// that tracks a blog project through the generation pipeline: milestones,
// sections, cost tracking, progress, resume and export.
package project

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a project, milestone or section does not exist.
var ErrNotFound = errors.New("not found")

// Status is the lifecycle status of a project.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusDeleted  Status = "deleted"
)

// MilestoneType marks completion of a pipeline stage.
type MilestoneType string

const (
	MilestoneFilesUploaded    MilestoneType = "files_uploaded"
	MilestoneOutlineGenerated MilestoneType = "outline_generated"
	MilestoneDraftCompleted   MilestoneType = "draft_completed"
	MilestoneBlogRefined      MilestoneType = "blog_refined"
	MilestoneSocialGenerated  MilestoneType = "social_generated"
)

// AllMilestoneTypes lists milestone types in pipeline order.
var AllMilestoneTypes = []MilestoneType{
	MilestoneFilesUploaded,
	MilestoneOutlineGenerated,
	MilestoneDraftCompleted,
	MilestoneBlogRefined,
	MilestoneSocialGenerated,
}

// Valid reports whether t is one of the known pipeline milestones.
func (t MilestoneType) Valid() bool {
	for _, known := range AllMilestoneTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SectionStatus is the generation status of a single blog section.
type SectionStatus string

const (
	SectionPending    SectionStatus = "pending"
	SectionGenerating SectionStatus = "generating"
	SectionCompleted  SectionStatus = "completed"
	SectionFailed     SectionStatus = "failed"
)

// Project is a blog generation project.
type Project struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Status           Status         `json:"status"`
	CurrentMilestone MilestoneType  `json:"current_milestone,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	ArchivedAt       *time.Time     `json:"archived_at,omitempty"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
}

// Milestone is a persisted checkpoint marking completion of a pipeline stage.
// A project has at most one milestone per type; re-saving replaces it.
type Milestone struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Type      MilestoneType  `json:"type"`
	Data      map[string]any `json:"data"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Section is one section of a blog draft, unique per (project, index).
type Section struct {
	ID           string        `json:"id,omitempty"`
	ProjectID    string        `json:"project_id,omitempty"`
	SectionIndex int           `json:"section_index"`
	Title        string        `json:"title"`
	Content      string        `json:"content,omitempty"`
	Status       SectionStatus `json:"status"`
	CostDelta    float64       `json:"cost_delta,omitempty"`
	InputTokens  int           `json:"input_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at,omitempty"`
}

// CostEntry records the cost of a single LLM operation.
type CostEntry struct {
	ID           string         `json:"id,omitempty"`
	ProjectID    string         `json:"project_id,omitempty"`
	AgentName    string         `json:"agent_name"`
	Operation    string         `json:"operation"`
	Model        string         `json:"model"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	Cost         float64        `json:"cost"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// CompletedBlog is the final assembled blog for a project. Saving again
// increments the version.
type CompletedBlog struct {
	ID             string         `json:"id,omitempty"`
	ProjectID      string         `json:"project_id,omitempty"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	WordCount      int            `json:"word_count"`
	TotalCost      float64        `json:"total_cost"`
	GenerationTime float64        `json:"generation_time"`
	Version        int            `json:"version"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Store is the persistence interface for projects. SQLite and PostgreSQL
// implementations are provided.
type Store interface {
	CreateProject(ctx context.Context, name string, metadata map[string]any) (*Project, error)
	GetProject(ctx context.Context, id string) (*Project, error)
	GetProjectByName(ctx context.Context, name string) (*Project, error)
	// ListProjects filters by status; an empty status returns all projects.
	ListProjects(ctx context.Context, status Status) ([]*Project, error)
	ArchiveProject(ctx context.Context, id string) error
	// DeleteProject soft-deletes by default; permanent removes the row and
	// all dependent rows via cascade.
	DeleteProject(ctx context.Context, id string, permanent bool) error
	UpdateMetadata(ctx context.Context, id string, metadata map[string]any) error

	// SaveMilestone upserts the milestone and advances the project's
	// current milestone.
	SaveMilestone(ctx context.Context, projectID string, typ MilestoneType, data, metadata map[string]any) error
	LoadMilestone(ctx context.Context, projectID string, typ MilestoneType) (*Milestone, error)
	ListMilestones(ctx context.Context, projectID string) ([]*Milestone, error)

	// SaveSections atomically replaces all sections of the project.
	SaveSections(ctx context.Context, projectID string, sections []*Section) error
	LoadSections(ctx context.Context, projectID string) ([]*Section, error)
	UpdateSectionStatus(ctx context.Context, projectID string, sectionIndex int, status SectionStatus, costDelta float64) error

	TrackCost(ctx context.Context, projectID string, entry *CostEntry) error
	ListCosts(ctx context.Context, projectID string) ([]*CostEntry, error)

	SaveCompletedBlog(ctx context.Context, projectID string, blog *CompletedBlog) error
	GetCompletedBlog(ctx context.Context, projectID string) (*CompletedBlog, error)

	Close() error
}

// CostSummary aggregates the cost entries of a project.
type CostSummary struct {
	TotalCost         float64            `json:"total_cost"`
	TotalInputTokens  int                `json:"total_input_tokens"`
	TotalOutputTokens int                `json:"total_output_tokens"`
	CostByAgent       map[string]float64 `json:"cost_by_agent"`
	CostByModel       map[string]float64 `json:"cost_by_model"`
}

// TimelinePoint is one operation in a cost analysis timeline.
type TimelinePoint struct {
	AgentName      string    `json:"agent_name"`
	Operation      string    `json:"operation"`
	Cost           float64   `json:"cost"`
	CumulativeCost float64   `json:"cumulative_cost"`
	Timestamp      time.Time `json:"timestamp"`
}

// CostAnalysis is a detailed per-operation cost breakdown over time.
type CostAnalysis struct {
	TotalOperations int             `json:"total_operations"`
	Timeline        []TimelinePoint `json:"timeline"`
}

// SectionStats summarizes section completion for a project.
type SectionStats struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	Generating int `json:"generating"`
	Pending    int `json:"pending"`
	Failed     int `json:"failed"`
}

// Progress describes how far a project is through the pipeline. Milestones
// account for half of the percentage, section completion for the other half.
type Progress struct {
	Percentage int             `json:"percentage"`
	Milestones []MilestoneType `json:"milestones"`
	Sections   SectionStats    `json:"sections"`
}

// ResumeState is the full state restoration handed to a client resuming work.
type ResumeState struct {
	Project     *Project     `json:"project"`
	Milestones  []*Milestone `json:"milestones"`
	Sections    []*Section   `json:"sections"`
	CostSummary *CostSummary `json:"cost_summary"`
	Progress    *Progress    `json:"progress"`
	NextStep    string       `json:"next_step"`
}
