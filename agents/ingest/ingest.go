// Package ingest parses uploaded source files, chunks them and indexes
// the chunks in the vector store.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/smallnest/blogforge/graph"
	"github.com/smallnest/blogforge/parser"
	"github.com/smallnest/blogforge/project"
	"github.com/smallnest/blogforge/rag"
	"github.com/smallnest/blogforge/rag/splitter"
)

// File is one uploaded source file.
type File struct {
	Name    string
	Content []byte
}

// State flows through the ingestion graph.
type State struct {
	ProjectID string
	Files     []File

	Parsed      map[string]*parser.ContentStructure
	Documents   []rag.Document
	ContentHash string
	Added       int
	Skipped     int
}

// Agent runs the ingestion pipeline: validate → parse → chunk →
// prepare_metadata → store.
type Agent struct {
	store    rag.VectorStore
	projects *project.Manager
	splitter *splitter.RecursiveSplitter
	runnable *graph.Runnable[State]
}

// Options configures the ingest agent.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
}

// New creates an ingest agent over the vector store and project manager.
func New(store rag.VectorStore, projects *project.Manager, opts Options) (*Agent, error) {
	var splitterOpts []splitter.Option
	if opts.ChunkSize > 0 {
		splitterOpts = append(splitterOpts, splitter.WithChunkSize(opts.ChunkSize))
	}
	if opts.ChunkOverlap > 0 {
		splitterOpts = append(splitterOpts, splitter.WithChunkOverlap(opts.ChunkOverlap))
	}

	a := &Agent{
		store:    store,
		projects: projects,
		splitter: splitter.NewRecursiveSplitter(splitterOpts...),
	}

	g := graph.NewStateGraph[State]()
	g.AddNode("validate", "validate uploaded files", a.validate)
	g.AddNode("parse", "parse files into sections", a.parse)
	g.AddNode("chunk", "split prose into chunks", a.chunk)
	g.AddNode("prepare_metadata", "attach project metadata", a.prepareMetadata)
	g.AddNode("store", "index chunks and record milestone", a.storeContent)

	g.SetEntryPoint("validate")
	g.AddEdge("validate", "parse")
	g.AddEdge("parse", "chunk")
	g.AddEdge("chunk", "prepare_metadata")
	g.AddEdge("prepare_metadata", "store")
	g.AddEdge("store", graph.END)

	runnable, err := g.Compile()
	if err != nil {
		return nil, err
	}
	a.runnable = runnable
	return a, nil
}

// Ingest runs the pipeline for a project's uploaded files.
func (a *Agent) Ingest(ctx context.Context, projectID string, files []File) (*State, error) {
	out, err := a.runnable.Invoke(ctx, State{ProjectID: projectID, Files: files})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Agent) validate(_ context.Context, s State) (State, error) {
	if s.ProjectID == "" {
		return s, fmt.Errorf("project id is required")
	}
	if len(s.Files) == 0 {
		return s, fmt.Errorf("no files to ingest")
	}
	for _, f := range s.Files {
		if len(f.Content) == 0 {
			return s, fmt.Errorf("file %q is empty", f.Name)
		}
		if _, err := parser.ForFile(f.Name); err != nil {
			return s, err
		}
	}

	hash := sha256.New()
	for _, f := range s.Files {
		hash.Write(f.Content)
	}
	s.ContentHash = hex.EncodeToString(hash.Sum(nil))
	return s, nil
}

func (a *Agent) parse(_ context.Context, s State) (State, error) {
	s.Parsed = make(map[string]*parser.ContentStructure, len(s.Files))
	for _, f := range s.Files {
		p, err := parser.ForFile(f.Name)
		if err != nil {
			return s, err
		}
		structure, err := p.Parse(f.Content)
		if err != nil {
			return s, fmt.Errorf("failed to parse %q: %w", f.Name, err)
		}
		s.Parsed[f.Name] = structure
	}
	return s, nil
}

// chunk splits prose through the recursive splitter; code sections stay
// whole so examples survive retrieval intact.
func (a *Agent) chunk(_ context.Context, s State) (State, error) {
	for name, structure := range s.Parsed {
		base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))

		var proseDocs []rag.Document
		for i, section := range structure.Sections {
			if section.Kind == parser.KindCode {
				s.Documents = append(s.Documents, rag.Document{
					ID:      fmt.Sprintf("%s_code_%d", base, i),
					Content: section.Content,
					Metadata: map[string]any{
						"content_type": "code",
						"language":     section.Language,
						"source":       name,
					},
				})
				continue
			}
			proseDocs = append(proseDocs, rag.Document{
				ID:      fmt.Sprintf("%s_text_%d", base, i),
				Content: section.Content,
				Metadata: map[string]any{
					"content_type": "markdown",
					"source":       name,
				},
			})
		}
		s.Documents = append(s.Documents, a.splitter.SplitDocuments(proseDocs)...)
	}
	return s, nil
}

func (a *Agent) prepareMetadata(_ context.Context, s State) (State, error) {
	for i := range s.Documents {
		s.Documents[i].Metadata["project_id"] = s.ProjectID
		s.Documents[i].Metadata["content_hash"] = s.ContentHash
	}
	return s, nil
}

func (a *Agent) storeContent(ctx context.Context, s State) (State, error) {
	added, err := a.store.Add(ctx, s.Documents)
	if err != nil {
		return s, fmt.Errorf("failed to index documents: %w", err)
	}
	s.Added = added
	s.Skipped = len(s.Documents) - added

	fileNames := make([]string, len(s.Files))
	for i, f := range s.Files {
		fileNames[i] = f.Name
	}

	err = a.projects.SaveMilestone(ctx, s.ProjectID, project.MilestoneFilesUploaded, map[string]any{
		"files":        fileNames,
		"content_hash": s.ContentHash,
		"chunks_added": s.Added,
		"chunks_total": len(s.Documents),
	}, nil)
	if err != nil {
		return s, fmt.Errorf("failed to record milestone: %w", err)
	}
	return s, nil
}
