// BlogForge - an AI blog generation pipeline backend.
//
// BlogForge turns uploaded source material (markdown, notebooks, code,
// HTML) into a published technical blog post through a staged pipeline:
// ingest, outline, draft, refine, social. Each stage is a stateful
// workflow graph whose progress is persisted as project milestones, so
// interrupted work can always be resumed.
//
// # Quick Start
//
// Run the API server:
//
//	go run ./cmd/blogforge -config config.yaml
//
// Then drive the pipeline over HTTP:
//
//	POST /api/v2/projects                      create a project
//	POST /api/v2/projects/:id/upload           upload source files
//	POST /api/v2/projects/:id/process          parse, chunk and index them
//	POST /api/v2/projects/:id/outline          generate the outline
//	POST /api/v2/projects/:id/draft            draft every section
//	POST /api/v2/projects/:id/refine           polish into the final post
//	POST /api/v2/projects/:id/social           derive promotion content
//	GET  /api/v2/projects/:id/export?format=markdown
//
// # Package Structure
//
// graph/
// The workflow engine: typed state graphs with conditional edges,
// checkpointing, interrupts and resume.
//
//	g := graph.NewStateGraph[State]()
//	g.AddNode("parse", "parse the upload", parseNode)
//	g.SetEntryPoint("parse")
//	g.AddEdge("parse", graph.END)
//	runnable, _ := g.Compile()
//	out, _ := runnable.Invoke(ctx, State{})
//
// store/
// Checkpoint persistence for graph runs: in-memory, SQLite and
// PostgreSQL backends.
//
// project/
// The relational project store (SQLite or PostgreSQL) and the manager
// tracking milestones, sections, costs, progress, resume and export.
//
// rag/
// The retrieval layer: recursive text splitting, an in-memory vector
// index with content-hash dedup, HyDE retrieval and per-section content
// mapping.
//
// parser/
// Source file parsers for markdown, Jupyter notebooks, Python, Go and
// HTML.
//
// llm/
// Model access for OpenAI-compatible providers and langchaingo
// backends, with usage tracking and cost accounting.
//
// agents/
// The pipeline agents built on graph/: ingest, outline, draft (with its
// quality loop), refine and social.
//
// server/
// The gin HTTP API in front of it all.
//
// # Configuration
//
// Configuration comes from a YAML file with environment overrides;
// see the config package. The most common variables:
//
//   - OPENAI_API_KEY: API key for model and embedding access
//   - LLM_PROVIDER / LLM_MODEL: provider and model selection
//   - BLOGFORGE_STORE_DRIVER / BLOGFORGE_STORE_DSN: sqlite or postgres
//   - REDIS_ADDR: enable the Redis job cache
//
// # License
//
// This project is licensed under the MIT License - see the LICENSE file for details.
package blogforge // import "github.com/smallnest/blogforge"
