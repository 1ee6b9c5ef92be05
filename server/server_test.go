package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/blogforge/agents"
	"github.com/smallnest/blogforge/agents/draft"
	"github.com/smallnest/blogforge/agents/ingest"
	"github.com/smallnest/blogforge/agents/outline"
	"github.com/smallnest/blogforge/agents/refine"
	"github.com/smallnest/blogforge/agents/social"
	"github.com/smallnest/blogforge/cache"
	"github.com/smallnest/blogforge/config"
	"github.com/smallnest/blogforge/llm"
	"github.com/smallnest/blogforge/project"
	"github.com/smallnest/blogforge/rag"
	ragstore "github.com/smallnest/blogforge/rag/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// pipelineModel answers every pipeline prompt by kind.
type pipelineModel struct{}

func (pipelineModel) ModelName() string { return "gpt-4o-mini" }

func (pipelineModel) Generate(ctx context.Context, prompt string) (string, llm.Usage, error) {
	usage := llm.Usage{InputTokens: 100, OutputTokens: 50}
	switch {
	case strings.Contains(prompt, "expert technical writer simulating"):
		return "Goroutines run functions concurrently on cheap stacks.", usage, nil
	case strings.Contains(prompt, "technical content analyst"):
		return `{"main_topics": ["goroutines"], "technical_concepts": ["scheduler"], "learning_objectives": ["use goroutines"]}`, usage, nil
	case strings.Contains(prompt, "assessing the target audience"):
		return `{"level": "intermediate", "reasoning": "assumes Go basics"}`, usage, nil
	case strings.Contains(prompt, "listing prerequisites"):
		return `{"required_knowledge": ["Go syntax"]}`, usage, nil
	case strings.Contains(prompt, "planning the section structure"):
		return `{"title": "Goroutines at Work", "sections": [{"title": "Starting Goroutines", "learning_goals": ["use goroutines"], "estimated_time": "10 min"}]}`, usage, nil
	case strings.Contains(prompt, "finalizing a blog outline"):
		return `{"title": "Goroutines at Work", "difficulty": "intermediate", "prerequisites": ["Go syntax"], "sections": [{"title": "Starting Goroutines", "learning_goals": ["use goroutines"], "estimated_time": "10 min"}], "introduction": "intro", "conclusion": "outro"}`, usage, nil
	case strings.Contains(prompt, "drafting one section"):
		return "## Starting Goroutines\n\nUse the go keyword.\n\n```go\ngo work()\n```\n", usage, nil
	case strings.Contains(prompt, "Improve the flow"):
		return "## Starting Goroutines\n\nUse the go keyword to start one.\n\n```go\ngo work()\n```\n", usage, nil
	case strings.Contains(prompt, "reviewing one section"):
		return `{"completeness": 0.9, "technical_accuracy": 0.9, "clarity": 0.9, "code_quality": 0.9, "engagement": 0.9}`, usage, nil
	case strings.Contains(prompt, "writing coach"):
		return "Add an example.", usage, nil
	case strings.Contains(prompt, "revising one section"):
		return "## Starting Goroutines\n\nRevised.\n", usage, nil
	case strings.Contains(prompt, "opening section"):
		return "This post explains goroutines.", usage, nil
	case strings.Contains(prompt, "closing section"):
		return "Now go write concurrent code.", usage, nil
	case strings.Contains(prompt, "tl;dr summary"):
		return "Goroutines are cheap concurrent functions.", usage, nil
	case strings.Contains(prompt, "title options"):
		return `[{"title": "Goroutines at Work", "subtitle": "Concurrency in Go", "reasoning": "clear"}]`, usage, nil
	case strings.Contains(prompt, "developer-relations writer"):
		return "<content_breakdown>- points</content_breakdown><linkedin_post>post #golang</linkedin_post><x_post>short #golang</x_post><newsletter_content>Subject: Go\n\nbody</newsletter_content>", usage, nil
	}
	return "", llm.Usage{}, fmt.Errorf("unrecognized prompt: %.80s", prompt)
}

type testEmbedder struct{}

func (testEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vecs[i] = []float32{float32(len(text)%7 + 1), 1}
	}
	return vecs, nil
}

func (e testEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, _ := e.EmbedDocuments(ctx, []string{text})
	return vecs[0], nil
}

func newTestServer(t *testing.T) (*Server, *project.Manager) {
	t.Helper()
	store, err := project.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	mgr := project.NewManager(store)

	model := llm.NewTracked(pipelineModel{}, "pipeline",
		llm.WithRecorder(agents.CostRecorder(mgr)))
	vstore := ragstore.NewInMemoryVectorStore(testEmbedder{})
	mapper := rag.NewContentMapper(rag.NewHyDERetriever(model, vstore, 5))

	ingestAgent, err := ingest.New(vstore, mgr, ingest.Options{ChunkSize: 500, ChunkOverlap: 50})
	require.NoError(t, err)
	outlineAgent, err := outline.New(model, mgr)
	require.NoError(t, err)
	draftAgent, err := draft.New(model, mapper, mgr, draft.Options{})
	require.NoError(t, err)
	refineAgent, err := refine.New(model, mgr)
	require.NoError(t, err)

	jobs := cache.NewMemoryCache()
	t.Cleanup(func() { jobs.Close() })

	srv := New(config.Default().Server, mgr, jobs, Agents{
		Ingest:  ingestAgent,
		Outline: outlineAgent,
		Draft:   draftAgent,
		Refine:  refineAgent,
		Social:  social.New(model, mgr),
	}, nil)
	return srv, mgr
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func createTestProject(t *testing.T, router *gin.Engine, name string) string {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v2/projects", map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["id"].(string)
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)
	w := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_ProjectCRUD(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	id := createTestProject(t, router, "my-blog")

	w := doJSON(t, router, http.MethodGet, "/api/v2/projects/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "my-blog", decode(t, w)["name"])

	w = doJSON(t, router, http.MethodGet, "/api/v2/projects/by-name/my-blog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id, decode(t, w)["id"])

	w = doJSON(t, router, http.MethodGet, "/api/v2/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["count"])

	w = doJSON(t, router, http.MethodDelete, "/api/v2/projects/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v2/projects/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode(t, w), "error")
}

func TestServer_CreateProjectValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	w := doJSON(t, router, http.MethodPost, "/api/v2/projects", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	createTestProject(t, router, "dup")
	w = doJSON(t, router, http.MethodPost, "/api/v2/projects", map[string]any{"name": "dup"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServer_SectionsAndCosts(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	id := createTestProject(t, router, "sections")

	w := doJSON(t, router, http.MethodPut, "/api/v2/projects/"+id+"/sections", []map[string]any{
		{"section_index": 0, "title": "Intro", "status": "completed", "content": "body"},
		{"section_index": 1, "title": "Middle", "status": "pending"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/v2/projects/"+id+"/sections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["sections"], 2)
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 1, stats["completed"])

	w = doJSON(t, router, http.MethodPatch, "/api/v2/projects/"+id+"/sections/1/status",
		map[string]any{"status": "completed", "cost_delta": 0.02})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPatch, "/api/v2/projects/"+id+"/sections/9/status",
		map[string]any{"status": "completed"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/costs", map[string]any{
		"agent_name": "draft", "operation": "generate", "model": "gpt-4o-mini",
		"input_tokens": 100, "output_tokens": 50, "cost": 0.01,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/v2/projects/"+id+"/costs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 0.01, decode(t, w)["total_cost"], 1e-9)

	w = doJSON(t, router, http.MethodGet, "/api/v2/projects/"+id+"/costs/analysis", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total_operations"])
}

func uploadFiles(t *testing.T, router *gin.Engine, projectID string, files map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v2/projects/"+projectID+"/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	return decode(t, w)["job_id"].(string)
}

const testMarkdown = `# Goroutines

Goroutines are lightweight threads managed by the Go runtime.

` + "```go\ngo work()\n```" + `
`

func TestServer_FullPipeline(t *testing.T) {
	srv, mgr := newTestServer(t)
	router := srv.Router()
	id := createTestProject(t, router, "pipeline")

	jobID := uploadFiles(t, router, id, map[string]string{"notes.md": testMarkdown})

	w := doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/process",
		map[string]any{"job_id": jobID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode(t, w)["content_hash"])

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/outline",
		map[string]any{"job_id": jobID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	outlineBody := decode(t, w)
	assert.Equal(t, false, outlineBody["cached"])

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/draft", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["compiled_blog"], "Goroutines at Work")

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/compile", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/refine", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["refined_blog"], "# Goroutines at Work")

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/social", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["x_post"], "#golang")

	w = doJSON(t, router, http.MethodGet, "/api/v2/projects/"+id+"/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	progress := decode(t, w)
	assert.EqualValues(t, 100, progress["percentage"], w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/v2/projects/"+id+"/export?format=markdown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")

	milestones, err := mgr.ListMilestones(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, milestones, 5)

	// every model call the run made is attributed to this project
	w = doJSON(t, router, http.MethodGet, "/api/v2/projects/"+id+"/costs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode(t, w)
	assert.Greater(t, summary["total_cost"].(float64), 0.0)
	byAgent := summary["cost_by_agent"].(map[string]any)
	for _, agent := range []string{"outline", "draft", "refinement", "social"} {
		assert.Contains(t, byAgent, agent)
	}
}

func TestServer_OutlineReviewFlow(t *testing.T) {
	srv, mgr := newTestServer(t)
	router := srv.Router()
	id := createTestProject(t, router, "review")

	jobID := uploadFiles(t, router, id, map[string]string{"notes.md": testMarkdown})
	w := doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/process",
		map[string]any{"job_id": jobID})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/outline",
		map[string]any{"job_id": jobID, "review": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["requires_approval"])
	proposed := body["outline"].(map[string]any)

	// nothing recorded until the reviewer approves
	_, err := mgr.LoadMilestone(context.Background(), id, project.MilestoneOutlineGenerated)
	assert.ErrorIs(t, err, project.ErrNotFound)

	// drafting before approval is rejected
	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/draft", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	proposed["title"] = "Goroutines, Reviewed"
	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/outline/approve",
		map[string]any{"job_id": jobID, "outline": proposed})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	ms, err := mgr.LoadMilestone(context.Background(), id, project.MilestoneOutlineGenerated)
	require.NoError(t, err)
	assert.Equal(t, "Goroutines, Reviewed", ms.Data["title"])

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/draft", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, decode(t, w)["compiled_blog"], "Goroutines, Reviewed")

	// an outline with no sections cannot be approved
	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/outline/approve",
		map[string]any{"job_id": jobID, "outline": map[string]any{"title": "empty"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_DraftSectionWithFeedback(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	id := createTestProject(t, router, "feedback")

	jobID := uploadFiles(t, router, id, map[string]string{"notes.md": testMarkdown})
	w := doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/process", map[string]any{"job_id": jobID})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/outline", map[string]any{"job_id": jobID})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/draft", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/draft/section",
		map[string]any{"index": 0})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/draft/section/feedback",
		map[string]any{"index": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code, "feedback is mandatory on the feedback route")

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/draft/section/feedback",
		map[string]any{"index": 0, "feedback": "shorter please"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestServer_PipelineOrderingErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	id := createTestProject(t, router, "ordering")

	w := doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/process",
		map[string]any{"job_id": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/draft", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "no outline")

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/refine", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Resume(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	id := createTestProject(t, router, "resume")

	w := doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.NotEmpty(t, body["job_id"])
	state := body["state"].(map[string]any)
	assert.Equal(t, "upload_files", state["next_step"])
}

func TestServer_MilestoneRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	id := createTestProject(t, router, "milestones")

	w := doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/milestones",
		map[string]any{"type": "files_uploaded", "data": map[string]any{"files": []string{"a.md"}}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/v2/projects/"+id+"/milestones/files_uploaded", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "files_uploaded", decode(t, w)["type"])

	w = doJSON(t, router, http.MethodGet, "/api/v2/projects/"+id+"/milestones/outline_generated", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// an arbitrary type must not become the project's current milestone
	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/milestones",
		map[string]any{"type": "totally_done", "data": map[string]any{"x": 1}})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/v2/projects/"+id+"/resume", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode(t, w)["state"].(map[string]any)
	assert.Equal(t, "generate_outline", state["next_step"])
}

func TestServer_ExportFormatValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	id := createTestProject(t, router, "export")

	w := doJSON(t, router, http.MethodGet, "/api/v2/projects/"+id+"/export?format=docx", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
