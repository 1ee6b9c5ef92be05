package store

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/blogforge/rag"
)

// hashEmbedder produces deterministic vectors: one dimension per tracked
// keyword, so similarity is predictable in tests.
type hashEmbedder struct {
	keywords []string
}

func (e *hashEmbedder) embed(text string) []float32 {
	v := make([]float32, len(e.keywords))
	for i, kw := range e.keywords {
		if strings.Contains(strings.ToLower(text), kw) {
			v[i] = 1
		}
	}
	return v
}

func (e *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func newTestVectorStore() *InMemoryVectorStore {
	return NewInMemoryVectorStore(&hashEmbedder{keywords: []string{"goroutine", "channel", "mutex"}})
}

func TestInMemoryVectorStore_AddAndSearch(t *testing.T) {
	s := newTestVectorStore()
	ctx := context.Background()

	added, err := s.Add(ctx, []rag.Document{
		{ID: "d1", Content: "goroutine scheduling basics"},
		{ID: "d2", Content: "channel select patterns"},
		{ID: "d3", Content: "mutex contention and goroutine leaks"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, added)
	assert.Equal(t, 3, s.Count())

	results, err := s.Search(ctx, "how does a goroutine work", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "d1", results[0].Document.ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestInMemoryVectorStore_DedupByContentHash(t *testing.T) {
	s := newTestVectorStore()
	ctx := context.Background()

	docs := []rag.Document{{ID: "d1", Content: "channel basics"}}
	added, err := s.Add(ctx, docs)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	// same content, different ID: skipped
	added, err = s.Add(ctx, []rag.Document{{ID: "d2", Content: "channel basics"}})
	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 1, s.Count())
}

func TestInMemoryVectorStore_SearchWithFilter(t *testing.T) {
	s := newTestVectorStore()
	ctx := context.Background()

	_, err := s.Add(ctx, []rag.Document{
		{ID: "md", Content: "goroutine overview", Metadata: map[string]any{"content_type": "markdown"}},
		{ID: "code", Content: "goroutine example code", Metadata: map[string]any{"content_type": "code"}},
	})
	require.NoError(t, err)

	results, err := s.SearchWithFilter(ctx, "goroutine", 5, map[string]any{"content_type": "code"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "code", results[0].Document.ID)
}

func TestInMemoryVectorStore_PrecomputedEmbeddings(t *testing.T) {
	s := NewInMemoryVectorStore(nil)
	ctx := context.Background()

	_, err := s.Add(ctx, []rag.Document{{ID: "d1", Content: "x", Embedding: []float32{1, 0}}})
	require.NoError(t, err)

	results, err := s.SearchByVector(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	// embedding-less documents need an embedder
	_, err = s.Add(ctx, []rag.Document{{ID: "d2", Content: "y"}})
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity(nil, nil))
}
