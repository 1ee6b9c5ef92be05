// Package store provides the in-memory vector store backing the pipeline's
// content index.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/smallnest/blogforge/rag"
)

// InMemoryVectorStore is a cosine-similarity vector store with metadata
// filtering. Content is deduplicated by SHA-256 hash, so re-ingesting the
// same files is a no-op.
type InMemoryVectorStore struct {
	mu         sync.RWMutex
	documents  []rag.Document
	embeddings [][]float32
	seen       map[string]bool
	embedder   rag.Embedder
}

// NewInMemoryVectorStore creates a store using embedder for documents
// without precomputed vectors and for queries.
func NewInMemoryVectorStore(embedder rag.Embedder) *InMemoryVectorStore {
	return &InMemoryVectorStore{
		seen:     make(map[string]bool),
		embedder: embedder,
	}
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Add indexes documents, skipping any whose content is already present.
// It returns the number of documents actually added.
func (s *InMemoryVectorStore) Add(ctx context.Context, documents []rag.Document) (int, error) {
	var fresh []rag.Document
	var hashes []string
	var toEmbed []int

	s.mu.Lock()
	for _, doc := range documents {
		hash := contentHash(doc.Content)
		if s.seen[hash] {
			continue
		}
		s.seen[hash] = true
		if len(doc.Embedding) == 0 {
			toEmbed = append(toEmbed, len(fresh))
		}
		fresh = append(fresh, doc)
		hashes = append(hashes, hash)
	}
	s.mu.Unlock()

	if len(fresh) == 0 {
		return 0, nil
	}

	if len(toEmbed) > 0 {
		vectors, err := s.embedBatch(ctx, fresh, toEmbed)
		if err != nil {
			// unmark so a retry can re-ingest
			s.mu.Lock()
			for _, hash := range hashes {
				delete(s.seen, hash)
			}
			s.mu.Unlock()
			return 0, err
		}
		for i, idx := range toEmbed {
			fresh[idx].Embedding = vectors[i]
		}
	}

	s.mu.Lock()
	for _, doc := range fresh {
		s.documents = append(s.documents, doc)
		s.embeddings = append(s.embeddings, doc.Embedding)
	}
	s.mu.Unlock()

	return len(fresh), nil
}

func (s *InMemoryVectorStore) embedBatch(ctx context.Context, docs []rag.Document, indices []int) ([][]float32, error) {
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedder configured and %d documents have no embedding", len(indices))
	}
	texts := make([]string, len(indices))
	for i, idx := range indices {
		texts[i] = docs[idx].Content
	}
	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed documents: %w", err)
	}
	return vectors, nil
}

func (s *InMemoryVectorStore) Search(ctx context.Context, query string, k int) ([]rag.SearchResult, error) {
	return s.SearchWithFilter(ctx, query, k, nil)
}

func (s *InMemoryVectorStore) SearchWithFilter(ctx context.Context, query string, k int, filter map[string]any) ([]rag.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	if s.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}

	queryEmbedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return s.SearchByVector(ctx, queryEmbedding, k, filter)
}

// SearchByVector searches with a precomputed query embedding.
func (s *InMemoryVectorStore) SearchByVector(_ context.Context, queryEmbedding []float32, k int, filter map[string]any) ([]rag.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]rag.SearchResult, 0, k)
	for i, doc := range s.documents {
		if !matchesFilter(doc.Metadata, filter) {
			continue
		}
		results = append(results, rag.SearchResult{
			Document: doc,
			Score:    cosineSimilarity(queryEmbedding, s.embeddings[i]),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func (s *InMemoryVectorStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents)
}

func matchesFilter(metadata, filter map[string]any) bool {
	for key, want := range filter {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
