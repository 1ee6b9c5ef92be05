// Package rag provides the retrieval layer of the pipeline: an embedding
// interface, vector search with metadata filtering, HyDE retrieval and
// semantic mapping of source chunks onto outline sections.
package rag

import (
	"context"
	"time"
)

// Document is a chunk of source content with its embedding.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Embedding []float32      `json:"embedding,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Embedder produces embedding vectors for texts.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes documents for similarity search.
type VectorStore interface {
	// Add indexes documents, embedding any without a vector. Documents
	// whose content is already indexed are skipped.
	Add(ctx context.Context, documents []Document) (int, error)
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)
	// SearchWithFilter restricts candidates to documents whose metadata
	// matches every filter entry.
	SearchWithFilter(ctx context.Context, query string, k int, filter map[string]any) ([]SearchResult, error)
	Count() int
}
