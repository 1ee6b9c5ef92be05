// Package splitter chunks source content before indexing.
package splitter

import (
	"fmt"
	"strings"

	"github.com/smallnest/blogforge/rag"
)

// markdownSeparators split on structural boundaries first so headings and
// code fences stay intact within a chunk where possible.
var markdownSeparators = []string{"\n## ", "\n### ", "\n```", "\n\n", "\n", " ", ""}

// RecursiveSplitter splits text recursively, preferring the earliest
// separator that produces chunks within the size limit.
type RecursiveSplitter struct {
	separators   []string
	chunkSize    int
	chunkOverlap int
}

// Option configures a RecursiveSplitter.
type Option func(*RecursiveSplitter)

// WithChunkSize sets the maximum chunk length in bytes.
func WithChunkSize(size int) Option {
	return func(s *RecursiveSplitter) { s.chunkSize = size }
}

// WithChunkOverlap sets the overlap carried between adjacent chunks.
func WithChunkOverlap(overlap int) Option {
	return func(s *RecursiveSplitter) { s.chunkOverlap = overlap }
}

// WithSeparators overrides the separator hierarchy.
func WithSeparators(separators []string) Option {
	return func(s *RecursiveSplitter) { s.separators = separators }
}

// NewRecursiveSplitter creates a splitter with markdown-aware separators,
// a 1000-byte chunk size and 200-byte overlap.
func NewRecursiveSplitter(opts ...Option) *RecursiveSplitter {
	s := &RecursiveSplitter{
		separators:   markdownSeparators,
		chunkSize:    1000,
		chunkOverlap: 200,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.chunkOverlap >= s.chunkSize {
		s.chunkOverlap = s.chunkSize / 5
	}
	return s
}

// SplitText splits text into chunks within the size limit.
func (s *RecursiveSplitter) SplitText(text string) []string {
	return s.splitRecursive(text, s.separators)
}

// SplitDocuments splits each document, carrying its metadata onto the
// chunks plus chunk_index, chunk_total and parent_id.
func (s *RecursiveSplitter) SplitDocuments(docs []rag.Document) []rag.Document {
	var chunks []rag.Document
	for _, doc := range docs {
		pieces := s.SplitText(doc.Content)
		for i, piece := range pieces {
			metadata := make(map[string]any, len(doc.Metadata)+3)
			for k, v := range doc.Metadata {
				metadata[k] = v
			}
			metadata["chunk_index"] = i
			metadata["chunk_total"] = len(pieces)
			metadata["parent_id"] = doc.ID

			chunks = append(chunks, rag.Document{
				ID:        fmt.Sprintf("%s_chunk_%d", doc.ID, i),
				Content:   piece,
				Metadata:  metadata,
				CreatedAt: doc.CreatedAt,
			})
		}
	}
	return chunks
}

func (s *RecursiveSplitter) splitRecursive(text string, separators []string) []string {
	if len(text) <= s.chunkSize {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}
	if len(separators) == 0 {
		return s.splitByLength(text)
	}

	separator := separators[0]
	rest := separators[1:]
	if separator == "" {
		return s.splitByLength(text)
	}

	var pieces []string
	for _, piece := range strings.Split(text, separator) {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		if len(piece) <= s.chunkSize {
			pieces = append(pieces, piece)
		} else {
			pieces = append(pieces, s.splitRecursive(piece, rest)...)
		}
	}
	return s.merge(pieces)
}

// merge packs adjacent pieces back together up to the chunk size, then
// applies overlap between the resulting chunks.
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var merged []string
	var current string

	for _, piece := range pieces {
		if current == "" {
			current = piece
			continue
		}
		proposed := current + "\n\n" + piece
		if len(proposed) <= s.chunkSize {
			current = proposed
		} else {
			merged = append(merged, current)
			current = piece
		}
	}
	if current != "" {
		merged = append(merged, current)
	}

	if s.chunkOverlap > 0 && len(merged) > 1 {
		merged = s.applyOverlap(merged)
	}
	return merged
}

func (s *RecursiveSplitter) applyOverlap(chunks []string) []string {
	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev
		if len(prev) > s.chunkOverlap {
			tail = prev[len(prev)-s.chunkOverlap:]
		}
		out[i] = tail + "\n" + chunks[i]
	}
	return out
}

func (s *RecursiveSplitter) splitByLength(text string) []string {
	var chunks []string
	step := s.chunkSize - s.chunkOverlap
	if step <= 0 {
		step = s.chunkSize
	}
	for i := 0; i < len(text); i += step {
		end := i + s.chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[i:end])
		if end == len(text) {
			break
		}
	}
	return chunks
}
