package rag

import (
	"context"
	"sort"
)

// ContentReference is one source chunk mapped onto an outline section.
type ContentReference struct {
	Content   string  `json:"content"`
	Source    string  `json:"source,omitempty"`
	Kind      string  `json:"kind"` // markdown or code
	Relevance float64 `json:"relevance"`
}

// SectionQuery identifies an outline section to map content for.
type SectionQuery struct {
	Title         string
	LearningGoals []string
}

// Retriever is the retrieval surface the mapper needs.
type Retriever interface {
	RetrieveWithFilter(ctx context.Context, sectionTitle string, learningGoals []string, filter map[string]any) ([]SearchResult, error)
}

const (
	// markdownBoost favors prose chunks, which carry the narrative the
	// draft sections are written from.
	markdownBoost = 0.1
	// codeRelevanceFloor drops weakly related code chunks, which are
	// noisier than prose at low similarity.
	codeRelevanceFloor = 0.6
)

// ContentMapper assembles ranked content references per outline section,
// querying markdown and code chunks separately.
type ContentMapper struct {
	retriever Retriever
}

// NewContentMapper creates a mapper over the given retriever.
func NewContentMapper(retriever Retriever) *ContentMapper {
	return &ContentMapper{retriever: retriever}
}

// MapSection retrieves and ranks source chunks for one section.
func (m *ContentMapper) MapSection(ctx context.Context, query SectionQuery) ([]ContentReference, error) {
	var refs []ContentReference

	markdown, err := m.retriever.RetrieveWithFilter(ctx, query.Title, query.LearningGoals,
		map[string]any{"content_type": "markdown"})
	if err != nil {
		return nil, err
	}
	for _, r := range markdown {
		score := r.Score + markdownBoost
		if score > 1 {
			score = 1
		}
		refs = append(refs, newReference(r, "markdown", score))
	}

	code, err := m.retriever.RetrieveWithFilter(ctx, query.Title, query.LearningGoals,
		map[string]any{"content_type": "code"})
	if err != nil {
		return nil, err
	}
	for _, r := range code {
		if r.Score < codeRelevanceFloor {
			continue
		}
		refs = append(refs, newReference(r, "code", r.Score))
	}

	sort.SliceStable(refs, func(i, j int) bool {
		return refs[i].Relevance > refs[j].Relevance
	})
	return refs, nil
}

// MapSections maps every section of an outline, keyed by section title.
func (m *ContentMapper) MapSections(ctx context.Context, queries []SectionQuery) (map[string][]ContentReference, error) {
	out := make(map[string][]ContentReference, len(queries))
	for _, q := range queries {
		refs, err := m.MapSection(ctx, q)
		if err != nil {
			return nil, err
		}
		out[q.Title] = refs
	}
	return out, nil
}

func newReference(r SearchResult, kind string, score float64) ContentReference {
	source, _ := r.Document.Metadata["source"].(string)
	return ContentReference{
		Content:   r.Document.Content,
		Source:    source,
		Kind:      kind,
		Relevance: score,
	}
}
