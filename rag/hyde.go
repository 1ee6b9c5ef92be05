package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/blogforge/llm"
	"github.com/smallnest/blogforge/log"
)

const hydePrompt = `You are an expert technical writer simulating answering a query about a specific blog section.
Given the section title and learning goals, write a concise, hypothetical paragraph that directly addresses what a reader would expect to learn in this section.
Focus on capturing the core concepts and potential content. This hypothetical answer will be used to find relevant source documents.

SECTION TITLE: %s
LEARNING GOALS: %s

HYPOTHETICAL ANSWER (write a short paragraph):`

// Generator is the text generation surface the retriever needs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, llm.Usage, error)
}

// HyDERetriever retrieves source chunks for an outline section. It asks
// the model for a hypothetical answer paragraph and searches with that
// text, which lands closer to the source material than a bare section
// title. When the hypothetical generation fails it searches with the
// raw query instead.
type HyDERetriever struct {
	model  Generator
	store  VectorStore
	topK   int
	logger log.Logger
}

// NewHyDERetriever creates a retriever over the given store. topK
// defaults to 5 when zero.
func NewHyDERetriever(model Generator, store VectorStore, topK int) *HyDERetriever {
	if topK <= 0 {
		topK = 5
	}
	return &HyDERetriever{
		model:  model,
		store:  store,
		topK:   topK,
		logger: log.GetDefaultLogger(),
	}
}

// Retrieve searches for chunks relevant to a section. learningGoals may
// be empty.
func (r *HyDERetriever) Retrieve(ctx context.Context, sectionTitle string, learningGoals []string) ([]SearchResult, error) {
	return r.RetrieveWithFilter(ctx, sectionTitle, learningGoals, nil)
}

// RetrieveWithFilter is Retrieve restricted to chunks whose metadata
// matches the filter.
func (r *HyDERetriever) RetrieveWithFilter(ctx context.Context, sectionTitle string, learningGoals []string, filter map[string]any) ([]SearchResult, error) {
	query := sectionTitle

	hypothetical, err := r.hypotheticalDocument(ctx, sectionTitle, learningGoals)
	if err != nil {
		r.logger.Warn("hyde generation failed, falling back to raw query: %v", err)
	} else if hypothetical != "" {
		query = hypothetical
	}

	results, err := r.store.SearchWithFilter(ctx, query, r.topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}

func (r *HyDERetriever) hypotheticalDocument(ctx context.Context, sectionTitle string, learningGoals []string) (string, error) {
	goals := "none given"
	if len(learningGoals) > 0 {
		goals = strings.Join(learningGoals, "; ")
	}

	out, _, err := r.model.Generate(ctx, fmt.Sprintf(hydePrompt, sectionTitle, goals))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
