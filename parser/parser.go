// Package parser extracts structured content from uploaded source files.
// Each parser turns one file into an ordered list of sections tagged as
// prose or code, which the ingest agent chunks and indexes.
package parser

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// SectionKind tags what a parsed section contains.
type SectionKind string

const (
	KindText      SectionKind = "text"
	KindCode      SectionKind = "code"
	KindDocstring SectionKind = "docstring"
)

// Section is one contiguous piece of parsed content.
type Section struct {
	Content  string      `json:"content"`
	Kind     SectionKind `json:"kind"`
	Language string      `json:"language,omitempty"`
}

// ContentStructure is the parse result for one file.
type ContentStructure struct {
	Sections    []Section `json:"sections"`
	ContentType string    `json:"content_type"`
}

// MainContent concatenates the prose sections.
func (c *ContentStructure) MainContent() string {
	var parts []string
	for _, s := range c.Sections {
		if s.Kind != KindCode {
			parts = append(parts, strings.TrimRight(s.Content, "\n"))
		}
	}
	return strings.Join(parts, "\n\n")
}

// CodeSegments returns the code sections in order.
func (c *ContentStructure) CodeSegments() []string {
	var segments []string
	for _, s := range c.Sections {
		if s.Kind == KindCode {
			segments = append(segments, s.Content)
		}
	}
	return segments
}

// Parser extracts a ContentStructure from raw file content.
type Parser interface {
	Parse(content []byte) (*ContentStructure, error)
}

var parsersByExtension = map[string]func() Parser{
	".md":       func() Parser { return &MarkdownParser{} },
	".markdown": func() Parser { return &MarkdownParser{} },
	".ipynb":    func() Parser { return &NotebookParser{} },
	".py":       func() Parser { return NewCodeParser("python") },
	".go":       func() Parser { return NewCodeParser("go") },
	".html":     func() Parser { return &HTMLParser{} },
	".htm":      func() Parser { return &HTMLParser{} },
}

// ForFile returns the parser for a filename's extension.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	factory, ok := parsersByExtension[ext]
	if !ok {
		return nil, fmt.Errorf("unsupported file type %q, supported: %s",
			ext, strings.Join(SupportedExtensions(), ", "))
	}
	return factory(), nil
}

// SupportedExtensions lists the extensions ForFile accepts, sorted.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(parsersByExtension))
	for ext := range parsersByExtension {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
