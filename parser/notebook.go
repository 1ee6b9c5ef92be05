package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxOutputLength caps how much of a cell's output is kept.
const maxOutputLength = 1000

// NotebookParser extracts cells from a Jupyter notebook. Markdown cells
// become prose sections; code cells keep their source plus truncated
// text outputs.
type NotebookParser struct{}

type notebookFile struct {
	Cells    []notebookCell `json:"cells"`
	Metadata struct {
		LanguageInfo struct {
			Name string `json:"name"`
		} `json:"language_info"`
	} `json:"metadata"`
}

type notebookCell struct {
	CellType string           `json:"cell_type"`
	Source   stringOrLines    `json:"source"`
	Outputs  []notebookOutput `json:"outputs"`
}

type notebookOutput struct {
	Text stringOrLines            `json:"text"`
	Data map[string]stringOrLines `json:"data"`
}

// stringOrLines absorbs the two notebook source encodings: a plain
// string or a list of lines.
type stringOrLines string

func (s *stringOrLines) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = stringOrLines(single)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return err
	}
	*s = stringOrLines(strings.Join(lines, ""))
	return nil
}

func (p *NotebookParser) Parse(content []byte) (*ContentStructure, error) {
	var nb notebookFile
	if err := json.Unmarshal(content, &nb); err != nil {
		return nil, fmt.Errorf("invalid notebook json: %w", err)
	}

	language := nb.Metadata.LanguageInfo.Name
	if language == "" {
		language = "python"
	}

	var sections []Section
	for _, cell := range nb.Cells {
		source := string(cell.Source)
		if strings.TrimSpace(source) == "" {
			continue
		}

		switch cell.CellType {
		case "markdown":
			sections = append(sections, Section{Content: source, Kind: KindText})
		case "code":
			text := source
			if output := collectOutputs(cell.Outputs); output != "" {
				text = source + "\n# Output:\n" + output
			}
			sections = append(sections, Section{Content: text, Kind: KindCode, Language: language})
		}
	}

	return &ContentStructure{
		Sections:    sections,
		ContentType: "jupyter_notebook",
	}, nil
}

func collectOutputs(outputs []notebookOutput) string {
	var parts []string
	for _, out := range outputs {
		if out.Text != "" {
			parts = append(parts, string(out.Text))
		} else if plain, ok := out.Data["text/plain"]; ok && plain != "" {
			parts = append(parts, string(plain))
		}
	}
	joined := strings.Join(parts, "")
	if len(joined) > maxOutputLength {
		joined = joined[:maxOutputLength] + "..."
	}
	return joined
}
