package parser

import "strings"

// CodeParser segments a source file into top-level blocks. The leading
// documentation (module docstring for Python, the file comment block for
// Go) becomes a prose section; each top-level declaration becomes a code
// section.
type CodeParser struct {
	language string
	starters []string
}

// NewCodeParser creates a parser for "python" or "go" sources.
func NewCodeParser(language string) *CodeParser {
	p := &CodeParser{language: language}
	switch language {
	case "go":
		p.starters = []string{"func ", "type ", "var ", "const ", "func("}
	default:
		p.starters = []string{"def ", "class ", "async def ", "@"}
	}
	return p
}

func (p *CodeParser) Parse(content []byte) (*ContentStructure, error) {
	text := string(content)
	var sections []Section

	if doc := p.leadingDoc(text); doc != "" {
		sections = append(sections, Section{Content: doc, Kind: KindDocstring})
	}

	lines := strings.Split(text, "\n")
	var block []string
	inBlock := false

	flush := func() {
		joined := strings.TrimRight(strings.Join(block, "\n"), "\n")
		if strings.TrimSpace(joined) != "" {
			sections = append(sections, Section{Content: joined, Kind: KindCode, Language: p.language})
		}
		block = nil
	}

	for _, line := range lines {
		if p.startsBlock(line) {
			// decorators attach to the declaration that follows
			if inBlock && !onlyDecorators(block) {
				flush()
			}
			inBlock = true
			block = append(block, line)
			continue
		}
		if inBlock {
			// a block continues through indented lines, braces and blanks;
			// a new unindented statement ends it
			if line == "" || line == "}" || strings.HasPrefix(line, " ") ||
				strings.HasPrefix(line, "\t") || strings.HasPrefix(line, ")") {
				block = append(block, line)
				continue
			}
			flush()
			inBlock = false
		}
	}
	if inBlock {
		flush()
	}

	// no recognizable structure: keep the whole file as one code section
	if len(sections) == 0 && strings.TrimSpace(text) != "" {
		sections = append(sections, Section{Content: text, Kind: KindCode, Language: p.language})
	}

	return &ContentStructure{
		Sections:    sections,
		ContentType: p.language,
	}, nil
}

func onlyDecorators(block []string) bool {
	for _, line := range block {
		if !strings.HasPrefix(line, "@") {
			return false
		}
	}
	return len(block) > 0
}

func (p *CodeParser) startsBlock(line string) bool {
	for _, starter := range p.starters {
		if strings.HasPrefix(line, starter) {
			return true
		}
	}
	return false
}

// leadingDoc extracts the documentation at the top of the file.
func (p *CodeParser) leadingDoc(text string) string {
	if p.language == "go" {
		return goLeadingComment(text)
	}
	return pythonDocstring(text)
}

// pythonDocstring returns the module docstring when the file opens with
// a triple-quoted string (after comments and blank lines).
func pythonDocstring(text string) string {
	lines := strings.Split(text, "\n")
	i := 0
	for i < len(lines) && (strings.TrimSpace(lines[i]) == "" || strings.HasPrefix(strings.TrimSpace(lines[i]), "#")) {
		i++
	}
	if i >= len(lines) {
		return ""
	}

	first := strings.TrimSpace(lines[i])
	var quote string
	switch {
	case strings.HasPrefix(first, `"""`):
		quote = `"""`
	case strings.HasPrefix(first, "'''"):
		quote = "'''"
	default:
		return ""
	}

	rest := strings.TrimPrefix(first, quote)
	if end := strings.Index(rest, quote); end >= 0 {
		return strings.TrimSpace(rest[:end])
	}

	var body []string
	if rest != "" {
		body = append(body, rest)
	}
	for j := i + 1; j < len(lines); j++ {
		if end := strings.Index(lines[j], quote); end >= 0 {
			body = append(body, lines[j][:end])
			return strings.TrimSpace(strings.Join(body, "\n"))
		}
		body = append(body, lines[j])
	}
	return ""
}

// goLeadingComment returns the comment block preceding the package clause.
func goLeadingComment(text string) string {
	var body []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "//"):
			body = append(body, strings.TrimSpace(strings.TrimPrefix(trimmed, "//")))
		case trimmed == "":
			continue
		default:
			return strings.TrimSpace(strings.Join(body, "\n"))
		}
	}
	return strings.TrimSpace(strings.Join(body, "\n"))
}
