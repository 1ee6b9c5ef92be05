package parser

import "strings"

// MarkdownParser segments markdown by headings and fenced code blocks.
// Each heading starts a new prose section; fenced blocks become code
// sections carrying the fence's language tag.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(content []byte) (*ContentStructure, error) {
	var sections []Section
	current := Section{Kind: KindText}

	flush := func() {
		if strings.TrimSpace(current.Content) != "" {
			sections = append(sections, current)
		}
	}

	inCode := false
	for _, line := range strings.Split(string(content), "\n") {
		if strings.HasPrefix(line, "```") {
			if !inCode {
				flush()
				current = Section{
					Kind:     KindCode,
					Language: strings.TrimSpace(strings.TrimPrefix(line, "```")),
				}
				inCode = true
			} else {
				flush()
				current = Section{Kind: KindText}
				inCode = false
			}
			continue
		}

		if !inCode && strings.HasPrefix(line, "#") {
			flush()
			current = Section{Kind: KindText, Content: line + "\n"}
			continue
		}

		current.Content += line + "\n"
	}
	flush()

	return &ContentStructure{
		Sections:    sections,
		ContentType: "markdown",
	}, nil
}
