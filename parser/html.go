package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLParser extracts readable content from an HTML page. Scripts and
// styles are dropped; headings start new prose sections and <pre> blocks
// become code sections.
type HTMLParser struct{}

func (p *HTMLParser) Parse(content []byte) (*ContentStructure, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("invalid html: %w", err)
	}

	doc.Find("script, style, noscript").Remove()

	var sections []Section
	current := Section{Kind: KindText}

	flush := func() {
		if strings.TrimSpace(current.Content) != "" {
			sections = append(sections, current)
		}
	}

	doc.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote").Each(func(_ int, sel *goquery.Selection) {
		// skip elements nested inside a pre we already captured
		if sel.ParentsFiltered("pre").Length() > 0 {
			return
		}

		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}

		switch goquery.NodeName(sel) {
		case "pre":
			flush()
			sections = append(sections, Section{Content: text, Kind: KindCode})
			current = Section{Kind: KindText}
		case "h1", "h2", "h3", "h4", "h5", "h6":
			flush()
			current = Section{Kind: KindText, Content: text + "\n"}
		default:
			current.Content += text + "\n"
		}
	})
	flush()

	return &ContentStructure{
		Sections:    sections,
		ContentType: "html",
	}, nil
}
