// Package markdown provides a Normaliser for Markdown notes.
package markdown

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

var (
	codeBlock     = regexp.MustCompile("(?s)```[^`]*```")
	inlineCode    = regexp.MustCompile("`[^`]+`")
	images        = regexp.MustCompile(`!\[[^\]]*\]\([^)]+\)`)
	links         = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	headings      = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	blockquote    = regexp.MustCompile(`(?m)^>\s*`)
	hr            = regexp.MustCompile(`(?m)^[-*_]{3,}\s*$`)
	listMarkers   = regexp.MustCompile(`(?m)^\s*[-*+]\s+`)
	numberedList  = regexp.MustCompile(`(?m)^\s*\d+\.\s+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50 // Generic MIME normaliser, higher than plaintext
}

// Kinds returns the kinds this normaliser produces.
func (n *Normaliser) Kinds() []domain.Kind {
	return []domain.Kind{domain.KindNote}
}

// Normalise converts a markdown file to a note. YAML front matter becomes
// attributes; a "title" key there wins over the first H1 heading.
func (n *Normaliser) Normalise(_ context.Context, in driven.NormaliseInput) (domain.RawRecord, error) {
	frontMatter, content, err := splitFrontMatter(in.Content)
	if err != nil {
		return domain.RawRecord{}, domain.NewValidationError("front matter in %s: %v", in.Path, err)
	}

	attrs := domain.Attributes{}
	for k, v := range frontMatter {
		attrs[k] = v
	}

	title := attrs.String("title", "")
	if title == "" {
		title = extractMarkdownTitle(content, in.Path)
	}
	delete(attrs, "title")

	attrs["mime_type"] = in.MIMEType
	attrs["format"] = "markdown"

	body := stripMarkdown(content)
	return domain.RawRecord{
		Kind:       domain.KindNote,
		Title:      title,
		Body:       &body,
		Attributes: attrs,
	}, nil
}

// splitFrontMatter separates a leading "---" delimited YAML block.
func splitFrontMatter(raw []byte) (map[string]any, string, error) {
	if !bytes.HasPrefix(raw, []byte("---\n")) {
		return nil, string(raw), nil
	}
	rest := raw[len("---\n"):]
	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, string(raw), nil
	}

	var fm map[string]any
	if err := yaml.Unmarshal(rest[:end], &fm); err != nil {
		return nil, "", err
	}

	body := rest[end+len("\n---"):]
	body = bytes.TrimLeft(body, "-")
	return fm, strings.TrimLeft(string(body), "\n"), nil
}

// extractMarkdownTitle extracts a title from the first H1 or falls back to the filename.
func extractMarkdownTitle(content, path string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return normalisers.TitleFromPath(path)
}

// stripMarkdown removes common markdown formatting for plain text content.
func stripMarkdown(content string) string {
	content = codeBlock.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "")
	content = images.ReplaceAllString(content, "")

	// [text](url) -> text
	content = links.ReplaceAllString(content, "$1")
	content = headings.ReplaceAllString(content, "")

	content = strings.ReplaceAll(content, "**", "")
	content = strings.ReplaceAll(content, "__", "")
	content = strings.ReplaceAll(content, "*", "")
	content = strings.ReplaceAll(content, "_", " ")

	content = blockquote.ReplaceAllString(content, "")
	content = hr.ReplaceAllString(content, "")
	content = listMarkers.ReplaceAllString(content, "")
	content = numberedList.ReplaceAllString(content, "")
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
