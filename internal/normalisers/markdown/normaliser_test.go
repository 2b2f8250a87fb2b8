package markdown

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
)

func normalise(t *testing.T, path, content string) domain.RawRecord {
	t.Helper()
	rec, err := New().Normalise(context.Background(), driven.NormaliseInput{
		Path:     path,
		MIMEType: "text/markdown",
		Content:  []byte(content),
	})
	require.NoError(t, err)
	return rec
}

func TestSupportedMIMETypes(t *testing.T) {
	mimeTypes := New().SupportedMIMETypes()
	assert.ElementsMatch(t, []string{"text/markdown", "text/x-markdown"}, mimeTypes)
	assert.Equal(t, 50, New().Priority())
}

func TestNormalise_Success(t *testing.T) {
	rec := normalise(t, "/path/to/document.md", "# Hello World\n\nThis is a test.")

	assert.Equal(t, domain.KindNote, rec.Kind)
	assert.Equal(t, "Hello World", rec.Title)
	require.NotNil(t, rec.Body)
	assert.Equal(t, "Hello World\n\nThis is a test.", *rec.Body)
	assert.Equal(t, "markdown", rec.Attributes.String("format", ""))
	assert.Equal(t, "text/markdown", rec.Attributes.String("mime_type", ""))
}

func TestNormalise_TitleExtraction(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		path          string
		expectedTitle string
	}{
		{
			name:          "H1 heading",
			content:       "# My Document\n\nContent here.",
			path:          "/doc.md",
			expectedTitle: "My Document",
		},
		{
			name:          "H1 with extra spaces",
			content:       "#   Spaced Title   \n\nContent",
			path:          "/doc.md",
			expectedTitle: "Spaced Title",
		},
		{
			name:          "no heading - fallback to filename",
			content:       "Just some content without heading.",
			path:          "/my_document.md",
			expectedTitle: "my document",
		},
		{
			name:          "H2 first - fallback to filename",
			content:       "## Second Level\n\nNo H1.",
			path:          "/readme.md",
			expectedTitle: "readme",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expectedTitle, normalise(t, tc.path, tc.content).Title)
		})
	}
}

func TestNormalise_FrontMatter(t *testing.T) {
	content := "---\ntitle: Quarterly plan\ntags: [work, planning]\npriority: 2\n---\n# Ignored heading\n\nBody text."
	rec := normalise(t, "/notes/q3.md", content)

	assert.Equal(t, "Quarterly plan", rec.Title)
	assert.Equal(t, []string{"work", "planning"}, rec.Attributes.Strings("tags"))
	assert.Equal(t, int64(2), rec.Attributes.Int("priority", 0))
	assert.False(t, rec.Attributes.Has("title"))
	require.NotNil(t, rec.Body)
	assert.NotContains(t, *rec.Body, "tags:")
	assert.Contains(t, *rec.Body, "Body text.")
}

func TestNormalise_UnterminatedFrontMatterIsContent(t *testing.T) {
	rec := normalise(t, "/notes/odd.md", "---\nnot closed\n")
	assert.Equal(t, "odd", rec.Title)
}

func TestNormalise_InvalidFrontMatter(t *testing.T) {
	_, err := New().Normalise(context.Background(), driven.NormaliseInput{
		Path:    "/notes/bad.md",
		Content: []byte("---\n: [unbalanced\n---\nbody"),
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"headings removed", "# Title\n## Subtitle\n### Third", "Title\nSubtitle\nThird"},
		{"bold removed", "This is **bold** text", "This is bold text"},
		{"links converted", "Click [here](https://example.com)", "Click here"},
		{"images removed", "See ![alt text](image.png) here", "See  here"},
		{"code blocks removed", "Before\n```go\ncode here\n```\nAfter", "Before\n\nAfter"},
		{"inline code removed", "Use `code` here", "Use  here"},
		{"blockquotes cleaned", "> This is a quote", "This is a quote"},
		{"list markers removed", "- Item 1\n- Item 2", "Item 1\nItem 2"},
		{"numbered list markers removed", "1. First\n2. Second", "First\nSecond"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, stripMarkdown(tc.input))
		})
	}
}
