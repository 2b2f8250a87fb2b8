package normalisers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
)

type stubNormaliser struct {
	name     string
	types    []string
	priority int
	kinds    []domain.Kind
}

func (s *stubNormaliser) SupportedMIMETypes() []string { return s.types }
func (s *stubNormaliser) Priority() int                { return s.priority }
func (s *stubNormaliser) Kinds() []domain.Kind         { return s.kinds }
func (s *stubNormaliser) Normalise(context.Context, driven.NormaliseInput) (domain.RawRecord, error) {
	return domain.RawRecord{Title: s.name}, nil
}

func TestRegistry_PrefersHigherPriority(t *testing.T) {
	fallback := &stubNormaliser{name: "fallback", types: []string{"text/plain", "text/markdown"}, priority: 5}
	markdown := &stubNormaliser{name: "markdown", types: []string{"text/markdown"}, priority: 50}

	r := NewRegistry(fallback, markdown)

	n, ok := r.Get("text/markdown")
	require.True(t, ok)
	assert.Same(t, markdown, n)

	n, ok = r.Get("text/plain")
	require.True(t, ok)
	assert.Same(t, fallback, n)

	_, ok = r.Get("application/pdf")
	assert.False(t, ok)

	assert.Equal(t, []string{"text/markdown", "text/plain"}, r.MIMETypes())
}

func TestRegistry_Kinds(t *testing.T) {
	r := NewRegistry(
		&stubNormaliser{types: []string{"text/plain"}, kinds: []domain.Kind{domain.KindNote, domain.KindFile}},
		&stubNormaliser{types: []string{"text/markdown"}, kinds: []domain.Kind{domain.KindNote}},
		&stubNormaliser{types: []string{"text/calendar"}, kinds: []domain.Kind{domain.KindEvent}},
	)

	assert.Equal(t, []domain.Kind{domain.KindEvent, domain.KindFile, domain.KindNote}, r.Kinds())
}

func TestTitleFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/notes/meeting-notes.md", "meeting notes"},
		{"todo_list.txt", "todo list"},
		{"README", "README"},
		{"/a/b/archive.tar.gz", "archive.tar"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, TitleFromPath(tt.path))
		})
	}
}
