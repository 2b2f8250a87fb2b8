package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/keepsake/internal/cache"
	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
)

// --- Test doubles ---

// countingIndex wraps a TextIndex and counts queries.
type countingIndex struct {
	driven.TextIndex
	calls atomic.Int32
}

func (c *countingIndex) LexicalSearch(
	ctx context.Context, query string, limit int, filters domain.Filters,
) ([]domain.LexicalHit, error) {
	c.calls.Add(1)
	return c.TextIndex.LexicalSearch(ctx, query, limit, filters)
}

// brokenIndex always fails.
type brokenIndex struct {
	calls atomic.Int32
}

func (b *brokenIndex) LexicalSearch(context.Context, string, int, domain.Filters) ([]domain.LexicalHit, error) {
	b.calls.Add(1)
	return nil, errors.New("fts5: database disk image is malformed")
}

func (b *brokenIndex) EnsureTextIndex(context.Context) (bool, error) { return false, nil }

// seedNote stores a note and returns its id.
func seedNote(t *testing.T, env *testEnv, sourceID, title, body string) string {
	t.Helper()
	res, err := env.store.Upsert(context.Background(), domain.UpsertInput{
		Kind:         domain.KindNote,
		SourceSystem: "notes",
		SourceID:     sourceID,
		Title:        title,
		Body:         strPtr(body),
	})
	require.NoError(t, err)
	return res.ID
}

func newTestSearch(env *testEnv, index driven.TextIndex, embedder driven.EmbeddingProvider, c driven.Cache) *SearchService {
	cfg := DefaultSearchConfig()
	cfg.Expand = false
	if index == nil {
		index = env.store.TextIndex()
	}
	return NewSearchService(env.store, index, env.store.Vectors(), embedder, nil, c, cfg)
}

// ==================== Tests ====================

func TestSearch_EmptyQuery(t *testing.T) {
	env := setupTestEnv(t)
	index := &brokenIndex{}
	svc := newTestSearch(env, index, nil, nil)

	for _, q := range []string{"", "   ", "?!-"} {
		_, err := svc.Search(context.Background(), q, 10, domain.Filters{})
		assert.ErrorIs(t, err, domain.ErrEmptyQuery, "query %q", q)
	}
	assert.Zero(t, index.calls.Load(), "no retrieval path may run for an empty query")
}

func TestSearch_LexicalOnly(t *testing.T) {
	env := setupTestEnv(t)
	budget := seedNote(t, env, "1", "Q3 budget", "The budget review is on Friday. Bring numbers.")
	seedNote(t, env, "2", "Groceries", "milk, eggs")

	svc := newTestSearch(env, nil, nil, nil)
	resp, err := svc.Search(context.Background(), "budget", 10, domain.Filters{})
	require.NoError(t, err)

	require.Len(t, resp.Hits, 1)
	hit := resp.Hits[0]
	assert.Equal(t, budget, hit.Document.ID)
	assert.Equal(t, 1.0, hit.LexicalScore)
	assert.Equal(t, 0.0, hit.SemanticScore)
	assert.InDelta(t, DefaultLexicalWeight, hit.Score, 1e-9)
	assert.NotEmpty(t, hit.Highlights)
	assert.False(t, resp.Degraded())
}

func TestSearch_HybridFusion(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	both := seedNote(t, env, "1", "budget plan", "budget for travel")
	lexOnly := seedNote(t, env, "2", "old budget", "archived")
	semOnly := seedNote(t, env, "3", "spending forecast", "money outlook")

	vectors := env.store.Vectors()
	require.NoError(t, vectors.Save(ctx, both, []float32{1, 0}))
	require.NoError(t, vectors.Save(ctx, lexOnly, []float32{0, 1}))
	require.NoError(t, vectors.Save(ctx, semOnly, []float32{0.9, 0.1}))

	embedder := &mockEmbedder{}
	embedder.On("Embed", mock.Anything, "budget").Return([]float32{1, 0}, nil)

	svc := newTestSearch(env, nil, embedder, nil)
	resp, err := svc.Search(ctx, "budget", 10, domain.Filters{})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 3)

	assert.Equal(t, both, resp.Hits[0].Document.ID)
	assert.Equal(t, 1.0, resp.Hits[0].SemanticScore)
	for _, h := range resp.Hits {
		assert.LessOrEqual(t, h.Score, 1.0)
		assert.GreaterOrEqual(t, h.Score, 0.0)
	}

	ids := map[string]bool{}
	for _, h := range resp.Hits {
		assert.False(t, ids[h.Document.ID], "hits must be unique")
		ids[h.Document.ID] = true
	}
	embedder.AssertExpectations(t)
}

func TestSearch_EmbeddingFailureDegrades(t *testing.T) {
	env := setupTestEnv(t)
	seedNote(t, env, "1", "budget", "numbers")

	embedder := &mockEmbedder{}
	embedder.On("Embed", mock.Anything, mock.Anything).Return(nil, domain.ErrEmbeddingUnavailable)

	svc := newTestSearch(env, nil, embedder, nil)
	resp, err := svc.Search(context.Background(), "budget", 10, domain.Filters{})
	require.NoError(t, err)

	assert.Len(t, resp.Hits, 1)
	require.True(t, resp.Degraded())
	assert.Contains(t, resp.Warnings[0], "EmbeddingUnavailable")
}

func TestSearch_LexicalFailureFallsBackToSemantic(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	id := seedNote(t, env, "1", "budget", "numbers")
	require.NoError(t, env.store.Vectors().Save(ctx, id, []float32{1, 0}))

	embedder := &mockEmbedder{}
	embedder.On("Embed", mock.Anything, "budget").Return([]float32{1, 0}, nil)

	svc := newTestSearch(env, &brokenIndex{}, embedder, nil)
	resp, err := svc.Search(ctx, "budget", 10, domain.Filters{})
	require.NoError(t, err)

	require.Len(t, resp.Hits, 1)
	assert.Equal(t, id, resp.Hits[0].Document.ID)
	require.True(t, resp.Degraded())
	assert.True(t, strings.HasPrefix(resp.Warnings[0], "IndexUnavailable"))
}

func TestSearch_LexicalFailureWithoutSemanticHits(t *testing.T) {
	env := setupTestEnv(t)
	seedNote(t, env, "1", "budget", "numbers")

	svc := newTestSearch(env, &brokenIndex{}, nil, nil)
	_, err := svc.Search(context.Background(), "budget", 10, domain.Filters{})
	assert.ErrorIs(t, err, domain.ErrIndexUnavailable)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestSearch_FiltersAndLimit(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	for i, title := range []string{"alpha report", "alpha summary", "alpha draft"} {
		seedNote(t, env, string(rune('a'+i)), title, "alpha")
	}
	_, err := env.store.Upsert(ctx, domain.UpsertInput{
		Kind:         domain.KindEmail,
		SourceSystem: "mail",
		SourceID:     "m1",
		Title:        "alpha email",
		Extension:    domain.EmailDetails{Sender: "a@example.com", SentAt: time.Now()},
	})
	require.NoError(t, err)

	svc := newTestSearch(env, nil, nil, nil)

	resp, err := svc.Search(ctx, "alpha", 2, domain.Filters{})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 2)

	resp, err = svc.Search(ctx, "alpha", 10, domain.Filters{Kinds: []domain.Kind{domain.KindEmail}})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, domain.KindEmail, resp.Hits[0].Document.Kind)
}

func TestSearch_ExpansionFindsSynonyms(t *testing.T) {
	env := setupTestEnv(t)
	id := seedNote(t, env, "1", "Vendor call", "weekly call with the vendor")

	cfg := DefaultSearchConfig()
	svc := NewSearchService(env.store, env.store.TextIndex(), nil, nil,
		NewQueryExpander(DefaultSynonyms(), DefaultMaxVariants), nil, cfg)

	resp, err := svc.Search(context.Background(), "meeting", 10, domain.Filters{})
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, id, resp.Hits[0].Document.ID)
	assert.Contains(t, resp.Variants, "call")
}

func TestSearch_CachesResponses(t *testing.T) {
	env := setupTestEnv(t)
	seedNote(t, env, "1", "budget", "numbers")

	index := &countingIndex{TextIndex: env.store.TextIndex()}
	c := cache.New(cache.Config{TTL: time.Minute})
	svc := newTestSearch(env, index, nil, c)
	ctx := context.Background()

	first, err := svc.Search(ctx, "budget", 10, domain.Filters{})
	require.NoError(t, err)
	second, err := svc.Search(ctx, "budget", 10, domain.Filters{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), index.calls.Load())
	assert.Equal(t, first.Hits[0].Document.ID, second.Hits[0].Document.ID)

	_, err = svc.Search(ctx, "budget", 5, domain.Filters{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), index.calls.Load(), "a different limit is a different key")

	c.Purge()
	_, err = svc.Search(ctx, "budget", 10, domain.Filters{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), index.calls.Load())
}

func TestSearch_ExcludesTombstones(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	id := seedNote(t, env, "1", "budget", "numbers")
	_, err := env.store.SetDeleted(ctx, id, true)
	require.NoError(t, err)

	svc := newTestSearch(env, nil, nil, nil)
	resp, err := svc.Search(ctx, "budget", 10, domain.Filters{})
	require.NoError(t, err)
	assert.Empty(t, resp.Hits)

	resp, err = svc.Search(ctx, "budget", 10, domain.Filters{IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 1)
}

func TestCosine(t *testing.T) {
	sim, ok := cosine([]float32{1, 0}, []float32{1, 0})
	assert.True(t, ok)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, ok = cosine([]float32{1, 0}, []float32{0, 1})
	assert.True(t, ok)
	assert.InDelta(t, 0.0, sim, 1e-9)

	_, ok = cosine([]float32{1, 0}, []float32{1, 0, 0})
	assert.False(t, ok)

	_, ok = cosine([]float32{0, 0}, []float32{1, 0})
	assert.False(t, ok)
}

func TestGenerateHighlights(t *testing.T) {
	content := "First line. The budget is set! Nothing here? Budget again.\nMore budget talk."
	got := generateHighlights(content, "BUDGET")
	assert.Equal(t, []string{"The budget is set!", "Budget again.", "More budget talk."}, got)

	long := strings.Repeat("é", 150) + " budget"
	got = generateHighlights(long, "budget")
	require.Len(t, got, 1)
	assert.True(t, strings.HasSuffix(got[0], "..."))
	assert.LessOrEqual(t, len(got[0]), 203)

	assert.Nil(t, generateHighlights("anything", "  "))
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two!\nThree")
	assert.Equal(t, []string{"One.", "Two!", "Three"}, got)
}
