package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/logger"
)

// DefaultSearchLimit is used when a caller passes a non-positive limit.
const DefaultSearchLimit = 10

// SearchConfig tunes fusion and expansion.
type SearchConfig struct {
	LexicalWeight  float64
	SemanticWeight float64

	// Expand enables synonym-based query expansion.
	Expand bool
}

// DefaultSearchConfig returns equal weights with expansion enabled.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		LexicalWeight:  DefaultLexicalWeight,
		SemanticWeight: DefaultSemanticWeight,
		Expand:         true,
	}
}

// SearchService provides hybrid search functionality.
type SearchService struct {
	docs     driven.DocumentStore
	index    driven.TextIndex
	vectors  driven.VectorStore
	embedder driven.EmbeddingProvider
	expander *QueryExpander
	cache    driven.Cache
	cfg      SearchConfig
}

// NewSearchService creates a new search service.
// The embedder, expander and cache parameters are optional (can be nil).
func NewSearchService(
	docs driven.DocumentStore,
	index driven.TextIndex,
	vectors driven.VectorStore,
	embedder driven.EmbeddingProvider,
	expander *QueryExpander,
	cache driven.Cache,
	cfg SearchConfig,
) *SearchService {
	if cfg.LexicalWeight < 0 || cfg.SemanticWeight < 0 || cfg.LexicalWeight+cfg.SemanticWeight == 0 {
		cfg.LexicalWeight, cfg.SemanticWeight = DefaultLexicalWeight, DefaultSemanticWeight
	}
	return &SearchService{
		docs:     docs,
		index:    index,
		vectors:  vectors,
		embedder: embedder,
		expander: expander,
		cache:    cache,
		cfg:      cfg,
	}
}

// Search runs the lexical and semantic paths concurrently and fuses them.
func (s *SearchService) Search(
	ctx context.Context, query string, limit int, filters domain.Filters,
) (domain.SearchResponse, error) {
	logger.Section("Search Execution")
	logger.Debug("Query: %q", query)

	query = strings.TrimSpace(query)
	if len(tokenize(query)) == 0 {
		return domain.SearchResponse{}, domain.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	key := s.cacheKey(query, limit, filters)
	if s.cache != nil {
		var cached domain.SearchResponse
		if ok, err := s.cache.GetJSON(key, &cached); err == nil && ok {
			logger.Debug("Search cache hit")
			return cached, nil
		}
	}

	variants := []string{query}
	if s.cfg.Expand && s.expander != nil {
		variants = s.expander.Expand(query)
	}
	logger.Debug("Variants: %v", variants)

	internalLimit := limit * 2

	var lexical, semantic []pathHit
	var lexErr error
	var semWarning string

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		lexical, lexErr = s.lexicalSearch(ctx, variants, internalLimit, filters)
	}()

	go func() {
		defer wg.Done()
		semantic, semWarning = s.semanticSearch(ctx, variants, internalLimit, filters)
	}()

	wg.Wait()

	if err := ctx.Err(); err != nil {
		return domain.SearchResponse{}, err
	}

	resp := domain.SearchResponse{Variants: variants}
	if semWarning != "" {
		resp.Warnings = append(resp.Warnings, semWarning)
	}
	if lexErr != nil {
		if len(semantic) == 0 {
			return domain.SearchResponse{}, fmt.Errorf("search: %w", wrapIndexUnavailable(lexErr))
		}
		logger.Warn("Lexical search failed, using semantic results only: %v", lexErr)
		resp.Warnings = append(resp.Warnings, "IndexUnavailable: "+lexErr.Error())
	}

	logger.Debug("Fusing %d lexical + %d semantic hits", len(lexical), len(semantic))
	fused := fuse(lexical, semantic, s.cfg.LexicalWeight, s.cfg.SemanticWeight)
	if len(fused) > limit {
		fused = fused[:limit]
	}

	hits, err := s.hydrate(ctx, fused, query)
	if err != nil {
		return domain.SearchResponse{}, fmt.Errorf("hydrate results: %w", err)
	}
	resp.Hits = hits
	logger.Info("Final results: %d", len(hits))

	if s.cache != nil {
		if err := s.cache.SetJSON(key, resp); err != nil {
			logger.Debug("Search cache store failed: %v", err)
		}
	}
	return resp, nil
}

func wrapIndexUnavailable(err error) error {
	if errors.Is(err, domain.ErrIndexUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, err)
}

// lexicalSearch runs every variant through the text index and unions the hits.
func (s *SearchService) lexicalSearch(
	ctx context.Context, variants []string, limit int, filters domain.Filters,
) ([]pathHit, error) {
	if s.index == nil {
		return nil, errors.New("text index not configured")
	}

	lists := make([][]pathHit, 0, len(variants))
	for _, variant := range variants {
		hits, err := s.index.LexicalSearch(ctx, variant, limit, filters)
		if err != nil {
			return nil, err
		}
		list := make([]pathHit, len(hits))
		for i, h := range hits {
			list[i] = pathHit{id: h.DocumentID, score: h.Score, updatedAt: h.UpdatedAt}
		}
		lists = append(lists, list)
	}

	hits := unionMax(lists...)
	logger.Debug("Lexical search: %d hits", len(hits))
	return topN(hits, limit), nil
}

// semanticSearch embeds each variant and ranks stored vectors by cosine
// similarity. It never fails the search: an absent embedder yields nothing
// and a failing one yields nothing plus a warning.
func (s *SearchService) semanticSearch(
	ctx context.Context, variants []string, limit int, filters domain.Filters,
) ([]pathHit, string) {
	if s.embedder == nil || s.vectors == nil {
		return nil, ""
	}

	queries := make([][]float32, 0, len(variants))
	for _, variant := range variants {
		v, err := s.embedder.Embed(ctx, variant)
		if err != nil {
			logger.Warn("Query embedding failed: %v", err)
			return nil, "EmbeddingUnavailable: " + err.Error()
		}
		queries = append(queries, v)
	}

	stored, err := s.vectors.List(ctx, filters)
	if err != nil {
		logger.Warn("Vector lookup failed: %v", err)
		return nil, "VectorsUnavailable: " + err.Error()
	}

	lists := make([][]pathHit, 0, len(queries))
	for _, q := range queries {
		list := make([]pathHit, 0, len(stored))
		for _, dv := range stored {
			sim, ok := cosine(q, dv.Vector)
			if !ok {
				continue
			}
			list = append(list, pathHit{id: dv.DocumentID, score: sim, updatedAt: dv.UpdatedAt})
		}
		lists = append(lists, list)
	}

	hits := unionMax(lists...)
	logger.Debug("Semantic search: %d hits", len(hits))
	return topN(hits, limit), ""
}

// topN keeps the n best raw hits, ties broken by recency then id.
func topN(hits []pathHit, n int) []pathHit {
	sorted := fuse(hits, nil, 1, 0)
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	keep := make(map[string]bool, len(sorted))
	for _, f := range sorted {
		keep[f.id] = true
	}
	out := make([]pathHit, 0, len(sorted))
	for _, h := range hits {
		if keep[h.id] {
			out = append(out, h)
		}
	}
	return out
}

// cosine returns the cosine similarity of a and b. Vectors of different
// dimensions or zero magnitude are not comparable.
func cosine(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// hydrate loads documents for the fused hits, dropping any that vanished.
func (s *SearchService) hydrate(ctx context.Context, fused []fusedHit, query string) ([]domain.ScoredHit, error) {
	if len(fused) == 0 {
		return []domain.ScoredHit{}, nil
	}

	ids := make([]string, len(fused))
	for i, f := range fused {
		ids[i] = f.id
	}
	docs, err := s.docs.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]domain.ScoredHit, 0, len(fused))
	for _, f := range fused {
		doc, ok := docs[f.id]
		if !ok {
			continue
		}
		out = append(out, domain.ScoredHit{
			Document:      *doc,
			Score:         f.score,
			LexicalScore:  f.lexical,
			SemanticScore: f.semantic,
			Highlights:    generateHighlights(doc.Title+". "+doc.BodyText(), query),
		})
	}
	return out, nil
}

func (s *SearchService) cacheKey(query string, limit int, filters domain.Filters) string {
	payload, _ := json.Marshal(struct {
		Query   string         `json:"q"`
		Limit   int            `json:"l"`
		Filters domain.Filters `json:"f"`
		Config  SearchConfig   `json:"c"`
	}{query, limit, filters, s.cfg})
	sum := sha256.Sum256(payload)
	return "search:" + hex.EncodeToString(sum[:])
}

// generateHighlights creates text snippets with matched terms.
func generateHighlights(content, query string) []string {
	queryTerms := tokenize(query)
	if len(queryTerms) == 0 {
		return nil
	}

	var highlights []string
	for _, sentence := range splitSentences(content) {
		sentenceLower := strings.ToLower(sentence)
		for _, term := range queryTerms {
			if strings.Contains(sentenceLower, term) {
				highlight := sentence
				if len(highlight) > 200 {
					highlight = truncateRunes(highlight, 200) + "..."
				}
				highlights = append(highlights, highlight)
				break
			}
		}

		if len(highlights) >= 3 {
			break
		}
	}

	return highlights
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// splitSentences splits content into sentences.
func splitSentences(content string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range content {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" && s != "." {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
