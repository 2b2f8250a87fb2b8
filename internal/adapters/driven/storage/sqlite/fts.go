package sqlite

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/logger"
)

// Column weights for bm25: title matches count double.
const (
	titleWeight = 2.0
	bodyWeight  = 1.0
)

// textIndex implements driven.TextIndex over the documents_fts table.
type textIndex struct {
	store *Store
}

var _ driven.TextIndex = (*textIndex)(nil)

// LexicalSearch ranks documents with FTS5 bm25. The raw score is the negated
// bm25 value, so higher is better.
func (t *textIndex) LexicalSearch(
	ctx context.Context, query string, limit int, filters domain.Filters,
) ([]domain.LexicalHit, error) {
	match := matchExpression(query)
	if match == "" || limit <= 0 {
		return nil, nil
	}

	ctx, release, err := t.store.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	where, args := filterClause(filters.DocumentFilter(), "d.")
	if where == "" {
		where = " WHERE "
	} else {
		where += " AND "
	}

	q := fmt.Sprintf(`
		SELECT d.id, -bm25(documents_fts, %g, %g) AS score, d.updated_at
		FROM documents_fts
		JOIN documents d ON d.seq = documents_fts.rowid
		%s documents_fts MATCH ?
		ORDER BY score DESC, d.updated_at DESC, d.id ASC
		LIMIT ?
	`, titleWeight, bodyWeight, where)
	args = append(args, match, limit)

	rows, err := t.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, translateError(err))
	}
	defer rows.Close()

	var hits []domain.LexicalHit //nolint:prealloc // size unknown from query
	for rows.Next() {
		var hit domain.LexicalHit
		var updated int64
		if err := rows.Scan(&hit.DocumentID, &hit.Score, &updated); err != nil {
			return nil, fmt.Errorf("%w: scanning hit: %w", domain.ErrIndexUnavailable, err)
		}
		hit.UpdatedAt = fromNanos(updated)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexUnavailable, translateError(err))
	}
	return hits, nil
}

// EnsureTextIndex runs the FTS5 integrity check against the content table
// and rebuilds the index if it fails.
func (t *textIndex) EnsureTextIndex(ctx context.Context) (bool, error) {
	ctx, release, err := t.store.gate.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	_, err = t.store.db.ExecContext(ctx,
		"INSERT INTO documents_fts (documents_fts, rank) VALUES ('integrity-check', 1)")
	if err == nil {
		return false, nil
	}

	logger.Warn("Text index integrity check failed, rebuilding: %v", err)
	if _, err := t.store.db.ExecContext(ctx,
		"INSERT INTO documents_fts (documents_fts) VALUES ('rebuild')"); err != nil {
		return false, fmt.Errorf("%w: rebuild: %w", domain.ErrIndexUnavailable, translateError(err))
	}
	return true, nil
}

// matchExpression turns free text into an FTS5 query: every word becomes a
// quoted term and terms are OR-ed, so no user input is parsed as syntax.
func matchExpression(query string) string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		return ""
	}
	terms := make([]string, len(words))
	for i, w := range words {
		terms[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(terms, " OR ")
}
