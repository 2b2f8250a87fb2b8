package driven

import (
	"context"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// TextIndex provides lexical retrieval over document titles and bodies.
// Backed by SQLite FTS5.
type TextIndex interface {
	// LexicalSearch returns up to limit hits for the query, best first.
	// Higher scores are better. Returns domain.ErrIndexUnavailable if the
	// index cannot be queried.
	LexicalSearch(ctx context.Context, query string, limit int, filters domain.Filters) ([]domain.LexicalHit, error)

	// EnsureTextIndex checks index consistency and rebuilds it if needed.
	// Returns true if a rebuild happened.
	EnsureTextIndex(ctx context.Context) (bool, error)
}
