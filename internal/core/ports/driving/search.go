package driving

import (
	"context"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// SearchService provides search capabilities to external actors.
type SearchService interface {
	// Search performs hybrid search across all stored documents.
	// Returns domain.ErrEmptyQuery for a blank query.
	Search(ctx context.Context, query string, limit int, filters domain.Filters) (domain.SearchResponse, error)
}
