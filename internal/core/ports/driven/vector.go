package driven

import (
	"context"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// VectorStore persists one embedding per document.
type VectorStore interface {
	// Save stores or replaces the embedding for a document.
	Save(ctx context.Context, documentID string, vector []float32) error

	// List returns the embeddings of documents matching the filters.
	List(ctx context.Context, filters domain.Filters) ([]domain.DocumentVector, error)
}
