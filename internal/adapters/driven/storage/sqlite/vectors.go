package sqlite

import (
	"context"
	"fmt"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
)

// vectorStore implements driven.VectorStore.
type vectorStore struct {
	store *Store
}

var _ driven.VectorStore = (*vectorStore)(nil)

// Save stores or replaces the embedding for a document.
func (s *vectorStore) Save(ctx context.Context, documentID string, vector []float32) error {
	if len(vector) == 0 {
		return domain.NewValidationError("empty embedding for %s", documentID)
	}

	ctx, release, err := s.store.gate.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO document_vectors (document_id, dimensions, embedding, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET
			dimensions = excluded.dimensions,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`, documentID, len(vector), float32SliceToBytes(vector), toNanos(s.store.now()))
	if err != nil {
		return fmt.Errorf("saving vector: %w", translateError(err))
	}
	return nil
}

// List returns embeddings of documents matching the filters.
func (s *vectorStore) List(ctx context.Context, filters domain.Filters) ([]domain.DocumentVector, error) {
	ctx, release, err := s.store.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	where, args := filterClause(filters.DocumentFilter(), "d.")
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT v.document_id, v.embedding, d.updated_at
		FROM document_vectors v
		JOIN documents d ON d.id = v.document_id`+where, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", translateError(err))
	}
	defer rows.Close()

	var out []domain.DocumentVector //nolint:prealloc // size unknown from query
	for rows.Next() {
		var v domain.DocumentVector
		var blob []byte
		var updated int64
		if err := rows.Scan(&v.DocumentID, &blob, &updated); err != nil {
			return nil, fmt.Errorf("scanning vector: %w", err)
		}
		v.Vector = bytesToFloat32Slice(blob)
		v.UpdatedAt = fromNanos(updated)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vectors: %w", translateError(err))
	}
	return out, nil
}
