package sqlite

import (
	"context"
	"fmt"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
)

// relationshipStore implements driven.RelationshipStore.
type relationshipStore struct {
	store *Store
}

var _ driven.RelationshipStore = (*relationshipStore)(nil)

// Add creates an edge. Both endpoints must exist.
func (s *relationshipStore) Add(ctx context.Context, rel domain.Relationship) (bool, error) {
	if rel.FromID == "" || rel.ToID == "" || rel.Type == "" {
		return false, domain.NewValidationError("relationship needs from_id, to_id and type")
	}
	if rel.Strength == 0 {
		rel.Strength = 1
	}

	ctx, release, err := s.store.gate.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	created := rel.CreatedAt
	if created.IsZero() {
		created = s.store.now()
	}

	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO relationships (from_id, to_id, relationship_type, strength, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(from_id, to_id, relationship_type) DO NOTHING
	`, rel.FromID, rel.ToID, rel.Type, rel.Strength, toNanos(created))
	if err != nil {
		return false, fmt.Errorf("adding relationship: %w", translateError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("adding relationship: %w", translateError(err))
	}
	return n > 0, nil
}

// Remove deletes an edge.
func (s *relationshipStore) Remove(ctx context.Context, fromID, toID, relType string) (bool, error) {
	ctx, release, err := s.store.gate.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer release()

	res, err := s.store.db.ExecContext(ctx, `
		DELETE FROM relationships WHERE from_id = ? AND to_id = ? AND relationship_type = ?
	`, fromID, toID, relType)
	if err != nil {
		return false, fmt.Errorf("removing relationship: %w", translateError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("removing relationship: %w", translateError(err))
	}
	return n > 0, nil
}

// ForDocument returns every edge touching the document.
func (s *relationshipStore) ForDocument(ctx context.Context, id string) ([]domain.Relationship, error) {
	ctx, release, err := s.store.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT from_id, to_id, relationship_type, strength, created_at
		FROM relationships WHERE from_id = ? OR to_id = ?
		ORDER BY created_at, from_id, to_id, relationship_type
	`, id, id)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", translateError(err))
	}
	defer rows.Close()

	var rels []domain.Relationship //nolint:prealloc // size unknown from query
	for rows.Next() {
		var rel domain.Relationship
		var created int64
		if err := rows.Scan(&rel.FromID, &rel.ToID, &rel.Type, &rel.Strength, &created); err != nil {
			return nil, fmt.Errorf("scanning relationship: %w", err)
		}
		rel.CreatedAt = fromNanos(created)
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relationships: %w", translateError(err))
	}
	return rels, nil
}
