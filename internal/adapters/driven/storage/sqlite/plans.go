package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
)

// planStore implements driven.PlanStore. Plans are stored as JSON with the
// queryable fields denormalised into columns.
type planStore struct {
	store *Store
}

var _ driven.PlanStore = (*planStore)(nil)

// Save stores or updates a plan.
func (s *planStore) Save(ctx context.Context, plan *domain.Plan) error {
	data, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshalling plan: %w", err)
	}

	ctx, release, err := s.store.gate.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO plans (id, correlation_id, status, created_at, updated_at, plan)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at,
			plan = excluded.plan
	`, plan.ID, plan.CorrelationID, plan.Status, toNanos(plan.CreatedAt), toNanos(s.store.now()), string(data))
	if err != nil {
		return fmt.Errorf("saving plan: %w", translateError(err))
	}
	return nil
}

// Get retrieves a plan.
func (s *planStore) Get(ctx context.Context, id string) (*domain.Plan, error) {
	ctx, release, err := s.store.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	var raw string
	err = s.store.db.QueryRowContext(ctx, "SELECT plan FROM plans WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", translateError(err))
	}
	return decodePlan(raw)
}

// List returns the most recent plans first.
func (s *planStore) List(ctx context.Context, limit int) ([]domain.Plan, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, release, err := s.store.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.store.db.QueryContext(ctx,
		"SELECT plan FROM plans ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying plans: %w", translateError(err))
	}
	defer rows.Close()

	var plans []domain.Plan //nolint:prealloc // size unknown from query
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning plan: %w", err)
		}
		plan, err := decodePlan(raw)
		if err != nil {
			return nil, err
		}
		plans = append(plans, *plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plans: %w", translateError(err))
	}
	return plans, nil
}

func decodePlan(raw string) (*domain.Plan, error) {
	var plan domain.Plan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return nil, fmt.Errorf("unmarshaling plan: %w", err)
	}
	return &plan, nil
}
