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

// ==================== Sync State Store ====================

// syncStateStore implements driven.SyncStateStore.
type syncStateStore struct {
	store *Store
}

var _ driven.SyncStateStore = (*syncStateStore)(nil)

// Save stores or updates sync state.
func (s *syncStateStore) Save(ctx context.Context, state domain.SyncState) error {
	ctx, release, err := s.store.gate.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO sync_states (source_system, last_sync)
		VALUES (?, ?)
		ON CONFLICT(source_system) DO UPDATE SET
			last_sync = excluded.last_sync
	`, state.SourceSystem, toNanos(state.LastSync))
	if err != nil {
		return fmt.Errorf("saving sync state: %w", translateError(err))
	}
	return nil
}

// Get retrieves sync state for a source.
func (s *syncStateStore) Get(ctx context.Context, sourceSystem string) (*domain.SyncState, error) {
	ctx, release, err := s.store.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	state := domain.SyncState{SourceSystem: sourceSystem}
	var lastSync int64
	err = s.store.db.QueryRowContext(ctx,
		"SELECT last_sync FROM sync_states WHERE source_system = ?", sourceSystem,
	).Scan(&lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning sync state: %w", translateError(err))
	}
	state.LastSync = fromNanos(lastSync)
	return &state, nil
}

// ==================== Run Store ====================

// runStore implements driven.RunStore.
type runStore struct {
	store *Store
}

var _ driven.RunStore = (*runStore)(nil)

// Save stores a run report as JSON.
func (s *runStore) Save(ctx context.Context, report domain.RunReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshalling run report: %w", err)
	}

	ctx, release, err := s.store.gate.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO ingest_runs (run_id, started_at, finished_at, full_sync, report)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			finished_at = excluded.finished_at,
			report = excluded.report
	`, report.RunID, toNanos(report.StartedAt), toNanos(report.FinishedAt), report.FullSync, string(data))
	if err != nil {
		return fmt.Errorf("saving run report: %w", translateError(err))
	}
	return nil
}

// List returns the most recent runs first.
func (s *runStore) List(ctx context.Context, limit int) ([]domain.RunReport, error) {
	if limit <= 0 {
		limit = 20
	}

	ctx, release, err := s.store.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.store.db.QueryContext(ctx,
		"SELECT report FROM ingest_runs ORDER BY started_at DESC, run_id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", translateError(err))
	}
	defer rows.Close()

	var reports []domain.RunReport //nolint:prealloc // size unknown from query
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		var report domain.RunReport
		if err := json.Unmarshal([]byte(raw), &report); err != nil {
			return nil, fmt.Errorf("unmarshaling run: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", translateError(err))
	}
	return reports, nil
}
