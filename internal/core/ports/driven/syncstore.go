package driven

import (
	"context"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// SyncStateStore persists the last successful sync per source.
type SyncStateStore interface {
	// Save stores or updates sync state.
	Save(ctx context.Context, state domain.SyncState) error

	// Get retrieves sync state for a source. Returns domain.ErrNotFound if
	// the source has never completed a sync.
	Get(ctx context.Context, sourceSystem string) (*domain.SyncState, error)
}

// RunStore persists ingestion run reports for observability.
type RunStore interface {
	// Save stores a run report.
	Save(ctx context.Context, report domain.RunReport) error

	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]domain.RunReport, error)
}
