package driving

import (
	"context"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// IngestService runs configured sources into the store.
type IngestService interface {
	// Ingest runs the named sources, or every source when refs is empty.
	// Returns domain.ErrUnknownSource for an unregistered name.
	Ingest(ctx context.Context, refs []domain.SourceRef, fullSync bool) (domain.RunReport, error)

	// Sources lists the registered source names.
	Sources() []string

	// Runs returns recent ingestion reports, newest first.
	Runs(ctx context.Context, limit int) ([]domain.RunReport, error)
}
