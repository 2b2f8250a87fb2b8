package driving

import (
	"context"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// Engine is the full surface used by the CLI and the MCP server.
type Engine interface {
	SearchService
	IngestService
	PlanService

	// Migrate brings the store schema up to date.
	Migrate(ctx context.Context) error

	// Stats summarises store contents.
	Stats(ctx context.Context) (domain.StoreStats, error)
}
