package driven

import (
	"context"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// AuditLog is an append-only record of plan lifecycle events.
// Entries are never mutated or deleted.
type AuditLog interface {
	// Append durably records an entry.
	Append(ctx context.Context, entry domain.AuditEntry) error

	// Trail returns every entry for a correlation ID in append order.
	Trail(ctx context.Context, correlationID string) ([]domain.AuditEntry, error)
}
