package driven

import (
	"context"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// WriteGate serialises access to the store. Every store operation acquires
// it; a caller holding a lease passes the returned context down so nested
// calls reuse the lease instead of waiting on themselves.
type WriteGate interface {
	// AcquireWrite waits (bounded) for the single writer lease.
	// Returns domain.ErrWriteTimeout if the wait elapses.
	AcquireWrite(ctx context.Context) (context.Context, func(), error)
}

// DocumentStore persists documents and their extension records.
// Backed by SQLite.
type DocumentStore interface {
	WriteGate

	// Upsert inserts or updates a document and its extension record in one
	// transaction. The document ID is derived from (SourceSystem, SourceID).
	Upsert(ctx context.Context, in domain.UpsertInput) (domain.UpsertResult, error)

	// MarkAbsent tombstones live documents of the given kind and source whose
	// IDs are not in seen. Returns the number of tombstoned rows.
	MarkAbsent(ctx context.Context, kind domain.Kind, sourceSystem string, seen map[string]struct{}) (int, error)

	// Get retrieves a document by ID. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, id string) (*domain.Document, error)

	// GetBySource retrieves a document by its source identity.
	GetBySource(ctx context.Context, sourceSystem, sourceID string) (*domain.Document, error)

	// GetMany retrieves documents by ID. Missing IDs are omitted.
	GetMany(ctx context.Context, ids []string) (map[string]*domain.Document, error)

	// List returns documents matching the filter, most recently updated first.
	List(ctx context.Context, filter domain.DocumentFilter) ([]domain.Document, error)

	// SetDeleted sets or clears the tombstone flag and returns the previous value.
	SetDeleted(ctx context.Context, id string, deleted bool) (bool, error)

	// SetAttribute sets one attribute and returns its previous value.
	// A nil value removes the key. existed is false when the key was absent.
	SetAttribute(ctx context.Context, id, key string, value any) (previous any, existed bool, err error)

	// Stats summarises store contents.
	Stats(ctx context.Context) (domain.StoreStats, error)

	// Checkpoint flushes the write-ahead log into the main database file.
	Checkpoint(ctx context.Context) error

	// Migrate brings the schema up to date. Idempotent.
	Migrate(ctx context.Context) error

	// Path returns the database file path.
	Path() string
}

// RelationshipStore persists typed edges between documents.
type RelationshipStore interface {
	// Add creates an edge. Returns false if it already existed.
	Add(ctx context.Context, rel domain.Relationship) (bool, error)

	// Remove deletes an edge. Returns false if it did not exist.
	Remove(ctx context.Context, fromID, toID, relType string) (bool, error)

	// ForDocument returns every edge touching the document.
	ForDocument(ctx context.Context, id string) ([]domain.Relationship, error)
}
