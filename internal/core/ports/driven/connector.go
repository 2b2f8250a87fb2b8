package driven

import (
	"context"
	"iter"
	"time"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// SourceAdapter yields raw records from one external source.
// Source-specific extraction (mail, calendar, contacts, files) lives
// behind this interface.
type SourceAdapter interface {
	// Name returns the source system name stamped on every document.
	Name() string

	// Kinds returns the document kinds this source produces. After a clean
	// full sync, live documents of these kinds that were not yielded are
	// tombstoned.
	Kinds() []domain.Kind

	// Fetch yields records in source order. since is the last successful
	// sync, or nil for the first run. A non-nil error aborts the source
	// unless it is a validation error, which skips the record.
	Fetch(ctx context.Context, since *time.Time, fullSync bool) iter.Seq2[domain.RawRecord, error]
}

// Watcher is implemented by source adapters that can report changes as
// they happen.
type Watcher interface {
	// Watch emits the adapter name each time the source changes, until ctx
	// is cancelled.
	Watch(ctx context.Context) (<-chan string, error)
}
