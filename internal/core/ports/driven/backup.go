package driven

import "context"

// BackupSink snapshots the store before an ingestion run writes to it.
type BackupSink interface {
	// Snapshot copies the database at storePath somewhere safe.
	Snapshot(ctx context.Context, storePath string) error
}
