// Package sqlite provides a unified SQLite-based implementation of the
// driven store interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It implements multiple store interfaces
// through a single database:
//
//   - DocumentStore: Documents, extension records and tombstones
//   - RelationshipStore: Typed edges between documents
//   - TextIndex: FTS5 full-text index kept in sync by triggers
//   - VectorStore: Per-document embeddings as little-endian float32 blobs
//   - SyncStateStore, RunStore: Ingestion bookkeeping
//   - PlanStore: Orchestration plans
//
// # Schema
//
// The schema is managed through embedded migration units in the migrations/
// directory, one DDL unit per file. Applied units are recorded in
// schema_migrations and the schema version in schema_version. A store whose
// version is newer than this build is refused.
//
// # Data Location
//
// By default, the database is stored at ~/.keepsake/data/keepsake.db
//
// # Thread Safety
//
// All operations are serialised by a single bounded-wait write gate. A caller
// that holds the lease (see AcquireWrite) passes its context to nested calls,
// which then run under the same lease.
package sqlite
