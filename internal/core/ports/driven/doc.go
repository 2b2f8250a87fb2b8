// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the engine to function:
//
//   - DocumentStore: Document persistence, tombstones and the write gate
//   - RelationshipStore: Typed edges between documents
//   - TextIndex: Lexical (full-text) retrieval
//   - VectorStore: Per-document embeddings
//   - SyncStateStore, RunStore: Ingestion bookkeeping
//   - PlanStore: Orchestration plan persistence
//   - AuditLog: Append-only plan lifecycle trail
//   - SourceAdapter: Yields raw records from an external source
//
// # Optional Interfaces
//
// These can be nil - the engine degrades gracefully:
//
//   - EmbeddingProvider: Without it, semantic search returns nothing.
//   - BackupSink: Without it, ingestion runs without a pre-write snapshot.
//   - Cache: Without it, every search hits the store.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
