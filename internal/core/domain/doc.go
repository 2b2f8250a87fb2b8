// Package domain defines the core business entities for Keepsake.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: The canonical record for any ingested item
//   - Extension: Kind-specific fields owned 1:1 by a Document
//   - Relationship: A typed, directed edge between two Documents
//   - RunReport: The outcome of one ingestion run
//   - Plan: An orchestrated multi-step operation and its Steps
//   - AuditEntry: An append-only record of a plan transition
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
