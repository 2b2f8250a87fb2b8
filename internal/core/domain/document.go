package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// documentIDDomain separates document identity hashes from any other
// hash computed over the same bytes.
const documentIDDomain = "keepsake/document/v1"

// Kind classifies a Document.
type Kind string

// Built-in document kinds.
const (
	KindEmail    Kind = "email"
	KindMessage  Kind = "message"
	KindEvent    Kind = "event"
	KindReminder Kind = "reminder"
	KindNote     Kind = "note"
	KindFile     Kind = "file"
	KindContact  Kind = "contact"
)

// IsValid returns true if the kind is non-empty.
// Kinds are an open set; adapters may introduce their own.
func (k Kind) IsValid() bool {
	return k != ""
}

// String returns the string representation.
func (k Kind) String() string {
	return string(k)
}

// Document is the canonical record for any ingested item.
// Its ID is a pure function of (SourceSystem, SourceID), so re-ingesting
// the same source record never changes it.
type Document struct {
	// ID is the stable identifier, see DocumentID.
	ID string `json:"id"`

	// Kind classifies the document (email, event, note, ...).
	Kind Kind `json:"kind"`

	// Title is the human-readable title.
	Title string `json:"title"`

	// Body is the full text content. Nil when the source has none.
	Body *string `json:"body,omitempty"`

	// SourceSystem names the adapter that produced the record.
	SourceSystem string `json:"source_system"`

	// SourceID is the record's identifier within its source system.
	SourceID string `json:"source_id"`

	// SourceLocator is an opaque pointer back to the origin (e.g. a URI).
	SourceLocator string `json:"source_locator,omitempty"`

	// ContentHash is used for change detection between ingestions.
	ContentHash string `json:"content_hash"`

	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	LastSeenAt time.Time `json:"last_seen_at"`

	// Deleted marks a tombstone. Tombstones are never physically removed.
	Deleted bool `json:"deleted"`

	// Attributes holds opaque structured metadata.
	Attributes Attributes `json:"attributes,omitempty"`

	// Extension holds the kind-specific record, if any.
	Extension Extension `json:"-"`
}

// BodyText returns the body or an empty string.
func (d *Document) BodyText() string {
	if d.Body == nil {
		return ""
	}
	return *d.Body
}

// DocumentID derives the stable document identifier for a source record.
func DocumentID(sourceSystem, sourceID string) string {
	h := sha256.New()
	h.Write([]byte(documentIDDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(sourceSystem))
	h.Write([]byte{0x00})
	h.Write([]byte(sourceID))
	return "doc_" + hex.EncodeToString(h.Sum(nil))[:32]
}

// RawRecord is a single record yielded by a SourceAdapter.
// It is the adapter's output before it reaches the document store.
type RawRecord struct {
	Kind          Kind
	SourceID      string
	Title         string
	Body          *string
	SourceLocator string
	Attributes    Attributes
	Extension     Extension

	// ModifiedAt is the source's own modification time, if known.
	ModifiedAt time.Time
}

// UpsertInput is the store-facing form of a record.
type UpsertInput struct {
	Kind          Kind
	SourceSystem  string
	SourceID      string
	Title         string
	Body          *string
	SourceLocator string
	Attributes    Attributes
	Extension     Extension
}

// Validate checks the fields required to compute an identity.
func (in UpsertInput) Validate() error {
	switch {
	case in.SourceSystem == "":
		return NewValidationError("source_system is required")
	case in.SourceID == "":
		return NewValidationError("source_id is required")
	case !in.Kind.IsValid():
		return NewValidationError("kind is required")
	}
	if in.Extension != nil && in.Extension.ExtensionKind() != in.Kind {
		return NewValidationError("extension kind %q does not match document kind %q",
			in.Extension.ExtensionKind(), in.Kind)
	}
	return nil
}

// ContentHash digests everything an ingestion can change. Attributes are
// serialized with sorted keys, so the hash does not depend on map order.
func (in UpsertInput) ContentHash() (string, error) {
	var ext any
	if in.Extension != nil {
		ext = in.Extension
	}
	attrs := in.Attributes
	if len(attrs) == 0 {
		attrs = nil
	}
	data, err := json.Marshal(struct {
		Kind       Kind       `json:"kind"`
		Title      string     `json:"title"`
		Body       *string    `json:"body"`
		Locator    string     `json:"locator"`
		Attributes Attributes `json:"attributes"`
		Extension  any        `json:"extension"`
	}{in.Kind, in.Title, in.Body, in.SourceLocator, attrs, ext})
	if err != nil {
		return "", fmt.Errorf("%w: encode content: %s", ErrInvalidInput, err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// UpsertResult reports how an upsert was applied.
type UpsertResult struct {
	ID string

	// Created is true when the row did not exist before.
	Created bool

	// Changed is true when an existing row's content hash differed.
	Changed bool

	// Restored is true when the upsert cleared a tombstone.
	Restored bool

	ContentHash string
}

// Relationship is a directed, typed edge between two Documents.
type Relationship struct {
	FromID    string    `json:"from_id"`
	ToID      string    `json:"to_id"`
	Type      string    `json:"relationship_type"`
	Strength  float64   `json:"strength"`
	CreatedAt time.Time `json:"created_at"`
}

// DocumentFilter narrows document listings and search.
type DocumentFilter struct {
	Kinds          []Kind
	SourceSystems  []string
	IncludeDeleted bool
	UpdatedAfter   *time.Time
	UpdatedBefore  *time.Time
	Limit          int
}

// StoreStats summarises store contents.
type StoreStats struct {
	Documents     int
	Tombstones    int
	Relationships int
	Vectors       int
	ByKind        map[Kind]int
	SchemaVersion int
}
