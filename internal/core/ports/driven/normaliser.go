package driven

import (
	"context"

	"github.com/custodia-labs/keepsake/internal/core/domain"
)

// Normaliser turns file content into a raw record.
// Each normaliser handles specific MIME types (e.g., Markdown, EML).
type Normaliser interface {
	// SupportedMIMETypes returns the MIME types this normaliser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Kinds returns every kind Normalise can produce.
	Kinds() []domain.Kind

	// Normalise extracts kind, title, body and any extension record.
	// The caller fills in SourceID, SourceLocator and ModifiedAt.
	Normalise(ctx context.Context, in NormaliseInput) (domain.RawRecord, error)
}

// NormaliseInput is the file handed to a Normaliser.
type NormaliseInput struct {
	// Path is the file path, used for title fallbacks.
	Path string

	// MIMEType is the detected content type.
	MIMEType string

	// Content is the raw bytes.
	Content []byte
}
