// Package plaintext provides the fallback Normaliser for text files.
package plaintext

import (
	"context"
	"unicode/utf8"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
	"github.com/custodia-labs/keepsake/internal/normalisers"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles plain text documents.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedMIMETypes returns the MIME types this normaliser handles.
func (n *Normaliser) SupportedMIMETypes() []string {
	return []string{
		"text/plain",
		"text/x-go",
		"text/x-python",
		"text/x-rust",
		"text/x-shellscript",
		"text/x-sql",
		"text/csv",
		"text/yaml",
		"text/toml",
		"text/javascript",
		"text/typescript",
		"text/css",
		"application/json",
		"application/xml",
	}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Kinds returns the kinds this normaliser produces.
func (n *Normaliser) Kinds() []domain.Kind {
	return []domain.Kind{domain.KindNote, domain.KindFile}
}

// Normalise keeps the content as-is. text/plain files are notes; every
// other type is a file.
func (n *Normaliser) Normalise(_ context.Context, in driven.NormaliseInput) (domain.RawRecord, error) {
	if !utf8.Valid(in.Content) {
		return domain.RawRecord{}, domain.NewValidationError("%s is not valid UTF-8", in.Path)
	}

	kind := domain.KindFile
	if in.MIMEType == "text/plain" {
		kind = domain.KindNote
	}

	body := string(in.Content)
	return domain.RawRecord{
		Kind:       kind,
		Title:      normalisers.TitleFromPath(in.Path),
		Body:       &body,
		Attributes: domain.Attributes{"mime_type": in.MIMEType},
	}, nil
}
