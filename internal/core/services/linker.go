package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
)

// RelSenderOf links a contact to the emails it sent.
const RelSenderOf = "sender_of"

// Linker derives relationships between stored documents after ingestion.
type Linker interface {
	Name() string
	Link(ctx context.Context, docs driven.DocumentStore, rels driven.RelationshipStore) (int, error)
}

// AttributeLinker joins documents whose field values match. A field is read
// from the document's attributes first and from its extension record
// otherwise, so "emails" on a contact resolves to ContactDetails.Emails.
// Matching is case-insensitive.
type AttributeLinker struct {
	FromKind domain.Kind
	FromAttr string
	ToKind   domain.Kind
	ToAttr   string
	Type     string
}

// DefaultLinkers returns the built-in linking passes.
func DefaultLinkers() []Linker {
	return []Linker{
		AttributeLinker{
			FromKind: domain.KindContact,
			FromAttr: "emails",
			ToKind:   domain.KindEmail,
			ToAttr:   "sender",
			Type:     RelSenderOf,
		},
	}
}

// Name implements Linker.
func (l AttributeLinker) Name() string {
	return fmt.Sprintf("%s.%s->%s.%s", l.FromKind, l.FromAttr, l.ToKind, l.ToAttr)
}

// Link implements Linker. It returns the number of new edges.
func (l AttributeLinker) Link(ctx context.Context, docs driven.DocumentStore, rels driven.RelationshipStore) (int, error) {
	targets, err := docs.List(ctx, domain.DocumentFilter{Kinds: []domain.Kind{l.ToKind}})
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", l.ToKind, err)
	}

	byValue := make(map[string][]string)
	for i := range targets {
		values, err := fieldValues(ctx, docs, &targets[i], l.ToAttr)
		if err != nil {
			return 0, err
		}
		for _, v := range values {
			byValue[v] = append(byValue[v], targets[i].ID)
		}
	}
	if len(byValue) == 0 {
		return 0, nil
	}

	sources, err := docs.List(ctx, domain.DocumentFilter{Kinds: []domain.Kind{l.FromKind}})
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", l.FromKind, err)
	}

	linked := 0
	for i := range sources {
		values, err := fieldValues(ctx, docs, &sources[i], l.FromAttr)
		if err != nil {
			return linked, err
		}
		for _, v := range values {
			for _, toID := range byValue[v] {
				if toID == sources[i].ID {
					continue
				}
				created, err := rels.Add(ctx, domain.Relationship{
					FromID:   sources[i].ID,
					ToID:     toID,
					Type:     l.Type,
					Strength: 1,
				})
				if err != nil {
					return linked, fmt.Errorf("link %s -> %s: %w", sources[i].ID, toID, err)
				}
				if created {
					linked++
				}
			}
		}
	}
	return linked, nil
}

// fieldValues returns the normalised values of a field.
func fieldValues(ctx context.Context, docs driven.DocumentStore, doc *domain.Document, field string) ([]string, error) {
	values := doc.Attributes.Strings(field)
	if len(values) == 0 {
		if s := doc.Attributes.String(field, ""); s != "" {
			values = []string{s}
		}
	}

	if len(values) == 0 {
		if doc.Extension == nil {
			full, err := docs.Get(ctx, doc.ID)
			if err != nil {
				return nil, fmt.Errorf("load %s: %w", doc.ID, err)
			}
			doc.Extension = full.Extension
		}
		values = extensionValues(doc.Extension, field)
	}

	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out, nil
}

// extensionValues reads a field of an extension record by its JSON name.
func extensionValues(ext domain.Extension, field string) []string {
	if ext == nil {
		return nil
	}
	data, err := json.Marshal(ext)
	if err != nil {
		return nil
	}
	var fields domain.Attributes
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil
	}
	if values := fields.Strings(field); len(values) > 0 {
		return values
	}
	if s := fields.String(field, ""); s != "" {
		return []string{s}
	}
	return nil
}
