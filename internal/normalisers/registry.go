package normalisers

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/custodia-labs/keepsake/internal/core/domain"
	"github.com/custodia-labs/keepsake/internal/core/ports/driven"
)

// Registry maps MIME types to normalisers.
type Registry struct {
	byType map[string][]driven.Normaliser
}

// NewRegistry creates a registry holding the given normalisers.
func NewRegistry(normalisers ...driven.Normaliser) *Registry {
	r := &Registry{byType: make(map[string][]driven.Normaliser)}
	for _, n := range normalisers {
		r.Register(n)
	}
	return r
}

// Register adds a normaliser for every MIME type it supports.
func (r *Registry) Register(n driven.Normaliser) {
	for _, mimeType := range n.SupportedMIMETypes() {
		list := append(r.byType[mimeType], n)
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority() > list[j].Priority() })
		r.byType[mimeType] = list
	}
}

// Get returns the preferred normaliser for a MIME type.
func (r *Registry) Get(mimeType string) (driven.Normaliser, bool) {
	list := r.byType[mimeType]
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// Kinds returns every kind the registered normalisers produce, sorted.
func (r *Registry) Kinds() []domain.Kind {
	seen := make(map[domain.Kind]bool)
	var kinds []domain.Kind
	for _, list := range r.byType {
		for _, n := range list {
			for _, k := range n.Kinds() {
				if !seen[k] {
					seen[k] = true
					kinds = append(kinds, k)
				}
			}
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// MIMETypes returns every registered MIME type, sorted.
func (r *Registry) MIMETypes() []string {
	types := make([]string, 0, len(r.byType))
	for t := range r.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// TitleFromPath derives a title from a file name: extension dropped,
// underscores and dashes turned into spaces.
func TitleFromPath(path string) string {
	filename := filepath.Base(path)
	if ext := filepath.Ext(filename); ext != "" {
		filename = strings.TrimSuffix(filename, ext)
	}
	filename = strings.ReplaceAll(filename, "_", " ")
	filename = strings.ReplaceAll(filename, "-", " ")
	return filename
}
