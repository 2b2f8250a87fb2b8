package domain

import "strings"

// SourceConfig describes one configured source adapter.
type SourceConfig struct {
	// Name is the source system name stamped on every document.
	Name string

	// Type identifies the adapter (e.g., "filesystem", "jsonl").
	Type string

	// Path is the directory or file the adapter reads.
	Path string

	// Kinds restricts the kinds the adapter claims. Empty means the
	// adapter's default.
	Kinds []Kind
}

// Validate checks the fields every adapter needs.
func (s SourceConfig) Validate() error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return NewValidationError("source name is required")
	case s.Type == "":
		return NewValidationError("source %q: type is required", s.Name)
	case s.Path == "":
		return NewValidationError("source %q: path is required", s.Name)
	}
	for _, k := range s.Kinds {
		if !k.IsValid() {
			return NewValidationError("source %q: invalid kind %q", s.Name, k)
		}
	}
	return nil
}
