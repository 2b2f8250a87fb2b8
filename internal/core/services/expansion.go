package services

import "strings"

// DefaultMaxVariants caps the number of query variants, original included.
const DefaultMaxVariants = 5

// DefaultSynonyms is the built-in synonym table used when none is configured.
func DefaultSynonyms() map[string][]string {
	return map[string][]string{
		"meeting":  {"call", "sync"},
		"call":     {"meeting"},
		"email":    {"mail", "message"},
		"mail":     {"email"},
		"message":  {"chat", "email"},
		"doc":      {"document"},
		"document": {"doc", "file"},
		"note":     {"memo"},
		"todo":     {"reminder", "task"},
		"reminder": {"todo", "task"},
		"task":     {"todo", "reminder"},
		"event":    {"appointment"},
		"contact":  {"person"},
		"trip":     {"travel", "flight"},
		"invoice":  {"bill", "receipt"},
	}
}

// QueryExpander derives deterministic query variants from a static synonym
// table. The same query and table always yield the same variants in the
// same order.
type QueryExpander struct {
	synonyms    map[string][]string
	maxVariants int
}

// NewQueryExpander creates an expander. Synonym keys and values are
// tokenized, so the table is case and width insensitive.
func NewQueryExpander(synonyms map[string][]string, maxVariants int) *QueryExpander {
	if maxVariants <= 0 {
		maxVariants = DefaultMaxVariants
	}
	table := make(map[string][]string, len(synonyms))
	for key, values := range synonyms {
		k := strings.Join(tokenize(key), " ")
		if k == "" {
			continue
		}
		for _, v := range values {
			if norm := strings.Join(tokenize(v), " "); norm != "" && norm != k {
				table[k] = append(table[k], norm)
			}
		}
	}
	return &QueryExpander{synonyms: table, maxVariants: maxVariants}
}

// Expand returns the original query followed by single-substitution
// variants: tokens are visited left to right and each token's synonyms in
// table order. Duplicates are dropped and the result is capped.
func (e *QueryExpander) Expand(query string) []string {
	variants := []string{query}
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return variants
	}

	seen := map[string]bool{strings.Join(tokens, " "): true}
	for i, token := range tokens {
		for _, synonym := range e.synonyms[token] {
			if len(variants) >= e.maxVariants {
				return variants
			}
			replaced := make([]string, len(tokens))
			copy(replaced, tokens)
			replaced[i] = synonym
			variant := strings.Join(replaced, " ")
			if seen[variant] {
				continue
			}
			seen[variant] = true
			variants = append(variants, variant)
		}
	}
	return variants
}
