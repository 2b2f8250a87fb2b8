package domain

import "time"

// Filters narrows a search.
type Filters struct {
	// Kinds restricts results to the given document kinds.
	Kinds []Kind `json:"kinds,omitempty"`

	// SourceSystems restricts results to the given sources.
	SourceSystems []string `json:"source_systems,omitempty"`

	// IncludeDeleted includes tombstoned documents.
	IncludeDeleted bool `json:"include_deleted,omitempty"`

	// UpdatedAfter and UpdatedBefore bound updated_at.
	UpdatedAfter  *time.Time `json:"updated_after,omitempty"`
	UpdatedBefore *time.Time `json:"updated_before,omitempty"`
}

// DocumentFilter converts the search filters to a store filter.
func (f Filters) DocumentFilter() DocumentFilter {
	return DocumentFilter{
		Kinds:          f.Kinds,
		SourceSystems:  f.SourceSystems,
		IncludeDeleted: f.IncludeDeleted,
		UpdatedAfter:   f.UpdatedAfter,
		UpdatedBefore:  f.UpdatedBefore,
	}
}

// ScoredHit is a single fused search result.
type ScoredHit struct {
	// Document is the matched document.
	Document Document `json:"document"`

	// Score is the fused score in [0, LexicalWeight+SemanticWeight].
	Score float64 `json:"score"`

	// LexicalScore and SemanticScore are the normalised per-path scores.
	LexicalScore  float64 `json:"lexical_score"`
	SemanticScore float64 `json:"semantic_score"`

	// Highlights contains snippets with matched terms.
	Highlights []string `json:"highlights,omitempty"`
}

// SearchResponse is the result of a hybrid search.
type SearchResponse struct {
	Hits []ScoredHit `json:"hits"`

	// Warnings lists degradations, e.g. an unavailable retrieval path.
	Warnings []string `json:"warnings,omitempty"`

	// Variants lists the query variants that were executed.
	Variants []string `json:"variants,omitempty"`
}

// Degraded reports whether any retrieval path was unavailable.
func (r SearchResponse) Degraded() bool {
	return len(r.Warnings) > 0
}

// LexicalHit is a raw result from the text index.
type LexicalHit struct {
	DocumentID string
	Score      float64
	UpdatedAt  time.Time
}

// DocumentVector is a stored per-document embedding.
type DocumentVector struct {
	DocumentID string
	Vector     []float32
	UpdatedAt  time.Time
}
