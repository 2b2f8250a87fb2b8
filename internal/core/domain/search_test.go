package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilters_DocumentFilter(t *testing.T) {
	after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := Filters{
		Kinds:          []Kind{KindEmail, KindNote},
		SourceSystems:  []string{"mail"},
		IncludeDeleted: true,
		UpdatedAfter:   &after,
	}

	df := f.DocumentFilter()

	assert.Equal(t, f.Kinds, df.Kinds)
	assert.Equal(t, []string{"mail"}, df.SourceSystems)
	assert.True(t, df.IncludeDeleted)
	assert.Equal(t, &after, df.UpdatedAfter)
	assert.Nil(t, df.UpdatedBefore)
}

func TestSearchResponse_Degraded(t *testing.T) {
	assert.False(t, SearchResponse{}.Degraded())
	assert.True(t, SearchResponse{Warnings: []string{"semantic search unavailable"}}.Degraded())
}
