package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fusionBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func hit(id string, score float64, age time.Duration) pathHit {
	return pathHit{id: id, score: score, updatedAt: fusionBase.Add(-age)}
}

func TestNormalise(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		assert.Empty(t, normalise(nil))
	})

	t.Run("min max scaling", func(t *testing.T) {
		got := normalise([]pathHit{hit("a", 10, 0), hit("b", 5, 0), hit("c", 0, 0)})
		assert.InDelta(t, 1.0, got["a"], 1e-9)
		assert.InDelta(t, 0.5, got["b"], 1e-9)
		assert.InDelta(t, 0.0, got["c"], 1e-9)
	})

	t.Run("all equal maps to one", func(t *testing.T) {
		got := normalise([]pathHit{hit("a", 3, 0), hit("b", 3, 0)})
		assert.Equal(t, 1.0, got["a"])
		assert.Equal(t, 1.0, got["b"])
	})

	t.Run("single hit maps to one", func(t *testing.T) {
		got := normalise([]pathHit{hit("a", -7.5, 0)})
		assert.Equal(t, 1.0, got["a"])
	})

	t.Run("negative scores", func(t *testing.T) {
		got := normalise([]pathHit{hit("a", -1, 0), hit("b", -3, 0)})
		assert.Equal(t, 1.0, got["a"])
		assert.Equal(t, 0.0, got["b"])
	})
}

func TestFuse_WeightsAndMissingPath(t *testing.T) {
	lexical := []pathHit{hit("a", 4, 0), hit("b", 2, 0)}
	semantic := []pathHit{hit("b", 0.9, 0), hit("c", 0.1, 0)}

	got := fuse(lexical, semantic, 0.5, 0.5)
	require.Len(t, got, 3)

	byID := map[string]fusedHit{}
	for _, f := range got {
		byID[f.id] = f
	}
	assert.InDelta(t, 0.5, byID["a"].score, 1e-9, "a: lexical 1, semantic absent")
	assert.InDelta(t, 0.5, byID["b"].score, 1e-9, "b: lexical 0, semantic 1")
	assert.InDelta(t, 0.0, byID["c"].score, 1e-9)
	assert.Equal(t, 0.0, byID["a"].semantic)
}

func TestFuse_EmptySemanticPath(t *testing.T) {
	got := fuse([]pathHit{hit("a", 5, 0), hit("b", 1, 0)}, nil, 0.5, 0.5)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].id)
	assert.InDelta(t, 0.5, got[0].score, 1e-9)
	assert.InDelta(t, 0.0, got[1].score, 1e-9)
}

func TestFuse_TieBreaks(t *testing.T) {
	lexical := []pathHit{
		hit("b", 1, time.Hour),
		hit("a", 1, time.Hour),
		hit("c", 1, 0),
	}
	got := fuse(lexical, nil, 1, 0)
	require.Len(t, got, 3)

	ids := []string{got[0].id, got[1].id, got[2].id}
	assert.Equal(t, []string{"c", "a", "b"}, ids, "newest first, then id ascending")
}

func TestFuse_ScoresStayInRange(t *testing.T) {
	lexical := []pathHit{hit("a", 12, 0), hit("b", 3, 0), hit("c", 9, 0)}
	semantic := []pathHit{hit("a", 0.2, 0), hit("c", 0.8, 0), hit("d", 0.5, 0)}

	for _, f := range fuse(lexical, semantic, 0.7, 0.3) {
		assert.GreaterOrEqual(t, f.score, 0.0)
		assert.LessOrEqual(t, f.score, 1.0)
	}
}

func TestUnionMax(t *testing.T) {
	got := unionMax(
		[]pathHit{hit("a", 1, 0), hit("b", 5, 0)},
		[]pathHit{hit("a", 3, 0), hit("c", 2, 0)},
	)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].id)
	assert.Equal(t, 3.0, got[0].score)
	assert.Equal(t, "b", got[1].id)
	assert.Equal(t, "c", got[2].id)
}
