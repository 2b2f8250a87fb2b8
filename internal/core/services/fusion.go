package services

import (
	"sort"
	"time"
)

// Default fusion weights.
const (
	DefaultLexicalWeight  = 0.5
	DefaultSemanticWeight = 0.5
)

// pathHit is a raw result from one retrieval path.
type pathHit struct {
	id        string
	score     float64
	updatedAt time.Time
}

// fusedHit is a document after score fusion.
type fusedHit struct {
	id        string
	score     float64
	lexical   float64
	semantic  float64
	updatedAt time.Time
}

// unionMax merges hits from several query variants, keeping the best raw
// score per document.
func unionMax(lists ...[]pathHit) []pathHit {
	best := make(map[string]pathHit)
	var order []string
	for _, list := range lists {
		for _, h := range list {
			prev, ok := best[h.id]
			if !ok {
				order = append(order, h.id)
				best[h.id] = h
				continue
			}
			if h.score > prev.score {
				best[h.id] = h
			}
		}
	}
	out := make([]pathHit, 0, len(order))
	for _, id := range order {
		out = append(out, best[id])
	}
	return out
}

// normalise maps raw scores onto [0, 1] with min-max scaling. A path whose
// scores are all equal maps every hit to 1.
func normalise(hits []pathHit) map[string]float64 {
	out := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return out
	}

	lo, hi := hits[0].score, hits[0].score
	for _, h := range hits[1:] {
		lo = min(lo, h.score)
		hi = max(hi, h.score)
	}

	for _, h := range hits {
		n := 1.0
		if hi > lo {
			n = (h.score - lo) / (hi - lo)
		}
		if prev, ok := out[h.id]; !ok || n > prev {
			out[h.id] = n
		}
	}
	return out
}

// fuse combines the two paths: score = wLex*nLex + wSem*nSem, where a
// document missing from a path contributes 0 for it. Results are sorted by
// score desc, then updated_at desc, then id asc.
func fuse(lexical, semantic []pathHit, wLex, wSem float64) []fusedHit {
	nLex := normalise(lexical)
	nSem := normalise(semantic)

	byID := make(map[string]*fusedHit, len(lexical)+len(semantic))
	add := func(h pathHit) {
		f, ok := byID[h.id]
		if !ok {
			f = &fusedHit{id: h.id, updatedAt: h.updatedAt}
			byID[h.id] = f
		}
		if h.updatedAt.After(f.updatedAt) {
			f.updatedAt = h.updatedAt
		}
	}
	for _, h := range lexical {
		add(h)
	}
	for _, h := range semantic {
		add(h)
	}

	out := make([]fusedHit, 0, len(byID))
	for id, f := range byID {
		f.lexical = nLex[id]
		f.semantic = nSem[id]
		f.score = wLex*f.lexical + wSem*f.semantic
		out = append(out, *f)
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.updatedAt.Equal(b.updatedAt) {
			return a.updatedAt.After(b.updatedAt)
		}
		return a.id < b.id
	})
	return out
}
