// Package search implements the Search stage: embed query -> vector store
// search -> additive metadata boost -> re-sort, generalized from the
// teacher's internal/rag/retrieve parallel-fan-out shape (candidates.go)
// narrowed to the single dense-search path spec.md §4.8 calls for.
package search

import (
	"context"
	"sort"
	"strings"

	"ragfabric/internal/embedder"
	"ragfabric/internal/ragtypes"
	"ragfabric/internal/vectorstore"
)

// Boost weights are canonical per spec.md §4.8; the sum of all boosts
// applied to a single candidate is capped at maxBoost.
const (
	boostQuestions = 0.20
	boostKeywords  = 0.15
	boostTopics    = 0.10
	boostSummary   = 0.05
	maxBoost       = 0.50
)

// Options carries the per-call toggles spec.md §4.8 exposes.
type Options struct {
	TopK          int
	Tenant        string
	MetadataBoost bool // default true; caller must set explicitly to disable
	Filter        vectorstore.Filter
}

type Searcher struct {
	embedder embedder.Embedder
	store    vectorstore.Store
}

func New(emb embedder.Embedder, store vectorstore.Store) *Searcher {
	return &Searcher{embedder: emb, store: store}
}

// Search runs one query against one collection: embed, vector search,
// optional metadata boost + re-sort. The returned list has length <= TopK,
// ranked solely by (score + boosts), ties broken by ascending ChunkIndex
// (spec.md §4.8 invariants).
func (s *Searcher) Search(ctx context.Context, query, collection string, opt Options) ([]ragtypes.Candidate, error) {
	vecs, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}

	candidates, err := s.store.Search(ctx, collection, vecs[0], opt.TopK, opt.Tenant, opt.Filter)
	if err != nil {
		return nil, err
	}

	if opt.MetadataBoost {
		terms := queryTerms(query)
		for i := range candidates {
			candidates[i].Score += boostFor(candidates[i].Chunk, terms)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Chunk.ChunkIndex < candidates[j].Chunk.ChunkIndex
	})

	if opt.TopK > 0 && len(candidates) > opt.TopK {
		candidates = candidates[:opt.TopK]
	}
	return candidates, nil
}

func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()[]{}")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// boostFor sums the additive weight of every metadata field that overlaps
// any query term, capped at maxBoost.
func boostFor(chunk ragtypes.Chunk, terms []string) float64 {
	var total float64
	if containsAny(chunk.Questions, terms) {
		total += boostQuestions
	}
	if containsAny(chunk.Keywords, terms) {
		total += boostKeywords
	}
	if containsAny(chunk.Topics, terms) {
		total += boostTopics
	}
	if containsAny(chunk.Summary, terms) {
		total += boostSummary
	}
	if total > maxBoost {
		total = maxBoost
	}
	return total
}

func containsAny(field string, terms []string) bool {
	if field == "" {
		return false
	}
	lower := strings.ToLower(field)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
