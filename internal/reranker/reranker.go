// Package reranker implements the Reranker stage: rerank(query, candidates,
// topN) -> topN, backed by either a hosted cross-encoder (via the Gateway's
// Rerank operation) or a local lexical-overlap approximation, selected by
// configuration behind one interface — adapted directly from
// internal/sefii/rerank.go's RerankRequest/score-map/sort shape (generalized
// off its hardcoded model name and routed through the Gateway rather than a
// bare http.Client) and internal/rag/retrieve/rerank.go's
// Reranker/NoopReranker degrade-to-passthrough default.
package reranker

import (
	"context"
	"sort"
	"strings"

	"ragfabric/internal/llmgateway"
	"ragfabric/internal/ragtypes"
)

type rerankCaller interface {
	Rerank(ctx context.Context, req llmgateway.RerankRequest) (llmgateway.RerankResponse, error)
}

// Reranker reorders candidates by relevance to query, keeping the top N.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []ragtypes.Candidate, topN int) ([]ragtypes.Candidate, error)
}

// Hosted calls a hosted cross-encoder (BGE-v2-M3 / Jina) through the
// Gateway's Rerank operation. On failure it degrades to the input order,
// truncated to topN, per spec.md §4.9's failure policy.
type Hosted struct {
	gateway rerankCaller
	model   string
}

func NewHosted(gateway *llmgateway.Gateway, model string) *Hosted {
	return &Hosted{gateway: gateway, model: model}
}

func (h *Hosted) Rerank(ctx context.Context, query string, candidates []ragtypes.Candidate, topN int) ([]ragtypes.Candidate, error) {
	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Chunk.Text
	}

	resp, err := h.gateway.Rerank(ctx, llmgateway.RerankRequest{
		Model:     h.model,
		Query:     query,
		TopN:      topN,
		Documents: docs,
	})
	if err != nil {
		return truncatePassthrough(candidates, topN), nil
	}

	scores := make(map[int]float64, len(resp.Results))
	for _, r := range resp.Results {
		scores[r.Index] = r.RelevanceScore
	}
	out := make([]ragtypes.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		if s, ok := scores[i]; ok {
			out[i].Score = s
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	return truncatePassthrough(out, topN), nil
}

// Local approximates a cross-encoder with lexical term overlap, avoiding an
// ONNX runtime dependency the example pack never reaches for.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (Local) Rerank(ctx context.Context, query string, candidates []ragtypes.Candidate, topN int) ([]ragtypes.Candidate, error) {
	terms := strings.Fields(strings.ToLower(query))
	out := make([]ragtypes.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].Score = overlapScore(out[i].Chunk.Text, terms)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return truncatePassthrough(out, topN), nil
}

func overlapScore(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	var hits int
	for _, t := range terms {
		if t != "" && strings.Contains(lower, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

func truncatePassthrough(candidates []ragtypes.Candidate, topN int) []ragtypes.Candidate {
	if topN > 0 && len(candidates) > topN {
		return candidates[:topN]
	}
	return candidates
}
