// Package embedder is the Embedder: a provider-neutral Text -> dense vector
// service that routes every call through the LLM Gateway so caching,
// pooling, and rate-limiting apply uniformly, generalized from the
// teacher's internal/rag/embedder/embedder.go Embedder interface.
package embedder

import (
	"context"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"ragfabric/internal/llmgateway"
	"ragfabric/internal/obslog"
	"ragfabric/internal/ragerr"
)

const twoSeconds = 2 * time.Second

// Dimensions is the model->dimension table from spec.md §4.3.
var Dimensions = map[string]int{
	"jina-v3":                 1024,
	"jina-v4":                 2048,
	"bge-multilingual-gemma2": 3584,
	"e5-mistral-7b":           4096,
	"bge-en-icl":              4096,
	"qwen3-8b":                4096,
}

const maxBatchSize = 128

// Embedder mirrors the teacher's Embedder contract, narrowed to the one
// implementation the gateway-backed service needs (no deterministic
// test-only variant here — tests substitute their own fake implementations
// of this interface).
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimension() int
	HealthCheck(ctx context.Context) error
}

type gatewayEmbedder struct {
	gateway *llmgateway.Gateway
	model   string
	dim     int
	logger  obslog.Logger
}

// New constructs the Embedder for a given model id. model is normalized
// through llmgateway's alias table first, so the human-readable names
// spec.md's own API examples use ("jina-embeddings-v3",
// "E5-Mistral-7B-Instruct") resolve to this table's canonical keys. Unknown
// models are rejected at construction time rather than surfacing as a
// runtime error on the first embed call.
func New(gateway *llmgateway.Gateway, model string, logger obslog.Logger) (Embedder, error) {
	canon := llmgateway.NormalizeModelAlias(model)
	dim, ok := Dimensions[canon]
	if !ok {
		return nil, ragerr.ErrModelUnknown
	}
	return &gatewayEmbedder{gateway: gateway, model: canon, dim: dim, logger: logger}, nil
}

// Factory builds per-model Embedders on demand against one shared Gateway,
// so a caller (the Ingestion Orchestrator, on a per-request
// embedding_model override) can obtain an Embedder for a model it wasn't
// wired with at startup.
type Factory struct {
	gateway *llmgateway.Gateway
	logger  obslog.Logger
}

func NewFactory(gateway *llmgateway.Gateway, logger obslog.Logger) *Factory {
	return &Factory{gateway: gateway, logger: logger}
}

// New resolves model the same way the package-level New does.
func (f *Factory) New(model string) (Embedder, error) {
	return New(f.gateway, model, f.logger)
}

func (e *gatewayEmbedder) Model() string  { return e.model }
func (e *gatewayEmbedder) Dimension() int { return e.dim }

func (e *gatewayEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var out [][]float32
	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := e.gateway.Embed(ctx, llmgateway.EmbedRequest{Model: e.model, Texts: texts[i:end]})
		if err != nil {
			return nil, err
		}
		for _, v := range resp.Vectors {
			out = append(out, normalize(v))
		}
	}
	return out, nil
}

// HealthCheck probes the gateway's view of this embedder's provider; a
// single unreachable provider marks only that provider degraded, never the
// whole embedder fleet (spec.md §4.3 active-failover contract).
func (e *gatewayEmbedder) HealthCheck(ctx context.Context) error {
	_, err := e.EmbedBatch(ctx, []string{"ping"})
	return err
}

// normalize L2-normalizes a vector; the canonical place this happens is
// after fetch, here, not inside the gateway (spec.md §4.3 / SPEC_FULL §9).
func normalize(v []float32) []float32 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * inv
	}
	return out
}

// HealthCheckAll probes every embedder concurrently with a 2-second
// timeout per provider (errgroup fan-out, per spec.md §4.3).
func HealthCheckAll(ctx context.Context, embedders map[string]Embedder) map[string]bool {
	results := make(map[string]bool, len(embedders))
	var g errgroup.Group
	type outcome struct {
		name string
		ok   bool
	}
	outcomes := make(chan outcome, len(embedders))
	for name, emb := range embedders {
		name, emb := name, emb
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, twoSeconds)
			defer cancel()
			err := emb.HealthCheck(cctx)
			outcomes <- outcome{name: name, ok: err == nil}
			return nil
		})
	}
	_ = g.Wait()
	close(outcomes)
	for o := range outcomes {
		results[o.name] = o.ok
	}
	return results
}
