package llmgateway

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/semaphore"

	"ragfabric/internal/obslog"
	"ragfabric/internal/ragerr"
)

// retry backoffs for the two retryable error classes (spec.md §4.2 /
// internal/ragerr.Retryable: UpstreamTimeout, RateLimited).
var retryBackoffs = []time.Duration{250 * time.Millisecond, 750 * time.Millisecond}

// Config wires the gateway's credentials and tuning knobs; built from
// internal/config at process start.
type Config struct {
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	GeminiAPIKey    string
	JinaAPIKey      string
	JinaBaseURL     string

	CacheSize      int
	CacheTTL       time.Duration
	MaxConcurrency int64
	RedisAddr      string
}

// Gateway is the single egress point for chat/embed/rerank. Every provider
// HTTP client it owns is a process-owned singleton, built once here and
// never closed by anything but process shutdown (§4.7's "Critical detail"
// rule, generalized gateway-wide).
type Gateway struct {
	openai    *openAIClient
	jina      *openAIClient // OpenAI-compatible client pointed at the Jina BaseURL
	anthropic *anthropicClient
	gemini    *geminiClient

	cache *responseCache
	redis *redis.Client

	sem *semaphore.Weighted

	logger  obslog.Logger
	metrics obslog.Metrics
}

// New builds the gateway's provider clients and shared infrastructure.
// Every *http.Client here comes from obslog.NewHTTPClient, which pools
// ≥200 idle conns/host and ≥1000 total, wrapped in otelhttp.
func New(ctx context.Context, cfg Config, logger obslog.Logger, metrics obslog.Metrics) (*Gateway, error) {
	openaiHTTP := obslog.NewHTTPClient(30 * time.Second)
	jinaHTTP := obslog.NewHTTPClient(30 * time.Second)
	anthropicHTTP := obslog.NewHTTPClient(60 * time.Second)
	geminiHTTP := obslog.NewHTTPClient(60 * time.Second)

	gw := &Gateway{
		openai:    newOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, openaiHTTP),
		jina:      newOpenAIClient(cfg.JinaAPIKey, cfg.JinaBaseURL, jinaHTTP),
		anthropic: newAnthropicClient(cfg.AnthropicAPIKey, anthropicHTTP),
		cache:     newResponseCache(cfg.CacheSize, cfg.CacheTTL),
		sem:       semaphore.NewWeighted(concurrencyOrDefault(cfg.MaxConcurrency)),
		logger:    logger,
		metrics:   metrics,
	}

	gemini, err := newGeminiClient(ctx, cfg.GeminiAPIKey, geminiHTTP)
	if err != nil {
		// A missing/invalid Gemini key degrades that one provider family;
		// it does not block the gateway from serving OpenAI/Anthropic.
		logger.Error("gemini_client_init_failed", map[string]any{"error": err.Error()})
	} else {
		gw.gemini = gemini
	}

	if cfg.RedisAddr != "" {
		gw.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}
	return gw, nil
}

func concurrencyOrDefault(n int64) int64 {
	if n <= 0 {
		return 50
	}
	return n
}

func (g *Gateway) providerFor(family ProviderFamily, endpointOverride string) (providerClient, error) {
	switch family {
	case ProviderOpenAI:
		if endpointOverride != "" && endpointOverride == jinaMarker {
			return g.jina, nil
		}
		return g.openai, nil
	case ProviderAnthropic:
		return g.anthropic, nil
	case ProviderGemini:
		if g.gemini == nil {
			return nil, fmt.Errorf("%w: gemini provider unavailable", ragerr.ErrProviderUnavailable)
		}
		return g.gemini, nil
	default:
		return nil, fmt.Errorf("%w: unsupported provider family %q", ragerr.ErrInvalidRequest, family)
	}
}

// jinaMarker is a sentinel ModelSpec.Endpoint value routing an
// OpenAI-compatible model to the Jina-configured client instead of the
// default OpenAI client.
const jinaMarker = "jina"

// Chat dispatches a chat request through the resolved provider, with
// response caching and retry-once-with-backoff on UpstreamTimeout/RateLimited.
func (g *Gateway) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	spec, err := resolveModel(req.Model)
	if err != nil {
		return ChatResponse{}, err
	}
	if !spec.Capabilities[CapChat] {
		return ChatResponse{}, fmt.Errorf("%w: model %s does not support chat", ragerr.ErrInvalidRequest, req.Model)
	}

	key := chatCacheKeyFor(req.Model, req.Temperature, req.Messages)
	if cached, ok := g.lookupCache(ctx, key); ok {
		return ChatResponse{Content: cached, Cached: true}, nil
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return ChatResponse{}, fmt.Errorf("%w: %v", ragerr.ErrGatewayBusy, err)
	}
	defer g.sem.Release(1)

	client, err := g.providerFor(spec.Provider, spec.Endpoint)
	if err != nil {
		return ChatResponse{}, err
	}

	start := time.Now()
	resp, err := g.callWithRetry(ctx, func() (ChatResponse, error) {
		return client.chat(ctx, req.Model, req.Messages, req.Temperature, req.MaxTokens)
	})
	g.metrics.ObserveHistogram("gateway_chat_duration_seconds", time.Since(start).Seconds(), map[string]string{"model": req.Model})
	if err != nil {
		g.metrics.IncCounter("gateway_chat_errors_total", map[string]string{"model": req.Model})
		return ChatResponse{}, err
	}
	g.storeCache(ctx, key, resp.Content)
	return resp, nil
}

// Embed dispatches an embedding request. Per-text caching lets partial
// batches still benefit from the cache even when the batch as a whole is new.
func (g *Gateway) Embed(ctx context.Context, req EmbedRequest) (EmbedResponse, error) {
	spec, err := resolveModel(req.Model)
	if err != nil {
		return EmbedResponse{}, err
	}
	if !spec.Capabilities[CapEmbed] {
		return EmbedResponse{}, fmt.Errorf("%w: model %s does not support embedding", ragerr.ErrInvalidRequest, req.Model)
	}
	if len(req.Texts) > 128 {
		return EmbedResponse{}, fmt.Errorf("%w: batch exceeds 128 texts", ragerr.ErrInvalidRequest)
	}

	vectors := make([][]float32, len(req.Texts))
	var misses []string
	var missIdx []int
	allCached := true
	for i, text := range req.Texts {
		key := embedCacheKeyFor(req.Model, text)
		if cached, ok := g.cache.get(key); ok {
			vectors[i] = decodeVector(cached)
			continue
		}
		allCached = false
		misses = append(misses, text)
		missIdx = append(missIdx, i)
	}
	if len(misses) == 0 {
		return EmbedResponse{Vectors: vectors, Cached: allCached}, nil
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return EmbedResponse{}, fmt.Errorf("%w: %v", ragerr.ErrGatewayBusy, err)
	}
	defer g.sem.Release(1)

	client, err := g.providerFor(spec.Provider, spec.Endpoint)
	if err != nil {
		return EmbedResponse{}, err
	}
	ec, ok := client.(embedClient)
	if !ok {
		return EmbedResponse{}, fmt.Errorf("%w: provider for %s cannot embed", ragerr.ErrInvalidRequest, req.Model)
	}

	start := time.Now()
	fresh, err := g.embedWithRetry(ctx, ec, req.Model, misses)
	g.metrics.ObserveHistogram("gateway_embed_duration_seconds", time.Since(start).Seconds(), map[string]string{"model": req.Model})
	if err != nil {
		g.metrics.IncCounter("gateway_embed_errors_total", map[string]string{"model": req.Model})
		return EmbedResponse{}, err
	}
	for j, idx := range missIdx {
		vectors[idx] = fresh[j]
		g.cache.put(embedCacheKeyFor(req.Model, misses[j]), encodeVector(fresh[j]))
	}
	return EmbedResponse{Vectors: vectors}, nil
}

// Rerank dispatches a rerank request; no caching (query/document pairs are
// effectively unique per call).
func (g *Gateway) Rerank(ctx context.Context, req RerankRequest) (RerankResponse, error) {
	spec, err := resolveModel(req.Model)
	if err != nil {
		return RerankResponse{}, err
	}
	if !spec.Capabilities[CapRerank] {
		return RerankResponse{}, fmt.Errorf("%w: model %s does not support rerank", ragerr.ErrInvalidRequest, req.Model)
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return RerankResponse{}, fmt.Errorf("%w: %v", ragerr.ErrGatewayBusy, err)
	}
	defer g.sem.Release(1)

	client, err := g.providerFor(spec.Provider, spec.Endpoint)
	if err != nil {
		return RerankResponse{}, err
	}
	rc, ok := client.(rerankClient)
	if !ok {
		return RerankResponse{}, fmt.Errorf("%w: provider for %s cannot rerank", ragerr.ErrInvalidRequest, req.Model)
	}
	results, err := rc.rerank(ctx, req.Model, req.Query, req.Documents, req.TopN)
	if err != nil {
		return RerankResponse{}, err
	}
	return RerankResponse{Results: results}, nil
}

// HealthCheck reports, per provider family (openai, anthropic, gemini),
// whether the gateway holds a client for it; gemini is false when its client
// failed to initialise. It sends no request to any provider. It never closes
// anything, so the Intent Classifier (which shares this gateway's HTTP
// clients) is never disrupted by it.
func (g *Gateway) HealthCheck(ctx context.Context) map[string]bool {
	status := map[string]bool{
		"openai":    g.openai != nil,
		"anthropic": g.anthropic != nil,
		"gemini":    g.gemini != nil,
	}
	return status
}

func (g *Gateway) callWithRetry(ctx context.Context, fn func() (ChatResponse, error)) (ChatResponse, error) {
	resp, err := fn()
	if err == nil {
		return resp, nil
	}
	for _, backoff := range retryBackoffs {
		if !ragerr.Retryable(err) {
			return ChatResponse{}, err
		}
		select {
		case <-ctx.Done():
			return ChatResponse{}, fmt.Errorf("%w: %v", ragerr.ErrRequestCancelled, ctx.Err())
		case <-time.After(backoff):
		}
		resp, err = fn()
		if err == nil {
			return resp, nil
		}
	}
	return ChatResponse{}, err
}

func (g *Gateway) embedWithRetry(ctx context.Context, ec embedClient, model string, texts []string) ([][]float32, error) {
	vectors, err := ec.embed(ctx, model, texts)
	if err == nil {
		return vectors, nil
	}
	for _, backoff := range retryBackoffs {
		if !ragerr.Retryable(err) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ragerr.ErrRequestCancelled, ctx.Err())
		case <-time.After(backoff):
		}
		vectors, err = ec.embed(ctx, model, texts)
		if err == nil {
			return vectors, nil
		}
	}
	return nil, err
}

// lookupCache checks the local shard first, then the optional Redis tier.
func (g *Gateway) lookupCache(ctx context.Context, key string) (string, bool) {
	if v, ok := g.cache.get(key); ok {
		return v, true
	}
	if g.redis == nil {
		return "", false
	}
	v, err := g.redis.Get(ctx, "gw:"+key).Result()
	if err != nil {
		return "", false
	}
	g.cache.put(key, v)
	return v, true
}

func (g *Gateway) storeCache(ctx context.Context, key, value string) {
	g.cache.put(key, value)
	if g.redis != nil {
		g.redis.Set(ctx, "gw:"+key, value, 2*time.Hour)
	}
}
