package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"ragfabric/internal/answer"
	"ragfabric/internal/compressor"
	"ragfabric/internal/config"
	"ragfabric/internal/embedder"
	"ragfabric/internal/httpapi"
	"ragfabric/internal/ingest"
	"ragfabric/internal/intent"
	"ragfabric/internal/llmgateway"
	"ragfabric/internal/metadata"
	"ragfabric/internal/obslog"
	"ragfabric/internal/registry"
	"ragfabric/internal/reranker"
	"ragfabric/internal/retrieve"
	"ragfabric/internal/search"
	"ragfabric/internal/vectorstore"
)

// components holds every long-lived dependency wiring builds, so main can
// close/drain them in reverse order on shutdown.
type components struct {
	server       *httpapi.Server
	gateway      *llmgateway.Gateway
	store        vectorstore.Store
	pg           *pgx.Conn
	otelShutdown func(context.Context) error
}

func (c *components) close() {
	if c.pg != nil {
		_ = c.pg.Close(context.Background())
	}
	if c.store != nil {
		_ = c.store.Close()
	}
	if c.otelShutdown != nil {
		_ = c.otelShutdown(context.Background())
	}
}

// build wires every component per SPEC_FULL.md's dependency order: Vector
// Store <- Embedder <- Chunker; LLM Gateway <- {Metadata, Compressor,
// Answer, Intent}; Ingestion Orchestrator depends on {Chunker, Metadata,
// Embedder, Vector Store}; Retrieval Orchestrator depends on {Intent,
// Search, Reranker, Compressor, Answer}; Search depends on {Embedder,
// Vector Store}.
func build(ctx context.Context, cfg config.Config) (*components, error) {
	log := obslog.NewZeroLogger("ragd")

	otelShutdown, err := obslog.InitOTel(ctx, obslog.ObservabilityConfig{
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	metrics := obslog.NewOtelMetrics()

	store, err := vectorstore.Open(ctx, cfg.VectorDB.Backend, cfg.VectorDB.DSN, cfg.VectorDB.Metric)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("open vector store: %w", err)
	}

	gateway, err := llmgateway.New(ctx, llmgateway.Config{
		OpenAIAPIKey:    cfg.Gateway.OpenAIAPIKey,
		OpenAIBaseURL:   cfg.Gateway.OpenAIBaseURL,
		AnthropicAPIKey: cfg.Gateway.AnthropicAPIKey,
		GeminiAPIKey:    cfg.Gateway.GeminiAPIKey,
		JinaAPIKey:      cfg.Gateway.JinaAPIKey,
		JinaBaseURL:     cfg.Gateway.JinaBaseURL,
		CacheSize:       cfg.Gateway.CacheSize,
		CacheTTL:        cfg.Gateway.CacheTTL,
		MaxConcurrency:  cfg.Gateway.MaxConcurrency,
		RedisAddr:       cfg.Gateway.RedisAddr,
	}, log, metrics)
	if err != nil {
		_ = store.Close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("build llm gateway: %w", err)
	}

	emb, err := embedder.New(gateway, cfg.Models.EmbedderModel, log)
	if err != nil {
		_ = store.Close()
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("build embedder: %w", err)
	}

	var pg *pgx.Conn
	var reg *registry.Registry
	if cfg.Registry.DSN != "" {
		pg, err = pgx.Connect(ctx, cfg.Registry.DSN)
		if err != nil {
			_ = store.Close()
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("connect registry db: %w", err)
		}
		reg = registry.New(pg)
		if err := reg.EnsureTable(ctx); err != nil {
			_ = pg.Close(ctx)
			_ = store.Close()
			_ = otelShutdown(ctx)
			return nil, fmt.Errorf("ensure registry table: %w", err)
		}
	}

	metaExtractor := metadata.New(gateway, cfg.Models.MetadataModel, cfg.Ingestion.MetadataConcurrency, log)
	ing := ingest.New(metaExtractor, emb, store).WithEmbedderFactory(embedder.NewFactory(gateway, log))
	if reg != nil {
		ing = ing.WithRegistry(reg)
	}

	intentClassifier := intent.New(gateway, cfg.Models.IntentModel, 10000)
	searcher := search.New(emb, store)
	var rerank reranker.Reranker
	if cfg.Models.RerankBackend == "local" {
		rerank = reranker.NewLocal()
	} else {
		rerank = reranker.NewHosted(gateway, cfg.Models.RerankModel)
	}
	compress := compressor.New(gateway)
	answerGen := answer.New(gateway, cfg.Models.AnswerFastModel, cfg.Models.AnswerStrongModel)
	ret := retrieve.New(intentClassifier, searcher, rerank, compress, answerGen)

	server := httpapi.New(ing, ret, store, log, cfg.HTTP.CORSOrigins, cfg.HTTP.RequestTimeout)

	return &components{server: server, gateway: gateway, store: store, pg: pg, otelShutdown: otelShutdown}, nil
}
