// Package config loads process configuration from the environment (and an
// optional .env file) once at startup. Configuration is read once, frozen,
// and passed by value to every constructor; there is no global mutable
// config after Load returns.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the frozen, process-wide configuration tree.
type Config struct {
	HTTP          HTTPConfig
	VectorDB      VectorDBConfig
	Gateway       GatewayConfig
	Registry      RegistryConfig
	Ingestion     IngestionConfig
	Retrieval     RetrievalConfig
	Models        ModelsConfig
	Observability ObservabilityConfig
}

// ModelsConfig names the gateway-known model identifiers each LLM-driven
// component defaults to; all are overridable per-request where the
// component supports it (e.g. Answer's caller-supplied model override).
type ModelsConfig struct {
	EmbedderModel     string
	MetadataModel     string
	IntentModel       string
	RerankModel       string
	RerankBackend     string // "hosted" (default) | "local"
	AnswerFastModel   string
	AnswerStrongModel string
}

type HTTPConfig struct {
	Addr            string
	RequestTimeout  time.Duration
	CORSOrigins     []string
}

// VectorDBConfig selects and configures the Vector Store Facade backend.
type VectorDBConfig struct {
	Backend string // "milvus" | "qdrant" | "memory"
	DSN     string
	Metric  string // "cosine" | "ip" | "l2"
}

// GatewayConfig carries provider credentials and tuning knobs for the LLM
// Gateway. The gateway is the only component that holds these keys.
type GatewayConfig struct {
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	AnthropicAPIKey  string
	GeminiAPIKey     string
	JinaAPIKey       string
	JinaBaseURL      string

	CacheSize        int
	CacheTTL         time.Duration
	MaxConcurrency   int64
	RedisAddr        string
}

// RegistryConfig configures the Postgres-backed idempotency ledger.
type RegistryConfig struct {
	DSN string
}

type IngestionConfig struct {
	MetadataConcurrency int64
	EmbedderConcurrency int64
	MetadataDeadline    time.Duration
	EmbedderDeadline    time.Duration
	FullDeadline        time.Duration
}

type RetrievalConfig struct {
	MaxConcurrentRetrievals int64
	FullDeadline            time.Duration
}

// ObservabilityConfig points the process at an OTLP collector. OTLPEndpoint
// empty means no collector is configured: obslog.InitOTel then installs no
// providers and returns a no-op shutdown, and every Logger/Metrics call runs
// against the no-op global providers instead of failing startup, since a local dev run or CI shouldn't need a
// collector on the network just to boot.
type ObservabilityConfig struct {
	OTLPEndpoint   string
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Load reads configuration from the environment, optionally overlaid by a
// local .env file (values in .env take precedence, matching the teacher's
// development-convenience convention).
func Load() (Config, error) {
	_ = godotenv.Overload()

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:           envOr("HTTP_ADDR", ":8080"),
			RequestTimeout: envDuration("HTTP_REQUEST_TIMEOUT", 30*time.Second),
			CORSOrigins:    envList("HTTP_CORS_ORIGINS", []string{"*"}),
		},
		VectorDB: VectorDBConfig{
			Backend: envOr("VECTOR_BACKEND", "memory"),
			DSN:     envOr("VECTOR_DSN", ""),
			Metric:  envOr("VECTOR_METRIC", "ip"),
		},
		Gateway: GatewayConfig{
			OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
			AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
			GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
			JinaAPIKey:      os.Getenv("JINA_API_KEY"),
			JinaBaseURL:     envOr("JINA_BASE_URL", "https://api.jina.ai/v1"),
			CacheSize:       envInt("GATEWAY_CACHE_SIZE", 10000),
			CacheTTL:        envDuration("GATEWAY_CACHE_TTL", 2*time.Hour),
			MaxConcurrency:  int64(envInt("GATEWAY_MAX_CONCURRENCY", 50)),
			RedisAddr:       os.Getenv("REDIS_ADDR"),
		},
		Registry: RegistryConfig{
			DSN: os.Getenv("REGISTRY_DSN"),
		},
		Ingestion: IngestionConfig{
			MetadataConcurrency: int64(envInt("METADATA_CONCURRENCY", 20)),
			EmbedderConcurrency: int64(envInt("EMBEDDER_CONCURRENCY", 20)),
			MetadataDeadline:    envDuration("METADATA_DEADLINE", 60*time.Second),
			EmbedderDeadline:    envDuration("EMBEDDER_DEADLINE", 30*time.Second),
			FullDeadline:        envDuration("INGEST_DEADLINE", 120*time.Second),
		},
		Retrieval: RetrievalConfig{
			MaxConcurrentRetrievals: int64(envInt("RETRIEVAL_MAX_CONCURRENCY", 20)),
			FullDeadline:            envDuration("RETRIEVAL_DEADLINE", 30*time.Second),
		},
		Models: ModelsConfig{
			// EMBEDDER_MODEL's default is spec.md's own worked-example name,
			// not the gateway registry's canonical key; it resolves through
			// llmgateway.NormalizeModelAlias (jina-embeddings-v3 -> jina-v3)
			// in embedder.New, so a zero-env-var boot doesn't fail here.
			EmbedderModel:     envOr("EMBEDDER_MODEL", "jina-embeddings-v3"),
			MetadataModel:     envOr("METADATA_MODEL", "gpt-4o-mini"),
			IntentModel:       envOr("INTENT_MODEL", "gpt-4o-mini"),
			RerankModel:       envOr("RERANK_MODEL", "jina-reranker-v2"),
			RerankBackend:     envOr("RERANK_BACKEND", "hosted"),
			AnswerFastModel:   envOr("ANSWER_FAST_MODEL", "gpt-4o-mini"),
			AnswerStrongModel: envOr("ANSWER_STRONG_MODEL", "gpt-4o"),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			ServiceName:    envOr("OTEL_SERVICE_NAME", "ragfabric"),
			ServiceVersion: envOr("OTEL_SERVICE_VERSION", "dev"),
			Environment:    envOr("OTEL_ENVIRONMENT", "development"),
		},
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
