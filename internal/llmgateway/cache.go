package llmgateway

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const cacheShardCount = 8

// chatCacheKey canonicalizes the fields that determine a chat response so
// that equivalent requests hit the cache regardless of map ordering.
type chatCacheKey struct {
	Model       string   `json:"model"`
	Temperature float64  `json:"temperature"`
	Messages    []string `json:"messages"`
}

// responseCache is a sharded, TTL-bounded LRU, grounded on
// Aman-CERP-amanmcp's internal/embed/cached.go and internal/search/classifier.go,
// both of which wrap golang-lru for exactly this shape of cache. The
// expirable subpackage is used instead of the plain lru.Cache because the
// plain variant has no TTL and a hand-rolled TTL wrapper would duplicate
// what the module already provides.
type responseCache struct {
	shards []*lru.LRU[string, string]
	ttl    time.Duration
}

func newResponseCache(size int, ttl time.Duration) *responseCache {
	if size <= 0 {
		size = 10_000
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	perShard := size / cacheShardCount
	if perShard < 1 {
		perShard = 1
	}
	shards := make([]*lru.LRU[string, string], cacheShardCount)
	for i := range shards {
		shards[i] = lru.NewLRU[string, string](perShard, nil, ttl)
	}
	return &responseCache{shards: shards, ttl: ttl}
}

func (c *responseCache) shardFor(key string) *lru.LRU[string, string] {
	var h byte
	for i := 0; i < len(key); i++ {
		h ^= key[i]
	}
	return c.shards[int(h)%len(c.shards)]
}

func (c *responseCache) get(key string) (string, bool) {
	return c.shardFor(key).Get(key)
}

func (c *responseCache) put(key, value string) {
	c.shardFor(key).Add(key, value)
}

// chatCacheKeyFor builds the SHA-256 hex digest used as the cache key for a
// chat completion request.
func chatCacheKeyFor(model string, temperature float64, messages []Message) string {
	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Role + ":" + m.Content
	}
	b, _ := json.Marshal(chatCacheKey{Model: model, Temperature: temperature, Messages: texts})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// embedCacheKeyFor builds the cache key for a single embedding call.
func embedCacheKeyFor(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
