package llmgateway

import "testing"

func TestResponseCache_PutGet(t *testing.T) {
	c := newResponseCache(80, 0)
	key := chatCacheKeyFor("gpt-4o-mini", 0.2, []Message{{Role: "user", Content: "hi"}})
	if _, ok := c.get(key); ok {
		t.Fatal("expected cache miss before put")
	}
	c.put(key, "hello there")
	v, ok := c.get(key)
	if !ok || v != "hello there" {
		t.Fatalf("expected cache hit with value %q, got %q (ok=%v)", "hello there", v, ok)
	}
}

func TestChatCacheKeyFor_Stable(t *testing.T) {
	msgs := []Message{{Role: "system", Content: "be terse"}, {Role: "user", Content: "hi"}}
	a := chatCacheKeyFor("gpt-4o-mini", 0.2, msgs)
	b := chatCacheKeyFor("gpt-4o-mini", 0.2, msgs)
	if a != b {
		t.Fatal("expected identical cache keys for identical requests")
	}
	other := chatCacheKeyFor("gpt-4o-mini", 0.3, msgs)
	if a == other {
		t.Fatal("expected different cache keys for different temperature")
	}
}

func TestVectorCodec_RoundTrip(t *testing.T) {
	v := []float32{0.1, -0.2, 3.5}
	encoded := encodeVector(v)
	decoded := decodeVector(encoded)
	if len(decoded) != len(v) {
		t.Fatalf("expected %d values, got %d", len(v), len(decoded))
	}
	for i := range v {
		if decoded[i] != v[i] {
			t.Errorf("index %d: expected %v, got %v", i, v[i], decoded[i])
		}
	}
}
