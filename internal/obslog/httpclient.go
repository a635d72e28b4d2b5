package obslog

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient returns a process-owned *http.Client instrumented with
// otelhttp and sized for the Gateway's connection-pooling contract
// (≥200 idle per host, ≥1000 total). Callers MUST treat the returned
// client as a singleton: created once at startup, never closed by a
// probe (see internal/intent for the bug class this guards against).
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:        1000,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     90 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(transport),
	}
}
