// Package obslog is the ambient logging and metrics stack shared by every
// orchestrator and stage: a zerolog-backed structured Logger and an
// OpenTelemetry-backed Metrics sink, both satisfying the small local
// interfaces components actually depend on.
package obslog

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the minimal structured-logging contract every component takes
// a dependency on; stage code never imports zerolog directly.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
}

// ZeroLogger adapts zerolog to the Logger contract.
type ZeroLogger struct {
	log zerolog.Logger
}

// NewZeroLogger builds a JSON-line logger writing to stdout.
func NewZeroLogger(serviceName string) *ZeroLogger {
	l := zerolog.New(os.Stdout).With().Timestamp().Str("service", serviceName).Logger()
	return &ZeroLogger{log: l}
}

func (z *ZeroLogger) event(e *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	e.Msg(msg)
}

func (z *ZeroLogger) Info(msg string, fields map[string]any)  { z.event(z.log.Info(), msg, fields) }
func (z *ZeroLogger) Error(msg string, fields map[string]any) { z.event(z.log.Error(), msg, fields) }
func (z *ZeroLogger) Debug(msg string, fields map[string]any) { z.event(z.log.Debug(), msg, fields) }

// WithTrace enriches the logger with trace_id/span_id from ctx when a
// sampled span is present, mirroring the pool-wide request-scoped logger
// used across the HTTP surface.
func (z *ZeroLogger) WithTrace(ctx context.Context) Logger {
	if ctx == nil {
		return z
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return z
	}
	l := z.log.With().Str("trace_id", sc.TraceID().String())
	if sc.HasSpanID() {
		l = l.Str("span_id", sc.SpanID().String())
	}
	return &ZeroLogger{log: l.Logger()}
}

// NoopLogger discards everything; used in tests where a Logger is required
// but assertions on log output aren't the point.
type NoopLogger struct{}

func NewNoop() NoopLogger { return NoopLogger{} }

func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
func (NoopLogger) Debug(string, map[string]any) {}

// Clock abstracts time.Now so stage timing is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
