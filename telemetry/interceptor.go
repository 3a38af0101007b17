package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/spiceai/spice-sql-go"

// Interceptor wraps client operations to record spans and metrics.
// A nil or disabled Interceptor records nothing.
type Interceptor struct {
	enabled bool
	tracer  trace.Tracer

	operations metric.Int64Counter
	attempts   metric.Int64Counter
	retries    metric.Int64Counter
	batches    metric.Int64Counter
	rows       metric.Int64Counter
	pages      metric.Int64Counter
	duration   metric.Float64Histogram
}

// metricContext holds metric collection state in context.
type metricContext struct {
	operation string
	startTime time.Time
	span      trace.Span

	mu      sync.Mutex
	tags    []attribute.KeyValue
	batches int64
	rows    int64
	pages   int64
}

type contextKey int

const metricContextKey contextKey = 0

// NewInterceptor creates the instruments of cfg's providers.
func NewInterceptor(cfg *Config) *Interceptor {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	i := &Interceptor{enabled: cfg.Enabled}
	if !i.enabled {
		return i
	}

	i.tracer = cfg.tracerProvider().Tracer(instrumentationName)

	// instrument creation only fails on invalid names; a nil instrument is skipped
	meter := cfg.meterProvider().Meter(instrumentationName)
	i.operations, _ = meter.Int64Counter("spice.client.operations",
		metric.WithUnit("{operation}"),
		metric.WithDescription("Number of client operations"),
	)
	i.attempts, _ = meter.Int64Counter("spice.client.query.attempts",
		metric.WithUnit("{attempt}"),
		metric.WithDescription("Number of query attempts, including the first"),
	)
	i.retries, _ = meter.Int64Counter("spice.client.query.retries",
		metric.WithUnit("{retry}"),
		metric.WithDescription("Number of query attempts that were retried"),
	)
	i.batches, _ = meter.Int64Counter("spice.client.result.batches",
		metric.WithUnit("{batch}"),
		metric.WithDescription("Number of record batches decoded"),
	)
	i.rows, _ = meter.Int64Counter("spice.client.result.rows",
		metric.WithUnit("{row}"),
		metric.WithDescription("Number of result rows received"),
	)
	i.pages, _ = meter.Int64Counter("spice.client.result.pages",
		metric.WithUnit("{page}"),
		metric.WithDescription("Number of async result pages fetched"),
	)
	i.duration, _ = meter.Float64Histogram("spice.client.operation.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of client operations"),
	)

	return i
}

func (i *Interceptor) active() bool {
	return i != nil && i.enabled
}

func withMetricContext(ctx context.Context, mc *metricContext) context.Context {
	return context.WithValue(ctx, metricContextKey, mc)
}

func getMetricContext(ctx context.Context) *metricContext {
	if mc, ok := ctx.Value(metricContextKey).(*metricContext); ok {
		return mc
	}
	return nil
}

// BeforeExecute starts the span of operation and returns a context carrying it.
func (i *Interceptor) BeforeExecute(ctx context.Context, operation string, tags ...attribute.KeyValue) context.Context {
	if !i.active() {
		return ctx
	}

	attrs := append([]attribute.KeyValue{attribute.String(TagOperation, operation)}, tags...)
	ctx, span := i.tracer.Start(ctx, "spice/"+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)

	return withMetricContext(ctx, &metricContext{
		operation: operation,
		startTime: time.Now(),
		span:      span,
		tags:      attrs,
	})
}

// AfterExecute ends the operation span started by BeforeExecute and records
// its duration and outcome.
func (i *Interceptor) AfterExecute(ctx context.Context, err error) {
	if !i.active() {
		return
	}
	mc := getMetricContext(ctx)
	if mc == nil {
		return
	}

	mc.mu.Lock()
	attrs := append([]attribute.KeyValue(nil), mc.tags...)
	batches, rows, pages := mc.batches, mc.rows, mc.pages
	mc.mu.Unlock()

	status := "ok"
	if err != nil {
		status = "error"
		attrs = append(attrs, attribute.String(TagErrorType, classifyError(err)))
		if code := errorCode(err); code != "" {
			attrs = append(attrs, attribute.String(TagErrorCode, code))
		}
	}
	attrs = append(attrs, attribute.String(TagStatus, status))

	measured := metric.WithAttributes(metricAttributes(attrs)...)
	if i.operations != nil {
		i.operations.Add(ctx, 1, measured)
	}
	if i.duration != nil {
		i.duration.Record(ctx, time.Since(mc.startTime).Seconds(), measured)
	}

	if mc.span.IsRecording() {
		mc.span.SetAttributes(attrs...)
		if batches > 0 {
			mc.span.SetAttributes(attribute.Int64(TagBatchCount, batches))
		}
		if rows > 0 {
			mc.span.SetAttributes(attribute.Int64(TagRowCount, rows))
		}
		if pages > 0 {
			mc.span.SetAttributes(attribute.Int64(TagPageCount, pages))
		}
		if err != nil {
			mc.span.RecordError(err)
			mc.span.SetStatus(codes.Error, err.Error())
		} else {
			mc.span.SetStatus(codes.Ok, "")
		}
	}
	mc.span.End()
}

// AddTag adds attributes to the current operation.
func (i *Interceptor) AddTag(ctx context.Context, tags ...attribute.KeyValue) {
	if !i.active() {
		return
	}
	if mc := getMetricContext(ctx); mc != nil {
		mc.mu.Lock()
		mc.tags = append(mc.tags, tags...)
		mc.mu.Unlock()
	}
}

// RecordAttempt records the start of attempt n, counting from 1.
func (i *Interceptor) RecordAttempt(ctx context.Context, n int) {
	if !i.active() {
		return
	}
	mc := getMetricContext(ctx)
	if i.attempts != nil {
		i.attempts.Add(ctx, 1, metric.WithAttributes(operationAttr(mc)...))
	}
	if mc != nil {
		mc.span.AddEvent("attempt", trace.WithAttributes(attribute.Int(TagAttempt, n)))
	}
}

// RecordRetry records that attempt n failed with err and will be retried.
func (i *Interceptor) RecordRetry(ctx context.Context, n int, err error) {
	if !i.active() {
		return
	}
	mc := getMetricContext(ctx)
	if i.retries != nil {
		attrs := append(operationAttr(mc), attribute.String(TagErrorType, classifyError(err)))
		i.retries.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if mc != nil {
		mc.span.AddEvent("retry", trace.WithAttributes(
			attribute.Int(TagAttempt, n),
			attribute.String(TagErrorType, classifyError(err)),
		))
	}
}

// RecordBatch records one decoded record batch of rows rows.
func (i *Interceptor) RecordBatch(ctx context.Context, rows int64) {
	if !i.active() {
		return
	}
	mc := getMetricContext(ctx)
	attrs := metric.WithAttributes(operationAttr(mc)...)
	if i.batches != nil {
		i.batches.Add(ctx, 1, attrs)
	}
	if i.rows != nil {
		i.rows.Add(ctx, rows, attrs)
	}
	if mc != nil {
		mc.mu.Lock()
		mc.batches++
		mc.rows += rows
		mc.mu.Unlock()
	}
}

// RecordPage records one fetched async result page.
func (i *Interceptor) RecordPage(ctx context.Context, offset int, rows int) {
	if !i.active() {
		return
	}
	mc := getMetricContext(ctx)
	attrs := metric.WithAttributes(operationAttr(mc)...)
	if i.pages != nil {
		i.pages.Add(ctx, 1, attrs)
	}
	if i.rows != nil {
		i.rows.Add(ctx, int64(rows), attrs)
	}
	if mc != nil {
		mc.mu.Lock()
		mc.pages++
		mc.rows += int64(rows)
		mc.mu.Unlock()
		mc.span.AddEvent("page", trace.WithAttributes(
			attribute.Int(TagPageOffset, offset),
			attribute.Int(TagRowCount, rows),
		))
	}
}

func operationAttr(mc *metricContext) []attribute.KeyValue {
	if mc == nil {
		return nil
	}
	return []attribute.KeyValue{attribute.String(TagOperation, mc.operation)}
}

// ids are high cardinality and stay on spans only
func metricAttributes(attrs []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, kv := range attrs {
		switch kv.Key {
		case TagCorrelationID, TagQueryID:
			continue
		}
		out = append(out, kv)
	}
	return out
}
