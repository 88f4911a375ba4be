package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used for reckon spans.
const TracerName = "github.com/xraph/reckon"

// Instrumenter wraps operations with a span, a latency histogram and an
// error counter. It replaces implicit timing decorators with an explicit
// call the engine composes around each operation.
type Instrumenter struct {
	factory MetricFactory
	tracer  trace.Tracer

	mu      sync.Mutex
	latency map[string]Histogram
	errors  map[string]Counter
}

// NewInstrumenter creates an Instrumenter. A nil tracer uses the global
// OpenTelemetry provider.
func NewInstrumenter(factory MetricFactory, tracer trace.Tracer) *Instrumenter {
	if factory == nil {
		factory = Nop()
	}
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	return &Instrumenter{
		factory: factory,
		tracer:  tracer,
		latency: make(map[string]Histogram),
		errors:  make(map[string]Counter),
	}
}

// Do runs fn inside a span named "reckon.<op>", records its latency in
// milliseconds and counts failures.
func (i *Instrumenter) Do(ctx context.Context, op string, fn func(ctx context.Context) error, attrs ...attribute.KeyValue) error {
	ctx, span := i.tracer.Start(ctx, "reckon."+op, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	latency, errCount := i.metrics(op)
	latency.Observe(float64(elapsed.Microseconds()) / 1000)

	if err != nil {
		errCount.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (i *Instrumenter) metrics(op string) (Histogram, Counter) {
	i.mu.Lock()
	defer i.mu.Unlock()

	h, ok := i.latency[op]
	if !ok {
		h = i.factory.Histogram("reckon." + op + ".latency_ms")
		i.latency[op] = h
	}
	c, ok := i.errors[op]
	if !ok {
		c = i.factory.Counter("reckon." + op + ".errors")
		i.errors[op] = c
	}
	return h, c
}
