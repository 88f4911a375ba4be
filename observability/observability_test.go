package observability_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xraph/reckon/invoice"
	"github.com/xraph/reckon/observability"
)

func TestPrometheusFactory(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg, prometheus.Labels{"service": "reckon"})

	c := f.Counter("reckon.payment.applied")
	c.Inc()
	c.Add(2)
	assert.Same(t, c, f.Counter("reckon.payment.applied"), "same name returns same counter")

	f.Histogram("reckon.apply_payment.latency_ms").Observe(12)

	n, err := testutil.GatherAndCount(reg, "reckon_payment_applied_total", "reckon_apply_payment_latency_ms")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 3.0, testutil.ToFloat64(c.(prometheus.Counter)), 0.0001)
}

func TestPrometheusFactory_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := observability.NewPrometheusFactory(reg, nil)
	b := observability.NewPrometheusFactory(reg, nil)

	a.Counter("reckon.x").Inc()
	b.Counter("reckon.x").Inc()

	assert.InDelta(t, 2.0, testutil.ToFloat64(a.Counter("reckon.x").(prometheus.Counter)), 0.0001)
}

func TestInstrumenter(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg, nil)
	inst := observability.NewInstrumenter(f, nil)

	require.NoError(t, inst.Do(context.Background(), "quote", func(context.Context) error { return nil }))

	boom := errors.New("boom")
	err := inst.Do(context.Background(), "quote", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.InDelta(t, 1.0, testutil.ToFloat64(f.Counter("reckon.quote.errors").(prometheus.Counter)), 0.0001)
	n, err := testutil.GatherAndCount(reg, "reckon_quote_latency_ms")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMetricsExtension(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg, nil)
	m := observability.NewMetricsExtension(f)

	ctx := context.Background()
	inv := &invoice.Invoice{Status: invoice.StatusPaid}
	require.NoError(t, m.OnInvoiceStatusChanged(ctx, inv, invoice.StatusPartPaid))
	require.NoError(t, m.OnPaymentApplied(ctx, nil, inv))
	require.NoError(t, m.OnPaymentReplayed(ctx, nil))

	assert.InDelta(t, 1.0, testutil.ToFloat64(m.InvoicePaid.(prometheus.Counter)), 0.0001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.PaymentApplied.(prometheus.Counter)), 0.0001)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.PaymentReplayed.(prometheus.Counter)), 0.0001)
	assert.InDelta(t, 0.0, testutil.ToFloat64(m.InvoiceSent.(prometheus.Counter)), 0.0001)
}

func TestNewLogger(t *testing.T) {
	l, err := observability.NewLogger("debug", "console")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = observability.NewLogger("warn", "json")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))

	_, err = observability.NewLogger("loud", "json")
	assert.Error(t, err)
	_, err = observability.NewLogger("info", "xml")
	assert.Error(t, err)
}

func TestWithTrace(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	traceID, _ := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	spanID, _ := trace.SpanIDFromHex("0123456789abcdef")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	observability.WithTrace(ctx, logger).Info("hello")
	observability.WithTrace(context.Background(), logger).Info("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, traceID.String(), entries[0].ContextMap()["trace_id"])
	assert.Equal(t, spanID.String(), entries[0].ContextMap()["span_id"])
	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
}

func TestNop(t *testing.T) {
	f := observability.Nop()
	f.Counter("x").Inc()
	f.Counter("x").Add(1)
	f.Histogram("y").Observe(1)
}
