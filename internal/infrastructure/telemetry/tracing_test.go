package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// withRecordingTracer installs an in-memory span exporter as the global
// tracer provider for the duration of the test
func withRecordingTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return exporter
}

func TestStartSpanRecordsAttributes(t *testing.T) {
	exporter := withRecordingTracer(t)

	ctx, span := StartSpan(context.Background(), "fiscal_document.emit",
		WithAttribute(SpanAttrSeries, "INV-2026"),
		WithAttribute(SpanAttrSequenceNumber, int64(7)),
	)
	assert.NotEmpty(t, GetTraceID(ctx))
	assert.NotEmpty(t, GetSpanID(ctx))
	SetAttribute(span, SpanAttrDocumentState, "emitted")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "fiscal_document.emit", spans[0].Name)

	attrs := map[string]interface{}{}
	for _, kv := range spans[0].Attributes {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "INV-2026", attrs[SpanAttrSeries])
	assert.Equal(t, int64(7), attrs[SpanAttrSequenceNumber])
	assert.Equal(t, "emitted", attrs[SpanAttrDocumentState])
}

func TestStartServiceSpanNaming(t *testing.T) {
	exporter := withRecordingTracer(t)

	_, span := StartServiceSpan(context.Background(), "fiscal_document", "cancel")
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "fiscal_document.cancel", spans[0].Name)
}

func TestRecordErrorSetsStatus(t *testing.T) {
	exporter := withRecordingTracer(t)

	_, span := StartSpan(context.Background(), "fiscal_document.emit")
	RecordError(span, errors.New("series halted"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "exception", spans[0].Events[0].Name)
}

func TestGetTraceIDWithoutSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Empty(t, GetSpanID(context.Background()))
}

func TestDBTracingPluginDisabledIsNoop(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	plugin := NewDBTracingPlugin(DefaultDBTracingConfig(), zap.NewNop())
	assert.NoError(t, plugin.Register(db))
}

func TestDBTracingPluginRegisters(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	cfg := DefaultDBTracingConfig()
	cfg.Enabled = true
	plugin := NewDBTracingPlugin(cfg, zap.NewNop())
	require.NoError(t, plugin.Register(db))

	// Callbacks must not break normal operation
	require.NoError(t, db.Exec("CREATE TABLE probe (id INTEGER PRIMARY KEY)").Error)
	require.NoError(t, db.Exec("INSERT INTO probe (id) VALUES (1)").Error)
}
