package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log/global"
)

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	previous := slog.Default()
	tracerProvider := otel.GetTracerProvider()
	loggerProvider := global.GetLoggerProvider()
	t.Cleanup(func() {
		slog.SetDefault(previous)
		otel.SetTracerProvider(tracerProvider)
		global.SetLoggerProvider(loggerProvider)
	})
}

func TestInstrumentText(t *testing.T) {
	restoreDefaultLogger(t)

	var out bytes.Buffer
	shutdown, err := Instrument(t.Context(), Options{Level: slog.LevelInfo, Format: "text", Output: &out})
	require.NoError(t, err)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	slog.Debug("hidden")
	slog.Info("token refreshed", "expires_in", 1200)

	require.NotContains(t, out.String(), "hidden")
	require.Contains(t, out.String(), `msg="token refreshed"`)
	require.Contains(t, out.String(), "expires_in=1200")
}

func TestInstrumentJSON(t *testing.T) {
	restoreDefaultLogger(t)

	var out bytes.Buffer
	_, err := Instrument(t.Context(), Options{Level: slog.LevelDebug, Format: "json", Output: &out})
	require.NoError(t, err)

	slog.Debug("loaded token", "path", "ts_state.json")

	var record map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &record))
	require.Equal(t, "loaded token", record["msg"])
	require.Equal(t, "DEBUG", record["level"])
	require.Equal(t, "ts_state.json", record["path"])
}

func TestInstrumentStdoutExporter(t *testing.T) {
	restoreDefaultLogger(t)

	var console, exported bytes.Buffer
	shutdown, err := Instrument(t.Context(), Options{
		Level:        slog.LevelInfo,
		Format:       "text",
		Exporter:     ExporterStdout,
		Output:       &console,
		ExportOutput: &exported,
	})
	require.NoError(t, err)

	slog.Debug("not exported")
	slog.Warn("refresh failed", "status", 400)

	require.NoError(t, shutdown(context.Background()))

	require.Contains(t, console.String(), "refresh failed")
	require.Contains(t, exported.String(), "refresh failed")
	require.NotContains(t, exported.String(), "not exported")
}

func TestInstrumentStdoutExporterSpans(t *testing.T) {
	restoreDefaultLogger(t)

	var console, exported bytes.Buffer
	shutdown, err := Instrument(t.Context(), Options{
		Level:        slog.LevelInfo,
		Exporter:     ExporterStdout,
		Output:       &console,
		ExportOutput: &exported,
	})
	require.NoError(t, err)

	ctx, span := otel.Tracer("tokensource").Start(context.Background(), "tokensource.Refresh")
	traceID := span.SpanContext().TraceID().String()
	require.True(t, span.SpanContext().IsValid())
	slog.InfoContext(ctx, "access token refreshed")
	span.End()

	require.NoError(t, shutdown(context.Background()))

	require.Contains(t, exported.String(), "tokensource.Refresh")
	// Once in the span, once in the correlated log record
	require.GreaterOrEqual(t, strings.Count(exported.String(), traceID), 2)
}

func TestInstrumentRejectsUnknownSettings(t *testing.T) {
	restoreDefaultLogger(t)

	_, err := Instrument(t.Context(), Options{Format: "xml"})
	require.Error(t, err)

	_, err = Instrument(t.Context(), Options{Exporter: "zipkin"})
	require.Error(t, err)
}

func TestFanoutRespectsHandlerLevels(t *testing.T) {
	var debug, warn bytes.Buffer
	logger := slog.New(fanout{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}).With("component", "manager")

	logger.Info("fresh token")

	require.Contains(t, debug.String(), "component=manager")
	require.Empty(t, warn.String())
}
