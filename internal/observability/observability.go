// Package observability configures process-wide structured logging and the
// optional OpenTelemetry export pipeline for logs and traces.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ScopeName is the instrumentation scope of exported log records.
const ScopeName = "github.com/florianilch/tradestation-auth"

// Exporter names accepted by Instrument.
const (
	ExporterNone     = "none"
	ExporterStdout   = "stdout"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterOTLPHTTP = "otlp-http"
)

// Options controls Instrument.
type Options struct {
	Level  slog.Level
	Format string // text or json
	// Exporter selects where log records and spans are exported in addition
	// to Output.
	Exporter string
	// Output receives console logs. Defaults to os.Stderr.
	Output io.Writer
	// ExportOutput receives log records and spans of the stdout exporter.
	// Defaults to os.Stdout.
	ExportOutput io.Writer
}

// Instrument installs the default slog logger and, with an exporter, the
// global tracer and logger providers. Log records emitted inside a span carry
// its trace and span IDs. The returned shutdown flushes pending exports and
// must be called before the process exits.
func Instrument(ctx context.Context, opts Options) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	var console slog.Handler
	switch opts.Format {
	case "", "text":
		console = slog.NewTextHandler(out, handlerOpts)
	case "json":
		console = slog.NewJSONHandler(out, handlerOpts)
	default:
		return noop, fmt.Errorf("unsupported log format: %q", opts.Format)
	}

	if opts.Exporter == "" || opts.Exporter == ExporterNone {
		slog.SetDefault(slog.New(console))
		return noop, nil
	}

	logExporter, err := newLogExporter(ctx, opts)
	if err != nil {
		return noop, fmt.Errorf("creating %s log exporter: %w", opts.Exporter, err)
	}
	spanExporter, err := newSpanExporter(ctx, opts)
	if err != nil {
		return noop, fmt.Errorf("creating %s span exporter: %w", opts.Exporter, err)
	}

	var (
		downstream sdklog.Processor
		spans      sdktrace.TracerProviderOption
	)
	if opts.Exporter == ExporterStdout {
		downstream = sdklog.NewSimpleProcessor(logExporter)
		spans = sdktrace.WithSyncer(spanExporter)
	} else {
		downstream = sdklog.NewBatchProcessor(logExporter)
		spans = sdktrace.WithBatcher(spanExporter)
	}

	tracerProvider := sdktrace.NewTracerProvider(spans)
	otel.SetTracerProvider(tracerProvider)

	processor := minsev.NewLogProcessor(downstream, minsev.Severity(opts.Level))
	loggerProvider := sdklog.NewLoggerProvider(sdklog.WithProcessor(processor))
	global.SetLoggerProvider(loggerProvider)

	exported := otelslog.NewHandler(ScopeName, otelslog.WithLoggerProvider(loggerProvider))
	slog.SetDefault(slog.New(fanout{console, exported}))

	return func(ctx context.Context) error {
		var errs []error
		if err := tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down tracer provider: %w", err))
		}
		if err := loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down log provider: %w", err))
		}
		return errors.Join(errs...)
	}, nil
}

func exportOutput(opts Options) io.Writer {
	if opts.ExportOutput == nil {
		return os.Stdout
	}
	return opts.ExportOutput
}

func newSpanExporter(ctx context.Context, opts Options) (sdktrace.SpanExporter, error) {
	switch opts.Exporter {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(exportOutput(opts)))
	case ExporterOTLPGRPC:
		return otlptracegrpc.New(ctx)
	case ExporterOTLPHTTP:
		return otlptracehttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported exporter: %q", opts.Exporter)
	}
}

func newLogExporter(ctx context.Context, opts Options) (sdklog.Exporter, error) {
	switch opts.Exporter {
	case ExporterStdout:
		return stdoutlog.New(stdoutlog.WithWriter(exportOutput(opts)))
	case ExporterOTLPGRPC:
		// Endpoint and headers come from the standard OTEL_EXPORTER_OTLP_* variables
		return otlploggrpc.New(ctx)
	case ExporterOTLPHTTP:
		return otlploghttp.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported exporter: %q", opts.Exporter)
	}
}

// fanout sends every record to all handlers that accept its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithAttrs(attrs)
	}
	return next
}

func (f fanout) WithGroup(name string) slog.Handler {
	next := make(fanout, len(f))
	for i, h := range f {
		next[i] = h.WithGroup(name)
	}
	return next
}
