// Schildwächter's Solar Courier
// Copyright Carsten Thiel 2025-2026
//
// SPDX-Identifier: Apache-2.0

package o11y

import (
	"context"
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger starts out discarding so packages can log before CreateLogger ran (e.g. in tests)
var Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// LogOptions selects the local sinks next to the OTEL bridge
type LogOptions struct {
	JSON    bool
	LogFile string
}

// CreateLogger fans out to OTEL, stdout and optionally a rotating file
func CreateLogger(appName string, opts LogOptions) {
	handlers := []slog.Handler{otelslog.NewLogger(appName).Handler()}

	if opts.JSON {
		handlers = append(handlers, slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{}))
	} else {
		handlers = append(handlers, slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	if opts.LogFile != "" {
		handlers = append(handlers, slog.NewJSONHandler(fileWriter(opts.LogFile), &slog.HandlerOptions{}))
	}

	Logger = slog.New(slogmulti.Fanout(handlers...))
}

func fileWriter(path string) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
		LocalTime:  true,
	}
}

func LoggerTraceAttr(ctx context.Context, span trace.Span) slog.Attr {
	var traceAttr slog.Attr
	if trace.SpanFromContext(ctx).SpanContext().HasTraceID() {
		traceAttr = slog.String("trace_id", span.SpanContext().TraceID().String())
	}
	return traceAttr
}

func LoggerSpanAttr(ctx context.Context, span trace.Span) slog.Attr {
	var spanAttr slog.Attr
	if trace.SpanFromContext(ctx).SpanContext().HasSpanID() {
		spanAttr = slog.String("span_id", span.SpanContext().SpanID().String())
	}
	return spanAttr
}
