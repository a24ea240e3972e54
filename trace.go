//go:build !notrace

package cssdecode

import (
	"context"
	"log/slog"
	"runtime"
)

// TracingEnabled is false when built with -tags notrace
const TracingEnabled = true

type traceLoggerKey struct{}

// the null logger is a logger that does nothing
var nullLogger = slog.New(slog.DiscardHandler)

// WithTraceLogger returns a context that carries tlog. Decode reports
// every encoding it tries to this logger, at debug level.
func WithTraceLogger(ctx context.Context, tlog *slog.Logger) context.Context {
	if tlog == nil {
		return ctx
	}

	// If the context already has a trace logger, return the context as is
	if _, ok := ctx.Value(traceLoggerKey{}).(*slog.Logger); ok {
		return ctx
	}

	return context.WithValue(ctx, traceLoggerKey{}, tlog)
}

func getTraceLogFromContext(ctx context.Context) *slog.Logger {
	if tlog, ok := ctx.Value(traceLoggerKey{}).(*slog.Logger); ok {
		// Retrieve the function name of the caller for tracing
		pc, _, _, ok := runtime.Caller(1)
		if ok {
			fn := runtime.FuncForPC(pc)
			if fn != nil {
				tlog = tlog.With(slog.String("fn", fn.Name()))
			}
		}

		return tlog
	}

	return nullLogger
}
