// Package logging threads request-scoped slog loggers through context,
// so stores and workers log with the correlation attributes of the
// request that reached them.
package logging

import (
	"context"
	"io"
	"log/slog"
)

type loggerKey struct{}

// WithLogger stores logger in ctx for downstream call sites.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, ensure(logger))
}

// FromContext returns the request-scoped logger, then fallback, then a
// silent logger. Callers never nil-check the result.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
			return logger
		}
	}
	return ensure(fallback)
}

func ensure(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
