package logging

import (
	"context"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

// WithLogger stores logger in ctx. A nil logger stores the default.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	if logger == nil {
		logger = Default()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in ctx, or the default.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey{}).(*zerolog.Logger); ok && logger != nil {
			return logger
		}
	}
	return Default()
}

// Ctx is FromContext.
func Ctx(ctx context.Context) *zerolog.Logger {
	return FromContext(ctx)
}

// WithField returns ctx whose logger carries key=value.
func WithField(ctx context.Context, key string, value any) context.Context {
	l := FromContext(ctx).With().Interface(key, value).Logger()
	return WithLogger(ctx, &l)
}

// WithFields is WithField for several pairs.
func WithFields(ctx context.Context, fields map[string]any) context.Context {
	lc := FromContext(ctx).With()
	for k, v := range fields {
		lc = lc.Interface(k, v)
	}
	l := lc.Logger()
	return WithLogger(ctx, &l)
}

// WithResource tags the logger with a polled resource key.
func WithResource(ctx context.Context, key string) context.Context {
	l := FromContext(ctx).With().Str("resource_key", key).Logger()
	return WithLogger(ctx, &l)
}

// WithWorkflow tags the logger with a workflow definition id.
func WithWorkflow(ctx context.Context, id string) context.Context {
	l := FromContext(ctx).With().Str("workflow_id", id).Logger()
	return WithLogger(ctx, &l)
}

// WithError attaches err to the logger. A nil err leaves ctx unchanged.
func WithError(ctx context.Context, err error) context.Context {
	if err == nil {
		return ctx
	}
	l := FromContext(ctx).With().Err(err).Logger()
	return WithLogger(ctx, &l)
}
