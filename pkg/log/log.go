// Package log provides a context-scoped structured logger, the non-Kubernetes
// equivalent of the teacher's knative.dev/pkg/logging.FromContext convention.
package log

import (
	"context"

	"go.uber.org/zap"
)

type ctxKeyType struct{}

var ctxKey = ctxKeyType{}

var fallback = zap.NewNop().Sugar()

// IntoContext returns a copy of ctx carrying logger.
func IntoContext(ctx context.Context, logger *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, ctxKey, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger if none was set.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if logger, ok := ctx.Value(ctxKey).(*zap.SugaredLogger); ok {
		return logger
	}
	return fallback
}

// New builds the process-wide base logger for the given environment ("development" or "production").
func New(environment string) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if environment == "development" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}
