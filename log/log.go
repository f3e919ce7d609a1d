// Package log carries a zap logger through contexts.
//
// The default logger is a human readable development logger. Call Structured
// once at startup to switch to JSON output, e.g. when running inside a
// workflow pod. The LOGLEVEL environment variable (debug, info, warn, error)
// sets the minimal level of structured loggers.
package log

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

var (
	mu      sync.RWMutex
	current *zap.Logger
)

func init() {
	l, err := zap.NewDevelopment()
	if err != nil {
		l = zap.NewNop()
	}
	current = l
}

func level() zapcore.Level {
	lvl := zapcore.InfoLevel
	if env := os.Getenv("LOGLEVEL"); env != "" {
		_ = lvl.Set(env)
	}
	return lvl
}

// Structured replaces the default logger with a JSON production logger
func Structured() {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level())
	cfg.Sampling = nil
	l, err := cfg.Build()
	if err != nil {
		return
	}
	SetDefault(l)
}

// SetDefault replaces the logger returned for contexts carrying none
func SetDefault(l *zap.Logger) {
	mu.Lock()
	current = l
	mu.Unlock()
}

// Default returns the process wide logger
func Default() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// WithLogger returns a copy of ctx carrying l
func WithLogger(ctx context.Context, l *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// With returns a copy of ctx whose logger carries the additional fields
func With(ctx context.Context, fields ...zap.Field) context.Context {
	return WithLogger(ctx, Logger(ctx).With(fields...))
}

// Logger returns the logger carried by ctx, or the default one
func Logger(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return Default()
}
