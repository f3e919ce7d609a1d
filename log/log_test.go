package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestContextLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := zap.New(core)

	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, Logger(ctx))

	ctx = With(ctx, zap.String("unit", "tile-1"))
	Logger(ctx).Info("done")
	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "done", entries[0].Message)
		assert.Equal(t, "tile-1", entries[0].ContextMap()["unit"])
	}
}

func TestDefaultLogger(t *testing.T) {
	assert.NotNil(t, Logger(context.Background()))
	assert.NotNil(t, Logger(nil))

	prev := Default()
	defer SetDefault(prev)
	l := zap.NewNop()
	SetDefault(l)
	assert.Same(t, l, Logger(context.Background()))
}
