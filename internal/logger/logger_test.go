package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	dev := New("svc", "development", "")
	assert.True(t, dev.Desugar().Core().Enabled(zapcore.DebugLevel))

	prod := New("svc", "production", "")
	assert.False(t, prod.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, prod.Desugar().Core().Enabled(zapcore.InfoLevel))

	quiet := New("svc", "development", "error")
	assert.False(t, quiet.Desugar().Core().Enabled(zapcore.WarnLevel))
}

func TestWithContextKeepsLoggerWithoutRequestID(t *testing.T) {
	l := NewNop()
	assert.Same(t, l, l.WithContext(context.Background()))

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	assert.NotSame(t, l, l.WithContext(ctx))
}
