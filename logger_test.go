package inflight

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerImplementations(t *testing.T) {
	var buf bytes.Buffer
	slogAdapter, err := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)

	zapAdapter, err := NewZapAdapter(zap.NewNop())
	require.NoError(t, err)

	tests := []struct {
		name   string
		logger Logger
	}{
		{name: "NoOpLogger", logger: NewNoOpLogger()},
		{name: "ZapAdapter", logger: zapAdapter},
		{name: "SlogAdapter", logger: slogAdapter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.logger.Debug("debug message", String("key", "value"))
			tt.logger.Info("info message", Int("count", 42))
			tt.logger.Warn("warn message", Duration("elapsed", time.Second))
			tt.logger.Error("error message", Error(errors.New("test error")))

			named := tt.logger.Named("sub")
			require.NotNil(t, named)
			named.Info("named message", Int64("n", 7))
		})
	}
}

func TestNilLoggerRejected(t *testing.T) {
	_, err := NewZapAdapter(nil)
	assert.ErrorIs(t, err, ErrNilLogger)

	_, err = NewSlogAdapter(nil)
	assert.ErrorIs(t, err, ErrNilLogger)
}

func TestZapAdapterFieldConversion(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	adapter, err := NewZapAdapter(zap.New(core))
	require.NoError(t, err)

	testErr := errors.New("boom")
	adapter.Info("converted",
		String("s", "v"),
		Int("i", 1),
		Int64("i64", 2),
		Duration("d", time.Second),
		Error(testErr),
		Any("a", []int{1, 2}),
		Stack("stack trace here"),
		nil,
	)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "converted", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "v", fields["s"])
	assert.Equal(t, int64(1), fields["i"])
	assert.Equal(t, int64(2), fields["i64"])
	assert.Equal(t, time.Second, fields["d"])
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "stack trace here", fields["stacktrace"])
}

func TestZapAdapterNamed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	adapter, err := NewZapAdapter(zap.New(core))
	require.NoError(t, err)

	adapter.Named("coalescer").Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "coalescer", entries[0].LoggerName)
}

func TestSlogAdapterOutput(t *testing.T) {
	var buf bytes.Buffer
	adapter, err := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	require.NoError(t, err)

	adapter.Named("fetcher").Warn("store slow",
		String("key", "jobs-list-user1"),
		Duration("elapsed", 250*time.Millisecond),
		Error(errors.New("timeout")),
	)

	out := buf.String()
	assert.Contains(t, out, "store slow")
	assert.Contains(t, out, "component=fetcher")
	assert.Contains(t, out, "key=jobs-list-user1")
	assert.Contains(t, out, "error=timeout")
}

func TestFieldAccessors(t *testing.T) {
	f := String("k", "v")
	assert.Equal(t, "k", f.Key())
	assert.Equal(t, "v", f.Value())
	assert.Equal(t, FieldTypeString, f.Type())

	assert.Equal(t, FieldTypeStack, Stack("trace").Type())
	assert.Equal(t, "stacktrace", Stack("trace").Key())
	assert.Equal(t, "error", Error(nil).Key())
}
