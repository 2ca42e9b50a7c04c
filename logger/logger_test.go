package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestLoggerSharesEntriesAcrossDerivedLoggers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := NewTestLogger()
	derived := base.WithField("iteration", 3)

	base.Info(ctx, "first", nil)
	derived.Warn(ctx, "second", map[string]interface{}{"target": "ref:4"})

	entries := base.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "warn", entries[1].Level)
	assert.Equal(t, 3, entries[1].Fields["iteration"])
	assert.Equal(t, "ref:4", entries[1].Fields["target"])
	assert.Equal(t, []string{"second"}, base.Messages("warn"))

	base.Reset()
	assert.Empty(t, base.Entries())
}

func TestLogrusLoggerWritesRotatingFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sentinel.log")
	log := NewLogrusLoggerWithOptions(Options{Level: "debug", Format: "json", File: path, MaxSizeMB: 1})
	log.WithField("component", "test").Debug(context.Background(), "hello", map[string]interface{}{"k": "v"})
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}

func TestLogrusLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	t.Parallel()

	log := NewLogrusLogger("shouting")
	assert.Equal(t, "info", log.logger.GetLevel().String())
}
