package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestFromContext_FallsBackToGlobal verifies the global logger is returned for a bare context.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestWithKV_AttachesFields checks that fields added to the context reach the log entry.
func TestWithKV_AttachesFields(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	ctx := ToContext(context.Background(), zap.New(core).Sugar())
	ctx = WithName(ctx, "detector")
	ctx = WithKV(ctx, "sketch", "blink")

	InfoKV(ctx, "Fingerprint computed", "files", 3)

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "detector", entries[0].LoggerName)
	require.Equal(t, "blink", entries[0].ContextMap()["sketch"])
	require.EqualValues(t, 3, entries[0].ContextMap()["files"])
}
