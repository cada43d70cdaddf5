package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveLevel(t *testing.T) {
	t.Setenv(LevelEnv, "")

	lvl, err := ResolveLevel(true, "error")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, lvl)

	lvl, err = ResolveLevel(false, "")
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, lvl)

	lvl, err = ResolveLevel(false, "warn")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, lvl)

	_, err = ResolveLevel(false, "loud")
	require.Error(t, err)
}

func TestResolveLevelFromEnv(t *testing.T) {
	t.Setenv(LevelEnv, "ERROR")
	lvl, err := ResolveLevel(false, "info")
	require.NoError(t, err)
	require.Equal(t, slog.LevelError, lvl)
}

func TestNewHandlerJSON(t *testing.T) {
	t.Setenv(LevelEnv, "")
	var buf bytes.Buffer
	h, err := NewHandler(Options{Format: JSON, Output: &buf})
	require.NoError(t, err)

	slog.New(h).Info("hello", "step", "build")
	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	require.Equal(t, "hello", rec["msg"])
	require.Equal(t, "build", rec["step"])
}

func TestNewHandlerFormats(t *testing.T) {
	t.Setenv(LevelEnv, "")
	for _, f := range []string{"", Text, Tint, "TINT"} {
		_, err := NewHandler(Options{Format: f, Output: &bytes.Buffer{}})
		require.NoError(t, err, f)
	}
	_, err := NewHandler(Options{Format: "xml"})
	require.Error(t, err)
}
