package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewHandlerRenamesCoreAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf))

	logger.Warn("quota row missing", "user_id", "abc")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "quota row missing", line["message"])
	require.Equal(t, "WARN", line["severity"])
	require.Contains(t, line, "timestamp")
	require.Equal(t, "abc", line["user_id"])
	require.NotContains(t, line, "msg")
	require.NotContains(t, line, "level")
}

func TestSetupReturnsLoggerWithServiceAttrs(t *testing.T) {
	logger := Setup("fundcore-test", "test")
	require.NotNil(t, logger)
	require.Same(t, logger, slog.Default())
}
