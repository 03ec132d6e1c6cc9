// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jeranaias/calliope-tui/internal/config"
)

func TestNew_NopWithoutOutputs(t *testing.T) {
	logger, cleanup, err := New(Options{Level: "debug"})
	require.NoError(t, err)
	defer cleanup()

	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestNew_FileReceivesJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "calliope.log")

	logger, cleanup, err := New(Options{Level: "info", File: path})
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("frame dropped", zap.String("reason", "bad json"))
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "frame dropped", rec["msg"])
	assert.Equal(t, "bad json", rec["reason"])
	assert.Equal(t, "info", rec["level"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zapcore.InfoLevel, ParseLevel("chatty"))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.File = "/tmp/x.log"
	cfg.Logging.Level = "warn"

	opts := FromConfig(cfg, true)
	assert.Equal(t, Options{Level: "warn", File: "/tmp/x.log", Verbose: true}, opts)
}
