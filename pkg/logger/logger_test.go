package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLogLevel(tt.input))
		})
	}
}

func TestNew(t *testing.T) {
	log, err := New("debug")
	require.NoError(t, err)
	require.NotNil(t, log.Logger)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNewWithOptions(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := NewWithOptions(Options{Level: "warn", Output: &buf})
		require.NoError(t, err)

		log.Named("voting").Info("dropped")
		log.Named("voting").WithField("category", "Queen").Warn("vote rejected")
		require.NoError(t, log.Sync())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "voting", entry["logger"])
		assert.Equal(t, "vote rejected", entry["message"])
		assert.Equal(t, "Queen", entry["category"])
		assert.Contains(t, entry, "timestamp")
	})

	t.Run("console", func(t *testing.T) {
		var buf bytes.Buffer
		log, err := NewWithOptions(Options{Level: "info", Format: "Console", Output: &buf})
		require.NoError(t, err)

		log.Info("server starting")
		require.NoError(t, log.Sync())
		assert.Contains(t, buf.String(), "INFO")
		assert.Contains(t, buf.String(), "server starting")
		assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
	})

	t.Run("unknown format", func(t *testing.T) {
		log, err := NewWithOptions(Options{Format: "logfmt"})
		assert.Error(t, err)
		assert.Nil(t, log)
	})
}

func TestWithHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := &Logger{Logger: zap.New(core)}

	log.WithField("category", "King").
		WithFields(map[string]interface{}{"dimension": "network"}).
		WithError(errors.New("boom")).
		Info("vote rejected")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	ctx := entry.ContextMap()
	assert.Equal(t, "vote rejected", entry.Message)
	assert.Equal(t, "King", ctx["category"])
	assert.Equal(t, "network", ctx["dimension"])
	assert.Equal(t, "boom", ctx["error"])
}
