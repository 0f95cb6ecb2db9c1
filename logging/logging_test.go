package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		" warn ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"verbose": zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewHonoursLevel(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := New("warn", format, "spruce-test")
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel), format)
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel), format)
		_ = logger.Sync()
	}
}
