package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_Development(t *testing.T) {
	log, err := New("development", "")
	require.NoError(t, err)

	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_ProductionHonorsLevel(t *testing.T) {
	log, err := New(EnvProduction, "warn")
	require.NoError(t, err)

	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestParseLevel_FallsBack(t *testing.T) {
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose", zapcore.InfoLevel))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error", zapcore.InfoLevel))
}
