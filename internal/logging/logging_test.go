package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, zap.DebugLevel, Level("debug"))
	assert.Equal(t, zap.WarnLevel, Level(" WARN "))
	assert.Equal(t, zap.ErrorLevel, Level("error"))
	assert.Equal(t, zap.InfoLevel, Level(""))
	assert.Equal(t, zap.InfoLevel, Level("verbose"))
}

func TestNew(t *testing.T) {
	logger, err := New("warn")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))
}
