package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/notifyhub/notification-queue/internal/logging"
)

func TestNew(t *testing.T) {
	tests := []struct {
		env, level string
		enabled    zapcore.Level
		disabled   zapcore.Level
	}{
		{"production", "warn", zapcore.WarnLevel, zapcore.InfoLevel},
		{"development", "debug", zapcore.DebugLevel, zapcore.DebugLevel - 1},
		{"development", "nonsense", zapcore.InfoLevel, zapcore.DebugLevel},
	}
	for _, tc := range tests {
		t.Run(tc.env+"/"+tc.level, func(t *testing.T) {
			logger, err := logging.New(tc.env, tc.level)
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tc.enabled))
			assert.False(t, logger.Core().Enabled(tc.disabled))
		})
	}
}
