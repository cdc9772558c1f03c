package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, GetLevel("debug"))
	assert.Equal(t, logrus.ErrorLevel, GetLevel("ERROR"))
	assert.Equal(t, logrus.InfoLevel, GetLevel("info"))
	assert.Equal(t, logrus.WarnLevel, GetLevel("warn"))
	assert.Equal(t, logrus.WarnLevel, GetLevel("warning"))
	assert.Equal(t, logrus.TraceLevel, GetLevel("nonsense"))
}

func TestSetup_FileOutput(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)

	logFile := filepath.Join(t.TempDir(), "service")
	Setup(LoggerSetupParams{
		LogFileName: logFile,
		LogLevel:    "info",
	})

	logrus.Info("post added")
	logrus.Debug("invisible")

	content, err := os.ReadFile(logFile + ".log")
	require.NoError(t, err)
	assert.Contains(t, string(content), "post added")
	assert.NotContains(t, string(content), "invisible")
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}

func TestSentryHook_Levels(t *testing.T) {
	hook := NewSentryHook([]logrus.Level{logrus.ErrorLevel})
	assert.Equal(t, []logrus.Level{logrus.ErrorLevel}, hook.Levels())
	// sentry not initialised, firing must be a no-op
	assert.NoError(t, hook.Fire(&logrus.Entry{
		Level:   logrus.ErrorLevel,
		Message: "store down",
		Data:    logrus.Fields{"post_id": "abc"},
	}))
	assert.Equal(t, sentry.LevelFatal, sentryLevel(logrus.PanicLevel))
	assert.Equal(t, sentry.LevelWarning, sentryLevel(logrus.WarnLevel))
}
