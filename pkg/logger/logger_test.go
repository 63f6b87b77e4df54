package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "volbot.log")
	require.NoError(t, Init(Config{Level: "debug", Format: "json", OutputFile: path, MaxSize: 1}))
	t.Cleanup(func() { _ = InitDefault() })

	logrus.WithField("component", "test").Debug("hello")

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"component":"test"`)
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestInit_BadLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "loud"}))
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())
}
