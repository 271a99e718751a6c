package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		wantLevel logrus.Level
	}{
		{
			name: "file output",
			config: Config{
				Level:      "info",
				File:       filepath.Join(t.TempDir(), "botkit.log"),
				MaxSize:    1,
				MaxBackups: 1,
				MaxAge:     1,
			},
			wantLevel: logrus.InfoLevel,
		},
		{
			name:      "stdout only at debug",
			config:    Config{Level: "debug", EnableStdout: true},
			wantLevel: logrus.DebugLevel,
		},
		{
			name:      "invalid level defaults to info",
			config:    Config{Level: "loud", EnableStdout: true},
			wantLevel: logrus.InfoLevel,
		},
		{
			name:      "no writers",
			config:    Config{Level: "warn"},
			wantLevel: logrus.WarnLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, InitLogger(tt.config))
			assert.Equal(t, tt.wantLevel, GetLogger().GetLevel())
		})
	}
}

func TestInitLogger_CreatesLogDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	require.NoError(t, InitLogger(Config{Level: "info", File: filepath.Join(dir, "botkit.log")}))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestGetLogger_ReturnsSameInstance(t *testing.T) {
	assert.Same(t, GetLogger(), GetLogger())
}

func TestWithFields_WritesJSON(t *testing.T) {
	require.NoError(t, InitLogger(Config{Level: "info"}))
	var buf bytes.Buffer
	SetOutput(&buf)

	WithFields(logrus.Fields{"sender": "alice", "handler": "ping"}).Info("handler-executed")
	WithField("key", "value").Debug("hidden-at-info")

	out := buf.String()
	assert.Contains(t, out, `"msg":"handler-executed"`)
	assert.Contains(t, out, `"sender":"alice"`)
	assert.NotContains(t, out, "hidden-at-info")
}
