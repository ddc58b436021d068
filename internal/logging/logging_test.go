package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in       string
		expected zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"WARN", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseLevel(tt.in), tt.in)
	}
}

func TestNewNilFileWritesConsoleOnly(t *testing.T) {
	var writeErr error
	prev := zerolog.ErrorHandler
	zerolog.ErrorHandler = func(err error) { writeErr = err }
	defer func() { zerolog.ErrorHandler = prev }()

	log := New("info", (*os.File)(nil))
	log.Info().Msg("console fallback")
	assert.NoError(t, writeErr, "a nil log file must not be wired into the writer")
}

func TestNewWritesToFile(t *testing.T) {
	start := time.Now()
	dir := t.TempDir()

	file, err := OpenLogFile(dir, "test", start)
	require.NoError(t, err)
	defer file.Close()

	log := New("info", file)
	log.Info().Msg("hello")

	data, err := os.ReadFile(LogFilePath(dir, "test", start))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"hello"`)
}

func TestLogFilePath(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 30, 45, 0, time.UTC)
	path := LogFilePath("logs", "sim", start)
	assert.Equal(t, filepath.Join("logs", "sim.20260831_123045.log"), path)
}
