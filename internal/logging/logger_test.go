package logging

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "warn", "text").Info("dropped")
	assert.Empty(t, buf.String())

	NewWithWriter(&buf, "warn", "text").Warn("lease lost", slog.Uint64("job_id", 4))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "job_id=4")

	buf.Reset()
	NewWithWriter(&buf, "debug", "json").Debug("job claimed")
	assert.Contains(t, buf.String(), `"msg":"job claimed"`)
}
