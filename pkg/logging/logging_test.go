package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestStructuredLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "debug", Format: "json"}, &buf)

	child := logger.With(String("component", "voice"))
	child.Info("Joined voice channel",
		String("guild_id", "g1"),
		Int("attempt", 2),
		Bool("deaf", true),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Joined voice channel", entry["message"])
	assert.Equal(t, "voice", entry["component"])
	assert.Equal(t, "g1", entry["guild_id"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.Equal(t, true, entry["deaf"])
	assert.Equal(t, "1.5s", entry["took"])
	assert.Equal(t, "boom", entry["error"])
}

func TestStructuredLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: "warn", Format: "json"}, &buf)

	logger.Debug("hidden")
	logger.Info("hidden too")
	logger.Warn("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown")
}

func TestErrorFieldNil(t *testing.T) {
	f := Error(nil)
	assert.Equal(t, "error", f.Key)
	assert.Nil(t, f.Value)
}

func TestStdLogAdapter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewStdLogAdapter(NewWithWriter(Config{Level: "info", Format: "json"}, &buf))

	n, err := adapter.Write([]byte("  discordgo says hi \n"))
	require.NoError(t, err)
	assert.Equal(t, 21, n)
	assert.Contains(t, buf.String(), `"message":"discordgo says hi"`)

	buf.Reset()
	_, _ = adapter.Write([]byte("   \n"))
	assert.Empty(t, buf.String())
}

func TestNullLogger(t *testing.T) {
	logger := NullLogger()
	logger.Error("nothing happens", String("k", "v"))
	assert.NotNil(t, logger.With(String("a", "b")))
}
