package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-interview/backend/internal/config"
)

func TestSetupWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWriter(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	logger.Info().Msg("hidden")
	logger.Warn().Str("component", "persist").Msg("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "shown", line["message"])
	assert.Equal(t, "persist", line["component"])
	assert.Equal(t, "warn", line["level"])
}

func TestSetupWriterFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(config.LogConfig{Level: "chatty", Format: "json"}, &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestComponentTagsLines(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(config.LogConfig{Level: "debug", Format: "json"}, &buf)
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	l := Component("stream")
	l.Debug().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"stream"`)
}
