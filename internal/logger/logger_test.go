package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/kass/go-mt-sites/pkg/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("loud"))
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.Log{Level: "warn", Format: "auto"})

	l.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	l.Warn().Str("site", "KIR012").Msg("rejected")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "KIR012", entry["site"])
	assert.Equal(t, "rejected", entry["message"])
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, config.Log{Level: "info", Format: "console"})
	l.Info().Msg("loaded")
	assert.Contains(t, buf.String(), "loaded")
	assert.False(t, json.Valid(buf.Bytes()))
}
