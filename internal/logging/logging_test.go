package logging_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ligun0805/safe-batch/internal/logging"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, logging.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, logging.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, logging.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, logging.ParseLevel("loud"))
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logging.New(&buf, slog.LevelWarn, false)
	log.Info("quiet")
	log.Warn("nonce moved", "nonce", 7)
	out := buf.String()
	assert.NotContains(t, out, "quiet")
	assert.Contains(t, out, "nonce moved")
	assert.Contains(t, out, "nonce=7")
}

func TestMaskHex(t *testing.T) {
	assert.Equal(t, "***", logging.MaskHex("0x1234"))
	assert.Equal(t, "0x4c08…2318", logging.MaskHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"))
}
