package logger_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
	}{
		{"debug", logger.DebugLevel},
		{"INFO", logger.InfoLevel},
		{"", logger.WarnLevel},
		{"warning", logger.WarnLevel},
		{"error", logger.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := logger.ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := logger.ParseLevel("chatty")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestComponentAndErrorCode(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf).With("daemon")

	log.ErrorWithCode(errors.New().New(errors.ErrStoreUnavailable)).Msg("write deferred")

	out := buf.String()
	assert.Contains(t, out, `"component":"daemon"`)
	assert.Contains(t, out, `"error_code":"store_unavailable"`)
	assert.Contains(t, out, "write deferred")
}

func TestLimitedDropsBurst(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewLimited(logger.New(&buf), time.Hour, 2)

	for i := 0; i < 5; i++ {
		log.Warn().Int("attempt", i).Msg("store unavailable")
	}
	log.Info().Msg("still here")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"attempt":0`)
	assert.Contains(t, lines[1], `"attempt":1`)
	assert.Contains(t, lines[2], "still here")
}

func TestNopDiscards(t *testing.T) {
	log := logger.Nop()
	assert.NotPanics(t, func() {
		log.Error().Err(fmt.Errorf("boom")).Msg("ignored")
	})
}
