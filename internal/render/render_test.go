package render_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemFanShowsEveryColumn(t *testing.T) {
	var buf bytes.Buffer
	fans := []fan.Record{{
		Name:      "base-FAN-1L",
		Direction: fan.FrontToBack,
		Speed:     fan.Normal,
		Status:    fan.OK,
		RPM:       9000,
	}, {
		Name:      "base-FAN-2L",
		Direction: fan.BackToFront,
		Speed:     fan.Normal,
		Status:    fan.Fault,
		RPM:       0,
	}}

	require.NoError(t, render.SystemFan(&buf, fans, fan.Override{}))

	out := buf.String()
	for _, want := range []string{"base-FAN-1L", "front-to-back", "normal", "ok", "9000", "back-to-front", "fault"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, "Fan speed override is not configured")
}

func TestSystemFanOverrideLine(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, render.SystemFan(&buf, nil, fan.Override{Active: true, Speed: fan.Slow}))
	assert.Contains(t, buf.String(), "Fan speed override is set to : slow")
}

func TestRunningConfig(t *testing.T) {
	tests := []struct {
		name string
		ov   fan.Override
		want string
	}{
		{"inactive", fan.Override{}, ""},
		{"slow", fan.Override{Active: true, Speed: fan.Slow}, "fan-speed slow\n"},
		{"normal still printed", fan.Override{Active: true, Speed: fan.Normal}, "fan-speed normal\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, render.RunningConfig(&buf, tt.ov))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
