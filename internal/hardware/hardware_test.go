package hardware_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/hardware"
	"codeberg.org/mutker/fand/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const platformYAML = `
subsystems:
  - name: base
    fan_speed_multiplier: 120
    temp_sensors:
      - name: base-1
        fan_state: normal
      - name: base-2
        fan_state: fast
    fan_frus:
      - number: 1
        direction: f2b
        fans:
          - name: FAN-1L
            count: 75
          - name: FAN-1R
            count: 70
            fault: true
      - number: 2
        direction: b2f
        fans:
          - name: FAN-2L
            count: 10
            unreachable: true
`

func newPlatform(t *testing.T) *hardware.Simulated {
	t.Helper()
	desc, err := hardware.ParseDescription([]byte(platformYAML))
	require.NoError(t, err)
	return hardware.NewSimulated(desc, logger.Nop())
}

func TestSubsystemsQualifyFanNames(t *testing.T) {
	p := newPlatform(t)

	subs := p.Subsystems()
	require.Len(t, subs, 1)
	assert.Equal(t, "base", subs[0].Name)
	assert.Equal(t, []string{"base-FAN-1L", "base-FAN-1R", "base-FAN-2L"}, subs[0].Fans)
}

func TestReadAppliesMultiplierAndFault(t *testing.T) {
	p := newPlatform(t)
	ctx := context.Background()

	s, err := p.Read(ctx, "base", "base-FAN-1L")
	require.NoError(t, err)
	assert.Equal(t, hardware.Sample{Direction: fan.FrontToBack, Status: fan.OK, RPM: 9000}, s)

	s, err = p.Read(ctx, "base", "base-FAN-1R")
	require.NoError(t, err)
	assert.Equal(t, fan.Fault, s.Status)
	assert.Equal(t, 8400, s.RPM)
}

func TestReadFailures(t *testing.T) {
	p := newPlatform(t)
	ctx := context.Background()

	_, err := p.Read(ctx, "base", "base-FAN-2L")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrHardwareRead))

	_, err = p.Read(ctx, "base", "base-FAN-9")
	assert.True(t, errors.HasCode(err, hardware.ErrUnknownFan))

	_, err = p.Read(ctx, "psu", "psu-FAN-1")
	assert.True(t, errors.HasCode(err, hardware.ErrUnknownSubsystem))
}

func TestSetSpeedAndSensors(t *testing.T) {
	p := newPlatform(t)
	ctx := context.Background()

	require.NoError(t, p.SetSpeed(ctx, "base", fan.Medium))
	got, ok := p.Applied("base")
	require.True(t, ok)
	assert.Equal(t, fan.Medium, got)

	assert.Error(t, p.SetSpeed(ctx, "base", fan.Speed(0)))
	assert.Error(t, p.SetSpeed(ctx, "psu", fan.Slow))

	assert.Equal(t, []fan.Speed{fan.Normal, fan.Fast}, p.SensorStates("base"))
	assert.Nil(t, p.SensorStates("psu"))
}

func TestUpdateChangesRegisters(t *testing.T) {
	p := newPlatform(t)
	p.Update(func(d *hardware.Description) {
		d.Subsystems[0].FanFRUs[1].Fans[0].Unreachable = false
	})

	s, err := p.Read(context.Background(), "base", "base-FAN-2L")
	require.NoError(t, err)
	assert.Equal(t, fan.BackToFront, s.Direction)
	assert.Equal(t, 1200, s.RPM)
}

func TestParseDescriptionRejectsBadInput(t *testing.T) {
	tests := map[string]string{
		"bad yaml":       "subsystems: [",
		"unnamed":        "subsystems:\n  - fan_frus: []\n",
		"duplicate":      "subsystems:\n  - name: a\n  - name: a\n",
		"bad sensor":     "subsystems:\n  - name: a\n    temp_sensors:\n      - name: s\n        fan_state: turbo\n",
		"bad direction":  "subsystems:\n  - name: a\n    fan_frus:\n      - direction: up\n",
		"duplicate fan":  "subsystems:\n  - name: a\n    fan_frus:\n      - fans:\n          - name: F\n          - name: F\n",
		"negative count": "subsystems:\n  - name: a\n    fan_frus:\n      - fans:\n          - name: F\n            count: -1\n",
		"clashing qualified names": "subsystems:\n  - name: a-b\n    fan_frus:\n      - fans:\n          - name: c\n" +
			"  - name: a\n    fan_frus:\n      - fans:\n          - name: b-c\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := hardware.ParseDescription([]byte(data))
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, hardware.ErrDescriptionInvalid))
		})
	}
}

func TestLoadDescriptionMissingFile(t *testing.T) {
	_, err := hardware.LoadDescription(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, hardware.ErrDescriptionRead))
}

func TestWatcherReloadsDescription(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "platform.yaml")
	require.NoError(t, os.WriteFile(path, []byte(platformYAML), 0o600))

	desc, err := hardware.LoadDescription(path)
	require.NoError(t, err)
	p := hardware.NewSimulated(desc, logger.Nop())

	w, err := hardware.NewWatcher(path, p, logger.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	t.Cleanup(func() {
		cancel()
		_ = w.Close()
	})

	updated := `
subsystems:
  - name: base
    fan_frus:
      - fans:
          - name: FAN-1L
            count: 42
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case <-w.Events():
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event")
	}

	s, err := p.Read(context.Background(), "base", "base-FAN-1L")
	require.NoError(t, err)
	assert.Equal(t, 42, s.RPM)
}
