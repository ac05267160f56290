package policy_test

import (
	"testing"

	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/policy"
	"github.com/stretchr/testify/assert"
)

type sensors map[string][]fan.Speed

func (s sensors) SensorStates(subsystem string) []fan.Speed { return s[subsystem] }

func TestHighest(t *testing.T) {
	tests := []struct {
		name   string
		states []fan.Speed
		want   fan.Speed
	}{
		{"no sensors", nil, fan.Normal},
		{"single", []fan.Speed{fan.Slow}, fan.Slow},
		{"fastest wins", []fan.Speed{fan.Normal, fan.Max, fan.Fast}, fan.Max},
		{"invalid ignored", []fan.Speed{fan.Speed(0), fan.Medium}, fan.Medium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Highest(tt.states))
		})
	}
}

func TestPolicySpeedPerSubsystem(t *testing.T) {
	p := policy.New(sensors{"base": {fan.Normal, fan.Fast}})
	assert.Equal(t, fan.Fast, p.Speed("base"))
	assert.Equal(t, fan.Normal, p.Speed("line-card-1"))
}
