// Package policy supplies the automatic-policy input: the speed tier each
// subsystem's temperature sensors are asking for.
package policy

import "codeberg.org/mutker/fand/internal/fan"

// SensorSource reports the tier requested by each sensor of a subsystem.
type SensorSource interface {
	SensorStates(subsystem string) []fan.Speed
}

// Default is used by subsystems with no sensors.
const Default = fan.Normal

type Policy struct {
	sensors SensorSource
}

func New(sensors SensorSource) *Policy {
	return &Policy{sensors: sensors}
}

// Speed returns the fastest tier any sensor of the subsystem requests.
func (p *Policy) Speed(subsystem string) fan.Speed {
	return Highest(p.sensors.SensorStates(subsystem))
}

func Highest(states []fan.Speed) fan.Speed {
	var out fan.Speed
	for _, s := range states {
		if s.Valid() {
			out = fan.Faster(out, s)
		}
	}
	if !out.Valid() {
		return Default
	}
	return out
}
