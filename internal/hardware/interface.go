// Package hardware describes the fan hardware of the chassis and gives the
// synchronization loop a way to sample it and push speed settings to it.
package hardware

import (
	"context"

	"codeberg.org/mutker/fand/internal/fan"
)

// Platform is the daemon's view of the fan hardware.
type Platform interface {
	// Subsystems lists the subsystems that carry fans, in description order.
	Subsystems() []Subsystem

	// Read samples one fan. A failure carries ErrReadFailed.
	Read(ctx context.Context, subsystem, fanName string) (Sample, error)

	// SetSpeed programs the speed control of a whole subsystem.
	SetSpeed(ctx context.Context, subsystem string, speed fan.Speed) error

	// SensorStates returns the tier each temperature sensor of the
	// subsystem is asking for.
	SensorStates(subsystem string) []fan.Speed
}

// Subsystem is a discovered chassis unit and the fans it owns.
type Subsystem struct {
	Name string
	// Fans are the fully qualified fan names, "<subsystem>-<fan>".
	Fans []string
}

// Sample is one hardware reading of a fan.
type Sample struct {
	Direction fan.Direction
	Status    fan.Status
	RPM       int
}

// FanName qualifies a fan name with its subsystem.
func FanName(subsystem, name string) string {
	return subsystem + "-" + name
}
