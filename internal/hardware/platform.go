package hardware

import (
	"context"
	"sync"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/logger"
)

// Simulated is a Platform whose register contents come from a Description.
// It stands in for the i2c-backed reader on development hosts and in tests.
type Simulated struct {
	mu      sync.RWMutex
	desc    *Description
	applied map[string]fan.Speed
	logger  logger.Logger
}

func NewSimulated(desc *Description, log logger.Logger) *Simulated {
	if desc == nil {
		desc = &Description{}
	}
	return &Simulated{
		desc:    desc,
		applied: make(map[string]fan.Speed),
		logger:  log,
	}
}

// Replace swaps in a reloaded description.
func (p *Simulated) Replace(desc *Description) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.desc = desc
}

// Update lets simulation tooling change register contents in place.
func (p *Simulated) Update(fn func(*Description)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.desc)
}

func (p *Simulated) Subsystems() []Subsystem {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Subsystem, 0, len(p.desc.Subsystems))
	for _, sub := range p.desc.Subsystems {
		s := Subsystem{Name: sub.Name}
		for _, fru := range sub.FanFRUs {
			for _, f := range fru.Fans {
				s.Fans = append(s.Fans, FanName(sub.Name, f.Name))
			}
		}
		out = append(out, s)
	}

	return out
}

func (p *Simulated) Read(ctx context.Context, subsystem, fanName string) (Sample, error) {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return Sample{}, errFactory.Wrap(ErrReadFailed, err)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	sub := p.subsystem(subsystem)
	if sub == nil {
		return Sample{}, errFactory.WithData(ErrUnknownSubsystem, subsystem)
	}

	for _, fru := range sub.FanFRUs {
		for _, f := range fru.Fans {
			if FanName(sub.Name, f.Name) != fanName {
				continue
			}
			if f.Unreachable {
				return Sample{}, errFactory.WithData(ErrReadFailed, struct {
					Subsystem string
					Fan       string
				}{
					Subsystem: subsystem,
					Fan:       fanName,
				})
			}

			sample := Sample{
				Direction: fan.FrontToBack,
				Status:    fan.OK,
				RPM:       f.Count * sub.multiplier(),
			}
			if fru.Direction != "" {
				// validated on load
				sample.Direction, _ = fan.ParseDirection(fru.Direction)
			}
			if f.Fault {
				sample.Status = fan.Fault
			}

			return sample, nil
		}
	}

	return Sample{}, errFactory.WithData(ErrUnknownFan, fanName)
}

func (p *Simulated) SetSpeed(ctx context.Context, subsystem string, speed fan.Speed) error {
	errFactory := errors.New()

	if !speed.Valid() {
		return errFactory.WithData(errors.ErrValidation, "unknown speed tier")
	}
	if err := ctx.Err(); err != nil {
		return errFactory.Wrap(ErrSetSpeedFailed, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.subsystem(subsystem) == nil {
		return errFactory.WithData(ErrUnknownSubsystem, subsystem)
	}

	if p.applied[subsystem] != speed {
		p.logger.Debug().
			Str("subsystem", subsystem).
			Str("speed", speed.String()).
			Msg("Setting fan speed control")
	}
	p.applied[subsystem] = speed

	return nil
}

// Applied returns the speed last programmed for subsystem.
func (p *Simulated) Applied(subsystem string) (fan.Speed, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.applied[subsystem]
	return s, ok
}

func (p *Simulated) SensorStates(subsystem string) []fan.Speed {
	p.mu.RLock()
	defer p.mu.RUnlock()

	sub := p.subsystem(subsystem)
	if sub == nil {
		return nil
	}

	states := make([]fan.Speed, 0, len(sub.TempSensors))
	for _, s := range sub.TempSensors {
		if speed, err := fan.ParseSpeed(s.FanState); err == nil {
			states = append(states, speed)
		}
	}

	return states
}

func (p *Simulated) subsystem(name string) *SubsystemDesc {
	for i := range p.desc.Subsystems {
		if p.desc.Subsystems[i].Name == name {
			return &p.desc.Subsystems[i]
		}
	}
	return nil
}
