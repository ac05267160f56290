package daemon

import (
	"context"
	"sort"
	"time"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/registry"
	"codeberg.org/mutker/fand/internal/store"
)

// Report is the daemon's internal state as of the last pass.
type Report struct {
	LastPass   time.Time         `json:"last_pass"`
	Ready      bool              `json:"ready"`
	Override   fan.Override      `json:"override"`
	Subsystems []SubsystemReport `json:"subsystems"`
	// Injected lists operator-inserted fans.
	Injected []fan.Record `json:"injected,omitempty"`
}

type SubsystemReport struct {
	ID        string       `json:"id,omitempty"`
	Name      string       `json:"name"`
	Policy    fan.Speed    `json:"policy_speed"`
	Effective fan.Speed    `json:"effective_speed"`
	Applied   fan.Speed    `json:"applied_speed,omitempty"`
	Fans      []fan.Record `json:"fans"`
}

// Dump reports the registry grouped by subsystem together with the override
// and policy inputs that produced it.
func (d *Daemon) Dump() Report {
	d.mu.Lock()
	defer d.mu.Unlock()

	rep := Report{
		LastPass: d.lastPass,
		Ready:    d.ready,
		Override: d.lastOverride,
	}

	bySub := make(map[string][]fan.Record)
	for _, rec := range d.registry.ListFans() {
		if d.registry.OriginOf(rec.Name) == registry.Injected {
			rep.Injected = append(rep.Injected, rec)
			continue
		}
		bySub[rec.Subsystem] = append(bySub[rec.Subsystem], rec)
	}

	for _, sub := range d.platform.Subsystems() {
		name := sub.Name
		p := d.policy.Speed(name)
		var id string
		if row, ok := d.subsystems[name]; ok {
			id = row.ID.String()
		}
		rep.Subsystems = append(rep.Subsystems, SubsystemReport{
			ID:        id,
			Name:      name,
			Policy:    p,
			Effective: d.lastOverride.Effective(p),
			Applied:   d.applied[name],
			Fans:      bySub[name],
		})
	}
	sort.Slice(rep.Subsystems, func(i, j int) bool {
		return rep.Subsystems[i].Name < rep.Subsystems[j].Name
	})

	return rep
}

// Fans returns the persisted fan rows ordered by name.
func (d *Daemon) Fans(ctx context.Context) ([]fan.Record, error) {
	rows, err := d.store.ReadFanRows(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]fan.Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out, nil
}

func (d *Daemon) Subsystems(ctx context.Context) ([]store.Subsystem, error) {
	return d.store.ReadSubsystems(ctx)
}

// Ready reports whether the first hardware state has been published.
func (d *Daemon) Ready(ctx context.Context) (bool, error) {
	return d.store.DaemonHardwareReady(ctx, d.cfg.Name)
}

// ErrSimulationDisabled rejects synthetic inserts on real hardware.
const ErrSimulationDisabled = errors.ErrorCode("simulation_disabled")

// InsertFan writes an operator-supplied fan row. The next pass adopts it as
// an injected fan. A name already sampled from the hardware is rejected since
// the next pass would overwrite the row with the hardware reading.
func (d *Daemon) InsertFan(ctx context.Context, rec fan.Record) error {
	errFactory := errors.New()

	if !d.cfg.Simulation {
		return errFactory.WithMessage(ErrSimulationDisabled, "fan insert requires simulation mode")
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if _, ok := d.registry.Get(rec.Name); ok && d.registry.OriginOf(rec.Name) == registry.Hardware {
		return errFactory.WithData(errors.ErrValidation, struct {
			Field string
			Value string
		}{
			Field: "name",
			Value: rec.Name + " is a hardware fan",
		})
	}
	return d.store.WriteFanRow(ctx, rec)
}

func (d *Daemon) CurrentOverride(ctx context.Context) (fan.Override, error) {
	return d.override.Current(ctx)
}

// SetOverride handles "fan-speed <tier>".
func (d *Daemon) SetOverride(ctx context.Context, tier string) (fan.Speed, error) {
	return d.override.SetNamed(ctx, tier)
}

// ClearOverride handles "no fan-speed".
func (d *Daemon) ClearOverride(ctx context.Context) error {
	return d.override.Clear(ctx)
}
