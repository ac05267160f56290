package daemon

import (
	"context"
	"slices"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/registry"
	"codeberg.org/mutker/fand/internal/store"
	"github.com/google/uuid"
)

// discover brings the subsystem rows and the registry in line with the
// platform. New fans enter the registry as placeholders and get their first
// sample in the same pass. Subsystems and fans that vanished are forgotten
// together with their rows.
func (d *Daemon) discover(ctx context.Context, res *Result) error {
	if d.subsystems == nil {
		if err := d.loadSubsystems(ctx); err != nil {
			return err
		}
	}

	present := make(map[string]struct{})
	for _, sub := range d.platform.Subsystems() {
		present[sub.Name] = struct{}{}

		fans := slices.Clone(sub.Fans)
		slices.Sort(fans)

		for _, name := range fans {
			if _, ok := d.registry.Get(name); ok && d.registry.OriginOf(name) == registry.Hardware {
				continue
			}
			// a hardware fan replaces an injected one of the same name
			d.registry.Remove(name)
			if err := d.registry.Upsert(fan.Placeholder(name, sub.Name)); err != nil {
				return err
			}
			d.logger.Info().Str("fan", name).Str("subsystem", sub.Name).Msg("Discovered fan")
		}
		d.forgetFans(ctx, sub.Name, fans, res)

		known, ok := d.subsystems[sub.Name]
		if ok && slices.Equal(known.Fans, fans) {
			continue
		}

		row := store.Subsystem{ID: known.ID, Name: sub.Name, Fans: fans}
		if !ok {
			row.ID = uuid.New()
		}
		if err := d.store.WriteSubsystem(ctx, row); err != nil {
			res.Deferred++
			d.failures.ErrorWithCode(err).Str("subsystem", sub.Name).Msg("Subsystem row write deferred")
			continue
		}
		d.subsystems[sub.Name] = row
		d.logger.Info().
			Str("subsystem", sub.Name).
			Str("id", row.ID.String()).
			Int("fans", len(fans)).
			Msg("Subsystem registered")
	}

	for name, known := range d.subsystems {
		if _, ok := present[name]; ok {
			continue
		}
		d.forgetFans(ctx, name, nil, res)

		err := d.store.DeleteSubsystem(ctx, known.ID)
		if err != nil && !errors.HasCode(err, store.ErrSubsystemNotFound) {
			res.Deferred++
			d.failures.ErrorWithCode(err).Str("subsystem", name).Msg("Subsystem removal deferred")
			continue
		}
		delete(d.subsystems, name)
		delete(d.applied, name)
		d.logger.Info().Str("subsystem", name).Msg("Subsystem removed")
	}

	return nil
}

// loadSubsystems reuses persisted subsystem ids across restarts.
func (d *Daemon) loadSubsystems(ctx context.Context) error {
	rows, err := d.store.ReadSubsystems(ctx)
	if err != nil {
		return err
	}

	d.subsystems = make(map[string]store.Subsystem, len(rows))
	for _, row := range rows {
		d.subsystems[row.Name] = row
	}
	return nil
}

// forgetFans drops hardware fans of subsystem that are not in keep, along
// with their rows.
func (d *Daemon) forgetFans(ctx context.Context, subsystem string, keep []string, res *Result) {
	for _, rec := range d.registry.ListFans() {
		if rec.Subsystem != subsystem || d.registry.OriginOf(rec.Name) != registry.Hardware {
			continue
		}
		if slices.Contains(keep, rec.Name) {
			continue
		}
		if err := d.store.DeleteFanRow(ctx, rec.Name); err != nil {
			res.Deferred++
			d.failures.ErrorWithCode(err).Str("fan", rec.Name).Msg("Fan row removal deferred")
			continue
		}
		d.registry.Remove(rec.Name)
		d.logger.Info().Str("fan", rec.Name).Msg("Fan removed")
	}
}
