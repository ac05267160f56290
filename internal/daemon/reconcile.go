package daemon

import (
	"context"
	"time"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/hardware"
	"codeberg.org/mutker/fand/internal/metrics"
	"codeberg.org/mutker/fand/internal/registry"
)

// Result summarizes one reconciliation pass.
type Result struct {
	Fans         int
	Writes       int
	Deferred     int
	ReadFailures int
}

// Reconcile runs one pass: discover subsystems, sample hardware, resolve
// each fan's effective speed against the override row re-read for this
// pass, and write back every fan row that differs from the merged record.
// Row writes that fail are deferred to the next pass. An error is returned
// only when the pass could not start because the store could not be read.
func (d *Daemon) Reconcile(ctx context.Context) (Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	start := time.Now()
	var res Result

	ov, err := d.store.ReadOverride(ctx)
	if err != nil {
		return res, err
	}
	d.lastOverride = ov

	if err := d.discover(ctx, &res); err != nil {
		return res, err
	}

	rows, err := d.store.ReadFanRows(ctx)
	if err != nil {
		return res, err
	}
	d.adopt(ctx, rows, &res)

	for _, current := range d.registry.ListFans() {
		merged, origin := d.merge(ctx, current, rows, ov, &res)

		if origin == registry.Injected {
			err = d.registry.Inject(merged)
		} else {
			err = d.registry.Upsert(merged)
		}
		if err != nil {
			d.logger.Error().Err(err).Str("fan", merged.Name).Msg("Discarding invalid sample")
			continue
		}

		if row, ok := rows[merged.Name]; ok && row == merged {
			continue
		}
		if err := d.store.WriteFanRow(ctx, merged); err != nil {
			res.Deferred++
			d.failures.ErrorWithCode(err).Str("fan", merged.Name).Msg("Fan row write deferred")
			continue
		}
		res.Writes++
	}
	res.Fans = d.registry.Len()

	d.actuate(ctx, ov)

	if !d.ready && res.Deferred == 0 {
		if err := d.store.SetDaemonHardwareReady(ctx, d.cfg.Name); err != nil {
			d.failures.ErrorWithCode(err).Msg("Daemon readiness write deferred")
		} else {
			d.ready = true
			d.logger.Info().Int("fans", res.Fans).Msg("Hardware state published")
		}
	}

	d.lastPass = time.Now()
	d.record(ctx, ov, res, time.Since(start))

	return res, nil
}

// merge applies hardware truth for direction, status and rpm and the
// override-aware speed to one registered fan.
func (d *Daemon) merge(
	ctx context.Context, current fan.Record, rows map[string]fan.Record, ov fan.Override, res *Result,
) (fan.Record, registry.Origin) {
	merged := current
	origin := d.registry.OriginOf(current.Name)

	switch origin {
	case registry.Injected:
		// the operator-inserted row stands in for the hardware
		if row, ok := rows[current.Name]; ok {
			merged.Direction = row.Direction
			merged.Status = row.Status
			merged.RPM = row.RPM
		}
	case registry.Hardware:
		sample, err := d.platform.Read(ctx, current.Subsystem, current.Name)
		if err != nil {
			res.ReadFailures++
			merged.Status = fan.Fault
			if isReadFailure(err) {
				d.failures.Warn().Err(err).Str("fan", current.Name).Msg("Fan read failed")
			} else {
				d.failures.ErrorWithCode(err).Str("fan", current.Name).Msg("Fan vanished from platform")
			}
		} else {
			merged.Direction = sample.Direction
			merged.Status = sample.Status
			merged.RPM = sample.RPM
		}
	}

	merged.Speed = ov.Effective(d.policy.Speed(current.Subsystem))
	return merged, origin
}

// adopt registers rows with no registered fan as injected fans when
// simulating, under whichever subsystem they name, and forgets injected fans
// whose rows were removed. On real hardware such rows under a known
// subsystem were left behind by fans that no longer exist and are deleted.
func (d *Daemon) adopt(ctx context.Context, rows map[string]fan.Record, res *Result) {
	for name, row := range rows {
		if _, ok := d.registry.Get(name); ok {
			continue
		}
		if !d.cfg.Simulation {
			if _, hw := d.subsystems[row.Subsystem]; !hw {
				d.failures.Warn().Str("fan", name).Msg("Ignoring fan row with no hardware")
				continue
			}
			if err := d.store.DeleteFanRow(ctx, name); err != nil {
				res.Deferred++
				d.failures.ErrorWithCode(err).Str("fan", name).Msg("Stale fan row removal deferred")
				continue
			}
			delete(rows, name)
			d.logger.Info().Str("fan", name).Msg("Removed stale fan row")
			continue
		}
		if err := d.registry.Inject(row); err != nil {
			d.logger.Error().Err(err).Str("fan", name).Msg("Rejected injected fan row")
			continue
		}
		d.logger.Info().Str("fan", name).Msg("Adopted injected fan")
	}

	for _, rec := range d.registry.ListFans() {
		if d.registry.OriginOf(rec.Name) != registry.Injected {
			continue
		}
		if _, ok := rows[rec.Name]; !ok {
			d.registry.Remove(rec.Name)
			d.logger.Info().Str("fan", rec.Name).Msg("Forgot injected fan")
		}
	}
}

// actuate pushes each subsystem's effective speed to the hardware. Failures
// are logged and retried on the next pass.
func (d *Daemon) actuate(ctx context.Context, ov fan.Override) {
	for _, sub := range d.platform.Subsystems() {
		speed := ov.Effective(d.policy.Speed(sub.Name))
		if last, ok := d.applied[sub.Name]; ok && last == speed {
			continue
		}
		if err := d.platform.SetSpeed(ctx, sub.Name, speed); err != nil {
			delete(d.applied, sub.Name)
			d.failures.ErrorWithCode(err).Str("subsystem", sub.Name).Msg("Failed to set fan speed")
			continue
		}
		d.applied[sub.Name] = speed
		d.logger.Info().
			Str("subsystem", sub.Name).
			Str("speed", speed.String()).
			Msg("Fan speed applied")
	}
}

func (d *Daemon) record(ctx context.Context, ov fan.Override, res Result, elapsed time.Duration) {
	snapshot := &metrics.Snapshot{
		Timestamp: time.Now(),
		Fans:      d.registry.ListFans(),
		Override:  ov,
		Pass: metrics.PassStats{
			Writes:       res.Writes,
			Deferred:     res.Deferred,
			ReadFailures: res.ReadFailures,
			Duration:     elapsed,
		},
	}
	if err := d.metrics.Record(ctx, snapshot); err != nil {
		d.failures.Warn().Err(err).Msg("Failed to record metrics")
	}
}

// isReadFailure reports whether err is a hardware sampling failure.
func isReadFailure(err error) bool {
	return errors.HasCode(err, hardware.ErrReadFailed)
}
