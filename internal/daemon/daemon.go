// Package daemon is the fan daemon's synchronization loop. A single
// goroutine serializes reconciliation passes triggered by the poll ticker,
// configuration store notifications and hardware-change events.
package daemon

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/hardware"
	"codeberg.org/mutker/fand/internal/logger"
	"codeberg.org/mutker/fand/internal/metrics"
	"codeberg.org/mutker/fand/internal/override"
	"codeberg.org/mutker/fand/internal/policy"
	"codeberg.org/mutker/fand/internal/registry"
	"codeberg.org/mutker/fand/internal/store"
)

const (
	DefaultName         = "fand"
	DefaultInterval     = 5 * time.Second
	defaultNotifyBuffer = 16
	failureLogEvery     = time.Minute
	failureLogBurst     = 3
)

type Config struct {
	// Name keys the daemon row.
	Name         string
	Interval     time.Duration
	NotifyBuffer int
	// Simulation allows operators to insert fan rows.
	Simulation bool
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.NotifyBuffer <= 0 {
		c.NotifyBuffer = defaultNotifyBuffer
	}
	return c
}

// Deps are the collaborators of a Daemon. Metrics and HardwareEvents are
// optional.
type Deps struct {
	Store          store.Store
	Platform       hardware.Platform
	Metrics        metrics.Collector
	HardwareEvents <-chan struct{}
	Logger         logger.Logger
}

type Daemon struct {
	cfg      Config
	store    store.Store
	platform hardware.Platform
	registry *registry.Registry
	policy   *policy.Policy
	override *override.Controller
	metrics  metrics.Collector
	hwEvents <-chan struct{}
	logger   logger.Logger
	// failures is rate limited; hardware and store outages repeat every pass.
	failures logger.Logger

	// mu is the reconciliation critical section. Everything below it is
	// only touched while it is held.
	mu           sync.Mutex
	subsystems   map[string]store.Subsystem
	applied      map[string]fan.Speed
	lastOverride fan.Override
	lastPass     time.Time
	ready        bool
}

func New(cfg Config, deps Deps) (*Daemon, error) {
	errFactory := errors.New()

	if deps.Store == nil || deps.Platform == nil {
		return nil, errFactory.WithData(errors.ErrInvalidArgument, "daemon needs a store and a platform")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Noop()
	}

	log := deps.Logger.With("daemon")

	return &Daemon{
		cfg:      cfg.withDefaults(),
		store:    deps.Store,
		platform: deps.Platform,
		registry: registry.New(),
		policy:   policy.New(deps.Platform),
		override: override.New(deps.Store, log),
		metrics:  deps.Metrics,
		hwEvents: deps.HardwareEvents,
		logger:   log,
		failures: logger.NewLimited(log, failureLogEvery, failureLogBurst),
		applied:  make(map[string]fan.Speed),
	}, nil
}

// Override exposes the operator override controller.
func (d *Daemon) Override() *override.Controller {
	return d.override
}

// Run drives reconciliation until ctx is cancelled. A pass in flight when
// ctx is cancelled runs to completion before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	changes, unsubscribe := d.store.Subscribe(d.cfg.NotifyBuffer)
	defer unsubscribe()

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.logger.Info().
		Dur("interval", d.cfg.Interval).
		Bool("simulation", d.cfg.Simulation).
		Msg("Synchronization loop started")

	d.trigger(ctx, "start")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("Synchronization loop stopped")
			return nil
		case <-ticker.C:
			d.trigger(ctx, "tick")
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			drain(changes)
			d.trigger(ctx, "store")
		case _, ok := <-d.hwEvents:
			if !ok {
				d.hwEvents = nil
				continue
			}
			d.trigger(ctx, "hardware")
		}
	}
}

// drain folds queued notifications into the pass about to run.
func drain(ch <-chan store.Change) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (d *Daemon) trigger(ctx context.Context, reason string) {
	// shutdown must not interrupt a pass between rows
	res, err := d.Reconcile(context.WithoutCancel(ctx))
	if err != nil {
		d.failures.ErrorWithCode(err).Str("trigger", reason).Msg("Reconciliation deferred")
		return
	}

	d.logger.Debug().
		Str("trigger", reason).
		Int("fans", res.Fans).
		Int("writes", res.Writes).
		Int("deferred", res.Deferred).
		Int("read_failures", res.ReadFailures).
		Msg("Reconciliation pass complete")
}
