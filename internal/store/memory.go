package store

import (
	"context"
	"sort"
	"sync"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"github.com/google/uuid"
)

var errInjectedOutage = errors.New().WithMessage(ErrUnavailable, "injected outage")

// Memory is an in-process Store used by tests and by simulation runs that do
// not need persistence. SetAvailable(false) makes every call fail with a
// transient error so callers' retry and deferral paths can be exercised.
type Memory struct {
	mu         sync.Mutex
	opts       Options
	fans       map[string]fan.Record
	subsystems map[uuid.UUID]Subsystem
	override   fan.Override
	daemons    map[string]bool
	available  bool
	fanWrites  int
	notifier   *notifier
}

var _ Store = (*Memory)(nil)

func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:       opts,
		fans:       make(map[string]fan.Record),
		subsystems: make(map[uuid.UUID]Subsystem),
		daemons:    make(map[string]bool),
		available:  true,
		notifier:   newNotifier(),
	}
}

// SetAvailable toggles the simulated outage.
func (m *Memory) SetAvailable(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = ok
}

// FanWrites counts committed fan row writes.
func (m *Memory) FanWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fanWrites
}

func (m *Memory) do(ctx context.Context, op func() error) error {
	return withRetry(ctx, m.opts, func(ctx context.Context) error {
		if err := ctx.Err(); err != nil {
			return transient(err)
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		if !m.available {
			return transient(errInjectedOutage)
		}
		return op()
	})
}

func (m *Memory) ReadFanRows(ctx context.Context) (map[string]fan.Record, error) {
	var out map[string]fan.Record
	err := m.do(ctx, func() error {
		out = make(map[string]fan.Record, len(m.fans))
		for k, v := range m.fans {
			out[k] = v
		}
		return nil
	})
	return out, err
}

func (m *Memory) WriteFanRow(ctx context.Context, rec fan.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	return m.do(ctx, func() error {
		m.fans[rec.Name] = rec
		m.fanWrites++
		m.notifier.publish(Change{Table: TableFan, Key: rec.Name})
		return nil
	})
}

func (m *Memory) DeleteFanRow(ctx context.Context, name string) error {
	return m.do(ctx, func() error {
		if _, ok := m.fans[name]; !ok {
			return nil
		}
		delete(m.fans, name)
		m.notifier.publish(Change{Table: TableFan, Key: name})
		return nil
	})
}

func (m *Memory) ReadOverride(ctx context.Context) (fan.Override, error) {
	var out fan.Override
	err := m.do(ctx, func() error {
		out = m.override
		return nil
	})
	return out, err
}

func (m *Memory) WriteOverride(ctx context.Context, o fan.Override) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if !o.Active {
		o.Speed = 0
	}
	return m.do(ctx, func() error {
		m.override = o
		m.notifier.publish(Change{Table: TableOverride, Key: OverrideKey})
		return nil
	})
}

func (m *Memory) ReadSubsystems(ctx context.Context) ([]Subsystem, error) {
	var out []Subsystem
	err := m.do(ctx, func() error {
		out = make([]Subsystem, 0, len(m.subsystems))
		for _, s := range m.subsystems {
			s.Fans = append([]string(nil), s.Fans...)
			out = append(out, s)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

func (m *Memory) WriteSubsystem(ctx context.Context, s Subsystem) error {
	if s.ID == uuid.Nil || s.Name == "" {
		return errors.New().WithData(errors.ErrValidation, "subsystem needs an id and a name")
	}
	s.Fans = sortedCopy(s.Fans)
	return m.do(ctx, func() error {
		m.subsystems[s.ID] = s
		m.notifier.publish(Change{Table: TableSubsystem, Key: s.ID.String()})
		return nil
	})
}

func (m *Memory) DeleteSubsystem(ctx context.Context, id uuid.UUID) error {
	return m.do(ctx, func() error {
		if _, ok := m.subsystems[id]; !ok {
			return errors.New().WithData(ErrSubsystemNotFound, id.String())
		}
		delete(m.subsystems, id)
		m.notifier.publish(Change{Table: TableSubsystem, Key: id.String()})
		return nil
	})
}

func (m *Memory) SetDaemonHardwareReady(ctx context.Context, daemon string) error {
	return m.do(ctx, func() error {
		m.daemons[daemon] = true
		m.notifier.publish(Change{Table: TableDaemon, Key: daemon})
		return nil
	})
}

func (m *Memory) DaemonHardwareReady(ctx context.Context, daemon string) (bool, error) {
	var ready bool
	err := m.do(ctx, func() error {
		ready = m.daemons[daemon]
		return nil
	})
	return ready, err
}

func (m *Memory) Subscribe(buffer int) (<-chan Change, func()) {
	return m.notifier.subscribe(buffer)
}

func (m *Memory) Close() error {
	m.notifier.closeAll()
	return nil
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
