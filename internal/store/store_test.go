package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/logger"
	"codeberg.org/mutker/fand/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastOptions() store.Options {
	return store.Options{Timeout: 200 * time.Millisecond, Retries: 2, Backoff: time.Millisecond}
}

func backends(t *testing.T) map[string]func(t *testing.T) store.Store {
	t.Helper()
	return map[string]func(t *testing.T) store.Store{
		"memory": func(t *testing.T) store.Store {
			s := store.NewMemory(fastOptions())
			t.Cleanup(func() { s.Close() })
			return s
		},
		"sqlite": func(t *testing.T) store.Store {
			s, err := store.OpenSQLite(store.Config{
				Backend: store.BackendSQLite,
				Path:    filepath.Join(t.TempDir(), "config.db"),
				Options: fastOptions(),
			}, logger.Nop())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func fanRow(name string, speed fan.Speed, rpm int) fan.Record {
	return fan.Record{
		Name:      name,
		Subsystem: "base",
		Direction: fan.BackToFront,
		Speed:     speed,
		Status:    fan.OK,
		RPM:       rpm,
	}
}

func TestFanRowRoundTrip(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			require.NoError(t, s.WriteFanRow(ctx, fanRow("base-FAN-1L", fan.Fast, 9000)))
			require.NoError(t, s.WriteFanRow(ctx, fanRow("base-FAN-1R", fan.Normal, 0)))
			require.NoError(t, s.WriteFanRow(ctx, fanRow("base-FAN-1L", fan.Max, 12000)))

			rows, err := s.ReadFanRows(ctx)
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, fanRow("base-FAN-1L", fan.Max, 12000), rows["base-FAN-1L"])

			require.NoError(t, s.DeleteFanRow(ctx, "base-FAN-1R"))
			require.NoError(t, s.DeleteFanRow(ctx, "base-FAN-1R"))
			rows, err = s.ReadFanRows(ctx)
			require.NoError(t, err)
			assert.Len(t, rows, 1)
		})
	}
}

func TestWriteFanRowRejectsInvalid(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			bad := fanRow("base-FAN-1L", fan.Normal, -1)

			err := s.WriteFanRow(context.Background(), bad)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrValidation))
			assert.False(t, errors.HasCode(err, store.ErrUnavailable))
		})
	}
}

func TestOverrideSingleton(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			o, err := s.ReadOverride(ctx)
			require.NoError(t, err)
			assert.False(t, o.Active)

			require.NoError(t, s.WriteOverride(ctx, fan.Override{Active: true, Speed: fan.Fast}))
			o, err = s.ReadOverride(ctx)
			require.NoError(t, err)
			assert.Equal(t, fan.Override{Active: true, Speed: fan.Fast}, o)

			// clearing twice leaves the same state
			for i := 0; i < 2; i++ {
				require.NoError(t, s.WriteOverride(ctx, fan.Override{Speed: fan.Max}))
				o, err = s.ReadOverride(ctx)
				require.NoError(t, err)
				assert.Equal(t, fan.Override{}, o)
			}

			err = s.WriteOverride(ctx, fan.Override{Active: true})
			assert.True(t, errors.HasCode(err, errors.ErrValidation))
		})
	}
}

func TestSubsystemRows(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			id := uuid.New()
			require.NoError(t, s.WriteSubsystem(ctx, store.Subsystem{
				ID: id, Name: "base", Fans: []string{"base-FAN-2L", "base-FAN-1L"},
			}))

			subs, err := s.ReadSubsystems(ctx)
			require.NoError(t, err)
			require.Len(t, subs, 1)
			assert.Equal(t, id, subs[0].ID)
			assert.Equal(t, []string{"base-FAN-1L", "base-FAN-2L"}, subs[0].Fans)

			require.NoError(t, s.DeleteSubsystem(ctx, id))
			err = s.DeleteSubsystem(ctx, id)
			assert.True(t, errors.HasCode(err, store.ErrSubsystemNotFound))

			subs, err = s.ReadSubsystems(ctx)
			require.NoError(t, err)
			assert.Empty(t, subs)
		})
	}
}

func TestDaemonHardwareReady(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			ready, err := s.DaemonHardwareReady(ctx, "fand")
			require.NoError(t, err)
			assert.False(t, ready)

			require.NoError(t, s.SetDaemonHardwareReady(ctx, "fand"))
			ready, err = s.DaemonHardwareReady(ctx, "fand")
			require.NoError(t, err)
			assert.True(t, ready)
		})
	}
}

func TestSubscribeDeliversAndCoalesces(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			ch, cancel := s.Subscribe(1)
			defer cancel()

			require.NoError(t, s.WriteOverride(ctx, fan.Override{Active: true, Speed: fan.Slow}))
			require.NoError(t, s.WriteFanRow(ctx, fanRow("base-FAN-1L", fan.Slow, 10)))

			// buffer of one: the second change is folded into the first
			select {
			case c := <-ch:
				assert.Equal(t, store.Change{Table: store.TableOverride, Key: store.OverrideKey}, c)
			case <-time.After(time.Second):
				t.Fatal("no notification")
			}
			select {
			case c := <-ch:
				t.Fatalf("unexpected extra notification %v", c)
			default:
			}

			cancel()
			cancel()
			_, ok := <-ch
			assert.False(t, ok)
		})
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ch, cancel := s.Subscribe(1)

			require.NoError(t, s.Close())
			_, ok := <-ch
			assert.False(t, ok)

			// cancelling after Close must not close the channel again
			assert.NotPanics(t, cancel)
			assert.NotPanics(t, cancel)

			late, lateCancel := s.Subscribe(1)
			_, ok = <-late
			assert.False(t, ok, "subscriptions after Close start closed")
			assert.NotPanics(t, lateCancel)
		})
	}
}

func TestMemoryUnavailable(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(fastOptions())
	s.SetAvailable(false)

	err := s.WriteFanRow(ctx, fanRow("base-FAN-1L", fan.Normal, 0))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, store.ErrUnavailable))
	assert.Zero(t, s.FanWrites())

	_, err = s.ReadOverride(ctx)
	assert.True(t, errors.HasCode(err, store.ErrUnavailable))

	s.SetAvailable(true)
	require.NoError(t, s.WriteFanRow(ctx, fanRow("base-FAN-1L", fan.Normal, 0)))
	assert.Equal(t, 1, s.FanWrites())
}

func TestSQLiteReopenKeepsRows(t *testing.T) {
	ctx := context.Background()
	cfg := store.Config{
		Backend: store.BackendSQLite,
		Path:    filepath.Join(t.TempDir(), "config.db"),
		Options: fastOptions(),
	}

	s, err := store.OpenSQLite(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, s.WriteOverride(ctx, fan.Override{Active: true, Speed: fan.Medium}))
	require.NoError(t, s.Close())

	s, err = store.OpenSQLite(cfg, logger.Nop())
	require.NoError(t, err)
	defer s.Close()

	o, err := s.ReadOverride(ctx)
	require.NoError(t, err)
	assert.Equal(t, fan.Override{Active: true, Speed: fan.Medium}, o)
}

func TestOpenSelectsBackend(t *testing.T) {
	s, err := store.Open(store.Config{Backend: store.BackendMemory, Options: fastOptions()}, logger.Nop())
	require.NoError(t, err)
	assert.IsType(t, &store.Memory{}, s)

	_, err = store.Open(store.Config{Backend: "etcd"}, logger.Nop())
	assert.True(t, errors.HasCode(err, store.ErrUnsupportedBackend))

	_, err = store.Open(store.Config{Backend: store.BackendSQLite}, logger.Nop())
	assert.True(t, errors.HasCode(err, store.ErrInvalidDBPath))
}
