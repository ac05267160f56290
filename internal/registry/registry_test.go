package registry_test

import (
	"sync"
	"testing"

	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(name string, rpm int) fan.Record {
	return fan.Record{
		Name:      name,
		Subsystem: "base",
		Direction: fan.FrontToBack,
		Speed:     fan.Normal,
		Status:    fan.OK,
		RPM:       rpm,
	}
}

func TestUpsertInsertsAndReplaces(t *testing.T) {
	reg := registry.New()

	require.NoError(t, reg.Upsert(record("base-FAN-2L", 8000)))
	require.NoError(t, reg.Upsert(record("base-FAN-1L", 9000)))
	require.NoError(t, reg.Upsert(record("base-FAN-1L", 9100)))

	fans := reg.ListFans()
	require.Len(t, fans, 2)
	assert.Equal(t, "base-FAN-1L", fans[0].Name)
	assert.Equal(t, 9100, fans[0].RPM)
	assert.Equal(t, "base-FAN-2L", fans[1].Name)
}

func TestUpsertIsIdempotent(t *testing.T) {
	reg := registry.New()
	rec := record("base-FAN-1L", 9000)

	require.NoError(t, reg.Upsert(rec))
	require.NoError(t, reg.Upsert(rec))

	assert.Equal(t, []fan.Record{rec}, reg.ListFans())
}

func TestUpsertRejectsInvalid(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Upsert(record("base-FAN-1L", 9000)))

	bad := record("base-FAN-1L", -5)
	err := reg.Upsert(bad)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrValidation))

	got, ok := reg.Get("base-FAN-1L")
	require.True(t, ok)
	assert.Equal(t, 9000, got.RPM, "rejected upsert must not be partially applied")

	bad = record("base-FAN-3L", 100)
	bad.Speed = 0
	assert.Error(t, reg.Upsert(bad))
	assert.Equal(t, 1, reg.Len())
}

func TestOriginAndRemove(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Upsert(record("base-FAN-1L", 9000)))
	require.NoError(t, reg.Inject(record("sim-FAN-1", 100)))

	assert.Equal(t, registry.Hardware, reg.OriginOf("base-FAN-1L"))
	assert.Equal(t, registry.Injected, reg.OriginOf("sim-FAN-1"))

	reg.Remove("sim-FAN-1")
	reg.Remove("missing")
	assert.Equal(t, 1, reg.Len())
	assert.Zero(t, reg.OriginOf("sim-FAN-1"))
}

func TestListFansIsSnapshot(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Upsert(record("base-FAN-1L", 9000)))

	fans := reg.ListFans()
	fans[0].RPM = 1

	got, _ := reg.Get("base-FAN-1L")
	assert.Equal(t, 9000, got.RPM)
}

func TestConcurrentUpsert(t *testing.T) {
	reg := registry.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = reg.Upsert(record("base-FAN-1L", i))
			_ = reg.ListFans()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, reg.Len())
}
