package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/mutker/fand/internal/api"
	"codeberg.org/mutker/fand/internal/daemon"
	"codeberg.org/mutker/fand/internal/errors"
	"codeberg.org/mutker/fand/internal/fan"
	"codeberg.org/mutker/fand/internal/hardware"
	"codeberg.org/mutker/fand/internal/logger"
	"codeberg.org/mutker/fand/internal/metrics"
	"codeberg.org/mutker/fand/internal/render"
	"codeberg.org/mutker/fand/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	daemon *daemon.Daemon
	store  *store.Memory
	client *api.Client
}

func newHarness(t *testing.T, simulation bool) *harness {
	t.Helper()
	return newPlatformHarness(t, simulation, hardware.NewSimulated(nil, logger.Nop()))
}

func newPlatformHarness(t *testing.T, simulation bool, platform hardware.Platform) *harness {
	t.Helper()

	s := store.NewMemory(store.Options{Timeout: 100 * time.Millisecond, Retries: 2, Backoff: time.Millisecond})
	t.Cleanup(func() { s.Close() })

	d, err := daemon.New(daemon.Config{Simulation: simulation}, daemon.Deps{
		Store:    s,
		Platform: platform,
	})
	require.NoError(t, err)

	svc, err := metrics.NewService(metrics.DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewServer(d, api.Options{Metrics: svc.Handler(), History: svc}).Handler())
	t.Cleanup(srv.Close)

	return &harness{daemon: d, store: s, client: api.NewClient(srv.URL)}
}

func (h *harness) reconcile(t *testing.T) {
	t.Helper()
	_, err := h.daemon.Reconcile(context.Background())
	require.NoError(t, err)
}

func (h *harness) showSystemFan(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	fans, err := h.client.Fans(ctx)
	require.NoError(t, err)
	ov, err := h.client.Override(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, render.SystemFan(&buf, fans, ov))
	return buf.String()
}

func (h *harness) showRunningConfig(t *testing.T) string {
	t.Helper()
	ov, err := h.client.Override(context.Background())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, render.RunningConfig(&buf, ov))
	return buf.String()
}

func TestInsertedFanIsShown(t *testing.T) {
	h := newHarness(t, true)

	require.NoError(t, h.client.InsertFan(context.Background(), fan.Record{
		Name:      "base-FAN-1L",
		Direction: fan.FrontToBack,
		Speed:     fan.Normal,
		Status:    fan.OK,
		RPM:       9000,
	}))
	h.reconcile(t)

	out := h.showSystemFan(t)
	for _, want := range []string{"base-FAN-1L", "front-to-back", "normal", "ok", "9000"} {
		assert.Contains(t, out, want)
	}
}

func TestInsertUnderPlatformSubsystem(t *testing.T) {
	ctx := context.Background()
	desc, err := hardware.ParseDescription([]byte(`
subsystems:
  - name: base
    fan_speed_multiplier: 120
    fan_frus:
      - number: 1
        direction: f2b
        fans:
          - name: FAN-1R
            count: 70
`))
	require.NoError(t, err)
	h := newPlatformHarness(t, true, hardware.NewSimulated(desc, logger.Nop()))
	h.reconcile(t)

	require.NoError(t, h.client.InsertFan(ctx, fan.Record{
		Name:      "base-FAN-1L",
		Subsystem: "base",
		Direction: fan.FrontToBack,
		Speed:     fan.Normal,
		Status:    fan.OK,
		RPM:       9000,
	}))
	h.reconcile(t)

	out := h.showSystemFan(t)
	for _, want := range []string{"base-FAN-1L", "base-FAN-1R", "front-to-back", "normal", "ok", "9000", "8400"} {
		assert.Contains(t, out, want)
	}

	// a fan the hardware already reports cannot be inserted
	err = h.client.InsertFan(ctx, fan.Placeholder("base-FAN-1R", "base"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrValidation))
}

func TestFanSpeedCommand(t *testing.T) {
	h := newHarness(t, false)

	ov, err := h.client.SetOverride(context.Background(), "slow")
	require.NoError(t, err)
	assert.Equal(t, fan.Override{Active: true, Speed: fan.Slow}, ov)

	assert.Contains(t, h.showSystemFan(t), "Fan speed override is set to : slow")
	assert.Contains(t, h.showRunningConfig(t), "fan-speed slow")
}

func TestNoFanSpeedWithoutOverride(t *testing.T) {
	h := newHarness(t, false)

	require.NoError(t, h.client.ClearOverride(context.Background()))
	assert.Contains(t, h.showSystemFan(t), "Fan speed override is not configured")
	assert.Empty(t, h.showRunningConfig(t))
}

func TestFanSpeedThenNoFanSpeedRestoresPolicy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	require.NoError(t, h.client.InsertFan(ctx, fan.Record{
		Name: "base-FAN-1L", Direction: fan.FrontToBack, Speed: fan.Normal, Status: fan.OK, RPM: 9000,
	}))
	h.reconcile(t)
	before, err := h.client.Fans(ctx)
	require.NoError(t, err)

	_, err = h.client.SetOverride(ctx, "slow")
	require.NoError(t, err)
	h.reconcile(t)
	during, err := h.client.Fans(ctx)
	require.NoError(t, err)
	assert.Equal(t, fan.Slow, during[0].Speed)

	require.NoError(t, h.client.ClearOverride(ctx))
	h.reconcile(t)
	after, err := h.client.Fans(ctx)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Contains(t, h.showSystemFan(t), "Fan speed override is not configured")
}

func TestUnknownTierIsRejected(t *testing.T) {
	h := newHarness(t, false)

	_, err := h.client.SetOverride(context.Background(), "turbo")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrValidation))

	ov, err := h.client.Override(context.Background())
	require.NoError(t, err)
	assert.False(t, ov.Active)
}

func TestInsertRequiresSimulation(t *testing.T) {
	h := newHarness(t, false)

	err := h.client.InsertFan(context.Background(), fan.Placeholder("base-FAN-1L", "base"))
	assert.True(t, errors.HasCode(err, daemon.ErrSimulationDisabled))
}

func TestStoreOutageIsServiceUnavailable(t *testing.T) {
	s := store.NewMemory(store.Options{Timeout: 10 * time.Millisecond, Retries: 1})
	d, err := daemon.New(daemon.Config{}, daemon.Deps{Store: s, Platform: hardware.NewSimulated(nil, logger.Nop())})
	require.NoError(t, err)
	s.SetAvailable(false)

	handler := api.NewServer(d, api.Options{}).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/override", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp api.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Success)
	assert.Equal(t, string(errors.ErrStoreUnavailable), resp.Code)
}

func TestMalformedBody(t *testing.T) {
	h := newHarness(t, false)
	handler := api.NewServer(h.daemon, api.Options{}).Handler()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/override", bytes.NewBufferString(`{"speed": 3}`))
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthDumpAndSubsystems(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)

	health, err := h.client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.False(t, health.Ready)

	h.reconcile(t)

	health, err = h.client.Health(ctx)
	require.NoError(t, err)
	assert.True(t, health.Ready)

	rep, err := h.client.Dump(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Ready)
	assert.Empty(t, rep.Subsystems)

	subs, err := h.client.Subsystems(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestHistoryDisabledIsNotFound(t *testing.T) {
	h := newHarness(t, false)
	handler := api.NewServer(h.daemon, api.Options{}).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fans/base-FAN-1L/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClientUnreachable(t *testing.T) {
	c := api.NewClient("127.0.0.1:1")
	_, err := c.Fans(context.Background())
	assert.True(t, errors.HasCode(err, api.ErrUnreachable))
}
