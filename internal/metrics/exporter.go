package metrics

import (
	"context"
	"net/http"
	"sync"

	"codeberg.org/mutker/fand/internal/fan"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fand"

// Exporter publishes the latest pass on a private Prometheus registry.
type Exporter struct {
	registry *prometheus.Registry

	fanRPM         *prometheus.GaugeVec
	fanSpeed       *prometheus.GaugeVec
	fanStatus      *prometheus.GaugeVec
	overrideActive prometheus.Gauge
	overrideSpeed  prometheus.Gauge
	passes         prometheus.Counter
	writes         prometheus.Counter
	deferred       prometheus.Counter
	readFailures   prometheus.Counter
	passDuration   prometheus.Histogram

	mu    sync.Mutex
	known map[string]struct{}
}

func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		fanRPM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "fan_rpm", Help: "Last reported fan RPM",
		}, []string{"fan", "subsystem"}),
		fanSpeed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "fan_speed_tier", Help: "Effective speed tier, 1 (slow) to 5 (max)",
		}, []string{"fan", "subsystem"}),
		fanStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "fan_status", Help: "1 for the fan's current status, 0 otherwise",
		}, []string{"fan", "status"}),
		overrideActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "override_active", Help: "Whether a fan speed override is set",
		}),
		overrideSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "override_speed_tier", Help: "Forced speed tier, 0 when no override is set",
		}),
		passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reconcile_passes_total", Help: "Completed reconciliation passes",
		}),
		writes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_writes_total", Help: "Fan rows written to the configuration store",
		}),
		deferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "store_deferred_total", Help: "Fan row writes deferred to a later pass",
		}),
		readFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "hardware_read_failures_total", Help: "Fan samples that could not be read",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "reconcile_duration_seconds", Help: "Duration of reconciliation passes",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		known: make(map[string]struct{}),
	}

	e.registry.MustRegister(
		e.fanRPM, e.fanSpeed, e.fanStatus,
		e.overrideActive, e.overrideSpeed,
		e.passes, e.writes, e.deferred, e.readFailures, e.passDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return e
}

// Registry exposes the underlying registry, mainly for tests.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

func (e *Exporter) Record(_ context.Context, snapshot *Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[string]struct{}, len(snapshot.Fans))
	for _, rec := range snapshot.Fans {
		seen[rec.Name] = struct{}{}
		e.fanRPM.WithLabelValues(rec.Name, rec.Subsystem).Set(float64(rec.RPM))
		e.fanSpeed.WithLabelValues(rec.Name, rec.Subsystem).Set(float64(rec.Speed))
		for _, st := range []fan.Status{fan.Uninitialized, fan.OK, fan.Fault} {
			v := 0.0
			if rec.Status == st {
				v = 1
			}
			e.fanStatus.WithLabelValues(rec.Name, st.String()).Set(v)
		}
	}

	// forget fans that are gone
	for name := range e.known {
		if _, ok := seen[name]; !ok {
			e.fanRPM.DeletePartialMatch(prometheus.Labels{"fan": name})
			e.fanSpeed.DeletePartialMatch(prometheus.Labels{"fan": name})
			e.fanStatus.DeletePartialMatch(prometheus.Labels{"fan": name})
		}
	}
	e.known = seen

	if snapshot.Override.Active {
		e.overrideActive.Set(1)
		e.overrideSpeed.Set(float64(snapshot.Override.Speed))
	} else {
		e.overrideActive.Set(0)
		e.overrideSpeed.Set(0)
	}

	e.passes.Inc()
	e.writes.Add(float64(snapshot.Pass.Writes))
	e.deferred.Add(float64(snapshot.Pass.Deferred))
	e.readFailures.Add(float64(snapshot.Pass.ReadFailures))
	e.passDuration.Observe(snapshot.Pass.Duration.Seconds())

	return nil
}

func (*Exporter) Close() error {
	return nil
}
