// Package metrics exposes ingestion and counter metrics for Prometheus.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/and161185/s0-pulse-counter/internal/frame"
	"github.com/and161185/s0-pulse-counter/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry    *prometheus.Registry
	frames      *prometheus.CounterVec
	discarded   *prometheus.CounterVec
	storeErrors prometheus.Counter
	up          prometheus.Gauge
}

// New registers the ingestion metrics plus a collector that reads channel
// counts from store on every scrape.
func New(store storage.Snapshotter) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "s0_frames_total",
			Help: "Frames read from the device by parse result.",
		}, []string{"result"}),
		discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "s0_frames_discarded_total",
			Help: "Discarded frames by reason.",
		}, []string{"reason"}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "s0_store_errors_total",
			Help: "Parsed events rejected by the counter store.",
		}),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "s0_ingest_up",
			Help: "1 while the device is open and being read.",
		}),
	}

	for _, r := range frame.Reasons() {
		m.discarded.WithLabelValues(r.String())
	}

	m.registry.MustRegister(
		m.frames, m.discarded, m.storeErrors, m.up,
		newStoreCollector(store),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) FrameAccepted() {
	m.frames.WithLabelValues("accepted").Inc()
}

func (m *Metrics) FrameDiscarded(reason frame.Reason) {
	m.frames.WithLabelValues("discarded").Inc()
	m.discarded.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) StoreError() {
	m.storeErrors.Inc()
}

func (m *Metrics) SetUp(up bool) {
	if up {
		m.up.Set(1)
		return
	}
	m.up.Set(0)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

type storeCollector struct {
	store storage.Snapshotter
	desc  *prometheus.Desc
}

func newStoreCollector(store storage.Snapshotter) *storeCollector {
	return &storeCollector{
		store: store,
		desc: prometheus.NewDesc(
			"s0_channel_pulses_total",
			"Pulses counted per channel since process start.",
			[]string{"channel"}, nil,
		),
	}
}

func (c *storeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *storeCollector) Collect(ch chan<- prometheus.Metric) {
	for _, cc := range c.store.SnapshotAll() {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue,
			float64(cc.Count), strconv.Itoa(int(cc.Channel)))
	}
}
