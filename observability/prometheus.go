// Package observability exports streaming metrics to Prometheus.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/lodstream/cache"
	"github.com/hupe1980/lodstream/model"
	"github.com/hupe1980/lodstream/stream"
)

const namespace = "lodstream"

// PrometheusObserver implements stream.MetricsObserver with Prometheus
// collectors registered on its own registry.
type PrometheusObserver struct {
	registry *prometheus.Registry

	loadLatency *prometheus.HistogramVec
	loadBytes   prometheus.Counter
	failures    *prometheus.CounterVec
	commits     *prometheus.CounterVec
	cancels     prometheus.Counter
	queueDepth  *prometheus.GaugeVec
	slots       *prometheus.GaugeVec
	evictions   prometheus.Gauge
}

var _ stream.MetricsObserver = (*PrometheusObserver)(nil)

// NewPrometheusObserver creates an observer with a fresh registry, so
// several sessions in one process do not collide.
func NewPrometheusObserver() *PrometheusObserver {
	o := &PrometheusObserver{
		registry: prometheus.NewRegistry(),
		loadLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Latency of node payload reads.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"status"}),
		loadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_bytes_total",
			Help:      "Payload bytes read by workers.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "load_failures_total",
			Help:      "Jobs dropped because their read failed, by model.",
		}, []string{"model"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commits_total",
			Help:      "Resolved jobs by outcome.",
		}, []string{"outcome"}),
		cancels: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancelled_jobs_total",
			Help:      "Pending jobs dropped by queue maintenance.",
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Jobs in the queue by state.",
		}, []string{"state"}),
		slots: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slots",
			Help:      "Cache slots by state.",
		}, []string{"state"}),
		evictions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "evictions",
			Help:      "Evictions since the session opened.",
		}),
	}

	o.registry.MustRegister(
		o.loadLatency,
		o.loadBytes,
		o.failures,
		o.commits,
		o.cancels,
		o.queueDepth,
		o.slots,
		o.evictions,
	)

	return o
}

// Registry returns the registry holding the collectors.
func (o *PrometheusObserver) Registry() *prometheus.Registry { return o.registry }

// Handler serves the registry in the Prometheus exposition format.
func (o *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

func (o *PrometheusObserver) OnLoad(d time.Duration, bytes int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	o.loadLatency.WithLabelValues(status).Observe(d.Seconds())

	if err == nil {
		o.loadBytes.Add(float64(bytes))
	}
}

func (o *PrometheusObserver) OnFailure(job model.Job, _ error) {
	o.failures.WithLabelValues(strconv.FormatUint(uint64(job.Model), 10)).Inc()
}

func (o *PrometheusObserver) OnCommit(committed, failed int) {
	o.commits.WithLabelValues("committed").Add(float64(committed))
	o.commits.WithLabelValues("failed").Add(float64(failed))
}

func (o *PrometheusObserver) OnCancel(cancelled int) {
	o.cancels.Add(float64(cancelled))
}

func (o *PrometheusObserver) OnQueueDepth(pending, inFlight int) {
	o.queueDepth.WithLabelValues("pending").Set(float64(pending))
	o.queueDepth.WithLabelValues("in_flight").Set(float64(inFlight))
}

// OnSlots records a snapshot of the slot index.
func (o *PrometheusObserver) OnSlots(s cache.Stats) {
	o.slots.WithLabelValues("free").Set(float64(s.Free))
	o.slots.WithLabelValues("reserved").Set(float64(s.Reserved))
	o.slots.WithLabelValues("occupied").Set(float64(s.Occupied))
	o.evictions.Set(float64(s.Evictions))
}
