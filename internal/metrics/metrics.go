// Package metrics exposes capture and poll loop counters to Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trafficcam-capture/internal/capture"
	"trafficcam-capture/internal/monitor"
	"trafficcam-capture/pkg/models"
)

const namespace = "trafficcam"

var (
	_ capture.Recorder = (*Metrics)(nil)
	_ monitor.Recorder = (*Metrics)(nil)
)

// Metrics implements capture.Recorder and monitor.Recorder on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	cameras          *prometheus.CounterVec
	segmentsCaptured prometheus.Counter
	segmentsFailed   *prometheus.CounterVec
	bytesCaptured    prometheus.Counter
	iterations       prometheus.Counter
	feedErrors       prometheus.Counter
	incidents        *prometheus.CounterVec
	iterationSeconds prometheus.Histogram

	mu        sync.Mutex
	processed int
	lastPoll  time.Time
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cameras: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cameras_total",
			Help: "Cameras attempted, by result.",
		}, []string{"result"}),
		segmentsCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "segments_captured_total",
			Help: "Segments stored with their metadata.",
		}),
		segmentsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "segments_failed_total",
			Help: "Segments that could not be captured, by failure kind.",
		}, []string{"kind"}),
		bytesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "captured_bytes_total",
			Help: "Bytes of segment data stored.",
		}),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "poll_iterations_total",
			Help: "Completed poll iterations.",
		}),
		feedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "feed_errors_total",
			Help: "Poll iterations whose incident fetch failed.",
		}),
		incidents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "incidents_total",
			Help: "Incidents seen by the poll loop, by stage.",
		}, []string{"stage"}),
		iterationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "poll_iteration_duration_seconds",
			Help:    "Wall time of a poll iteration.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}

	m.Registry.MustRegister(
		m.cameras, m.segmentsCaptured, m.segmentsFailed, m.bytesCaptured,
		m.iterations, m.feedErrors, m.incidents, m.iterationSeconds,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "processed_incidents",
			Help: "Size of the processed incident set.",
		}, func() float64 {
			m.mu.Lock()
			defer m.mu.Unlock()
			return float64(m.processed)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_poll_timestamp_seconds",
			Help: "Unix time the last poll iteration finished.",
		}, func() float64 {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.lastPoll.IsZero() {
				return 0
			}
			return float64(m.lastPoll.Unix())
		}),
	)
	return m
}

func (m *Metrics) CameraFinished(out models.CameraOutcome) {
	result := "failed"
	if out.Success {
		result = "success"
	}
	m.cameras.WithLabelValues(result).Inc()
	m.segmentsCaptured.Add(float64(len(out.Segments)))
	m.bytesCaptured.Add(float64(out.Bytes))
}

func (m *Metrics) SegmentFailed(_ string, kind string) {
	m.segmentsFailed.WithLabelValues(kind).Inc()
}

func (m *Metrics) IterationFinished(s monitor.Summary) {
	m.iterations.Inc()
	if s.FeedError {
		m.feedErrors.Inc()
	}
	m.incidents.WithLabelValues("seen").Add(float64(s.IncidentsSeen))
	m.incidents.WithLabelValues("new").Add(float64(s.IncidentsNew))
	m.incidents.WithLabelValues("matched").Add(float64(s.IncidentsMatched))
	m.iterationSeconds.Observe(s.Elapsed.Seconds())

	m.mu.Lock()
	m.processed = s.Processed
	m.lastPoll = time.Now()
	m.mu.Unlock()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
