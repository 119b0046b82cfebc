package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry. It implements
// core.MetricsRecorder and player.ErrorRecorder.
type Metrics struct {
	registry *prometheus.Registry

	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	GatewayErrors     *prometheus.CounterVec
	PollTicks         prometheus.Counter
	QueueSize         prometheus.Gauge
	StorageRequests   *prometheus.CounterVec
	RateLimited       prometheus.Counter
	StreamClients     prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytmdremote_operations_total",
				Help: "Queue operations by name and outcome",
			},
			[]string{"op", "status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ytmdremote_operation_duration_seconds",
				Help:    "Time spent in queue operations, including polling",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"op"},
		),
		GatewayErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytmdremote_gateway_errors_total",
				Help: "Failed calls to the remote player by endpoint",
			},
			[]string{"endpoint"},
		),
		PollTicks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ytmdremote_poll_ticks_total",
				Help: "Playback state polls",
			},
		),
		QueueSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ytmdremote_queue_size",
				Help: "Entries in the mirrored remote queue",
			},
		),
		StorageRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ytmdremote_storage_requests_total",
				Help: "Profile storage API requests by operation and status code",
			},
			[]string{"op", "code"},
		),
		RateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ytmdremote_storage_rate_limited_total",
				Help: "Profile writes rejected by the per-handle limiter",
			},
		),
		StreamClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ytmdremote_stream_clients",
				Help: "Connected websocket clients",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OperationsTotal,
		m.OperationDuration,
		m.GatewayErrors,
		m.PollTicks,
		m.QueueSize,
		m.StorageRequests,
		m.RateLimited,
		m.StreamClients,
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) RecordOperation(op, status string, duration time.Duration) {
	m.OperationsTotal.WithLabelValues(op, status).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func (m *Metrics) RecordPollTick() {
	m.PollTicks.Inc()
}

func (m *Metrics) SetQueueSize(size int) {
	m.QueueSize.Set(float64(size))
}

func (m *Metrics) RecordGatewayError(endpoint string) {
	m.GatewayErrors.WithLabelValues(endpoint).Inc()
}

func (m *Metrics) RecordStorageRequest(op string, code int) {
	m.StorageRequests.WithLabelValues(op, strconv.Itoa(code)).Inc()
}

func (m *Metrics) RecordRateLimited() {
	m.RateLimited.Inc()
}

func (m *Metrics) SetStreamClients(count int) {
	m.StreamClients.Set(float64(count))
}
