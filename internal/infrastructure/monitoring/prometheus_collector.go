package monitoring

import (
	"time"

	"ndilive/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.Metrics.
type PrometheusCollector struct {
	sourcesDiscovered prometheus.Gauge
	captureLoops      prometheus.Gauge

	acquisitionDuration *prometheus.HistogramVec
	acquisitionFailures *prometheus.CounterVec

	subscribers     *prometheus.GaugeVec
	framesCaptured  *prometheus.CounterVec
	framesDelivered *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	statusChanges   *prometheus.CounterVec

	streamClients prometheus.Gauge
}

// NewPrometheusCollector registers the collector's metrics with reg. A nil
// reg uses the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &PrometheusCollector{
		sourcesDiscovered: f.NewGauge(prometheus.GaugeOpts{
			Name: "ndilive_sources_discovered",
			Help: "Number of sources in the latest discovery snapshot",
		}),

		captureLoops: f.NewGauge(prometheus.GaugeOpts{
			Name: "ndilive_capture_loops_active",
			Help: "Number of running capture loops",
		}),

		acquisitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ndilive_receiver_acquisition_duration_seconds",
			Help:    "Time to create and connect a receiver",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"result"}),

		acquisitionFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ndilive_receiver_acquisition_failures_total",
			Help: "Failed receiver acquisitions per source",
		}, []string{"source"}),

		subscribers: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ndilive_player_subscribers",
			Help: "Registered subscriptions per player",
		}, []string{"source"}),

		framesCaptured: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ndilive_frames_captured_total",
			Help: "Frames captured from the transport",
		}, []string{"source", "kind"}),

		framesDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ndilive_frames_delivered_total",
			Help: "Frames handed to consumers",
		}, []string{"source", "kind"}),

		framesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ndilive_frames_dropped_total",
			Help: "Frames dropped because a subscriber queue was full",
		}, []string{"source", "kind"}),

		statusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ndilive_status_changes_total",
			Help: "Receiver status change notifications",
		}, []string{"source"}),

		streamClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "ndilive_stream_clients",
			Help: "Connected websocket frame stream clients",
		}),
	}
}

func (p *PrometheusCollector) SetSourcesDiscovered(n int) {
	p.sourcesDiscovered.Set(float64(n))
}

func (p *PrometheusCollector) ObserveAcquisition(source string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
		p.acquisitionFailures.WithLabelValues(source).Inc()
	}
	p.acquisitionDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (p *PrometheusCollector) SetCaptureLoopActive(source string, active bool) {
	if active {
		p.captureLoops.Inc()
	} else {
		p.captureLoops.Dec()
	}
}

func (p *PrometheusCollector) SetSubscribers(source string, n int) {
	if n == 0 {
		p.subscribers.DeleteLabelValues(source)
		return
	}
	p.subscribers.WithLabelValues(source).Set(float64(n))
}

func (p *PrometheusCollector) IncFramesCaptured(source string, t domain.FrameType) {
	p.framesCaptured.WithLabelValues(source, t.String()).Inc()
}

func (p *PrometheusCollector) IncFramesDelivered(source string, t domain.FrameType) {
	p.framesDelivered.WithLabelValues(source, t.String()).Inc()
}

func (p *PrometheusCollector) IncFramesDropped(source string, t domain.FrameType) {
	p.framesDropped.WithLabelValues(source, t.String()).Inc()
}

func (p *PrometheusCollector) IncStatusChanges(source string) {
	p.statusChanges.WithLabelValues(source).Inc()
}

// StreamClientConnected and StreamClientDisconnected track websocket
// clients of the frame stream.
func (p *PrometheusCollector) StreamClientConnected() {
	p.streamClients.Inc()
}

func (p *PrometheusCollector) StreamClientDisconnected() {
	p.streamClients.Dec()
}
