package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hibiki"

// Metrics groups the Prometheus instruments for voice sessions. It
// implements voice.Metrics.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionsOpened    prometheus.Counter
	SessionsClosed    *prometheus.CounterVec
	Playbacks         *prometheus.CounterVec
	PlaybackDuration  prometheus.Histogram
	ReconnectAttempts *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the instruments with reg. Pass prometheus.NewRegistry() in
// tests to avoid clashing with the default registry.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voice_active_sessions",
			Help:      "Number of guilds with an active voice session.",
		}),
		SessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_sessions_opened_total",
			Help:      "Voice sessions created.",
		}),
		SessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_sessions_closed_total",
			Help:      "Voice sessions torn down by reason.",
		}, []string{"reason"}),
		Playbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_playbacks_total",
			Help:      "Play requests by outcome.",
		}, []string{"outcome"}),
		PlaybackDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "voice_playback_duration_seconds",
			Help:      "Time from play request to settlement.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160, 300},
		}),
		ReconnectAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_reconnect_attempts_total",
			Help:      "Involuntary disconnects by whether the connection recovered.",
		}, []string{"result"}),
		gatherer: reg,
	}
}

func (m *Metrics) SessionOpened(string) {
	m.SessionsOpened.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed(_ string, reason string) {
	m.SessionsClosed.WithLabelValues(reason).Inc()
	m.ActiveSessions.Dec()
}

func (m *Metrics) PlaybackFinished(_ string, outcome string, d time.Duration) {
	m.Playbacks.WithLabelValues(outcome).Inc()
	m.PlaybackDuration.Observe(d.Seconds())
}

func (m *Metrics) ReconnectAttempt(_ string, recovered bool) {
	result := "timeout"
	if recovered {
		result = "recovered"
	}
	m.ReconnectAttempts.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
