package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	registry          *prometheus.Registry
	ActiveSessions    prometheus.Gauge
	SessionsTotal     *prometheus.CounterVec
	DatagramsTotal    *prometheus.CounterVec
	FramesTotal       *prometheus.CounterVec
	DecodeErrorsTotal *prometheus.CounterVec
	WaitsCleared      prometheus.Counter
	CloseTriggers     prometheus.Counter
}

func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stream_prober",
			Name:      "active_sessions",
			Help:      "Number of sessions currently being driven",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stream_prober",
			Name:      "sessions_total",
			Help:      "Completed sessions by outcome",
		}, []string{"outcome"}),
		DatagramsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stream_prober",
			Name:      "datagrams_total",
			Help:      "Datagrams moved through the socket",
		}, []string{"direction"}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stream_prober",
			Name:      "frames_total",
			Help:      "Frames decoded from peer streams",
		}, []string{"type"}),
		DecodeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stream_prober",
			Name:      "decode_errors_total",
			Help:      "Recoverable decode failures by scope",
		}, []string{"scope"}),
		WaitsCleared: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stream_prober",
			Name:      "waits_cleared_total",
			Help:      "Script wait conditions cleared by observed events",
		}),
		CloseTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stream_prober",
			Name:      "close_triggers_total",
			Help:      "Sessions closed early by a satisfied close trigger",
		}),
	}
	r.MustRegister(m.ActiveSessions, m.SessionsTotal, m.DatagramsTotal,
		m.FramesTotal, m.DecodeErrorsTotal, m.WaitsCleared, m.CloseTriggers)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
