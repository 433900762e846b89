package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics for the bridge
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsFailed  prometheus.Counter
	ActiveSessions  prometheus.Gauge

	// Relay metrics
	ChunksForwarded  prometheus.Counter
	BytesForwarded   prometheus.Counter
	TranscriptEvents *prometheus.CounterVec
	DecodeErrors     prometheus.Counter
	SendErrors       prometheus.Counter
}

// New creates and registers all metrics on the default registry
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates and registers all metrics on the given registerer
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sttbridge_sessions_started_total",
			Help: "Total number of relay sessions started",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "sttbridge_sessions_failed_total",
			Help: "Total number of relay sessions that ended with an error",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sttbridge_active_sessions",
			Help: "Current number of active relay sessions",
		}),
		ChunksForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "sttbridge_chunks_forwarded_total",
			Help: "Total number of audio chunks forwarded upstream",
		}),
		BytesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "sttbridge_bytes_forwarded_total",
			Help: "Total audio bytes forwarded upstream",
		}),
		TranscriptEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sttbridge_transcript_events_total",
			Help: "Total transcript events forwarded to clients, by type",
		}, []string{"type"}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "sttbridge_decode_errors_total",
			Help: "Total number of control frames that failed to decode",
		}),
		SendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "sttbridge_send_errors_total",
			Help: "Total number of failed socket writes",
		}),
	}
}
