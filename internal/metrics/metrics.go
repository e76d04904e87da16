// Package metrics holds the Prometheus collectors for meetings, notes,
// conversions, analysis and dictation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Backend metrics are recorded by the engine.
type Backend struct {
	TransitionsTotal  *prometheus.CounterVec
	NotesTotal        *prometheus.CounterVec
	ConversionsTotal  prometheus.Counter
	AnalysisTotal     *prometheus.CounterVec
	AnalysisSeconds   prometheus.Histogram
	HTTPRequestsTotal *prometheus.CounterVec
}

// NewBackend registers the backend collectors on reg.
func NewBackend(reg prometheus.Registerer) *Backend {
	factory := promauto.With(reg)
	return &Backend{
		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetline_meeting_transitions_total",
				Help: "Meeting status transitions applied",
			},
			[]string{"from", "to"},
		),
		NotesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetline_notes_total",
				Help: "Note mutations by operation and source",
			},
			[]string{"op", "source"},
		),
		ConversionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "meetline_note_conversions_total",
				Help: "Notes converted into tasks",
			},
		),
		AnalysisTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetline_analysis_requests_total",
				Help: "Analysis round-trips by outcome",
			},
			[]string{"outcome"},
		),
		AnalysisSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "meetline_analysis_seconds",
				Help:    "Latency of the external analysis service",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetline_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"method", "status"},
		),
	}
}

// Dictation metrics are recorded by the capture loop.
type Dictation struct {
	ChannelsOpened  prometheus.Counter
	Restarts        *prometheus.CounterVec
	UtterancesTotal prometheus.Counter
	ChannelErrors   *prometheus.CounterVec
}

// NewDictation registers the dictation collectors on reg.
func NewDictation(reg prometheus.Registerer) *Dictation {
	factory := promauto.With(reg)
	return &Dictation{
		ChannelsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetline_dictation_channels_opened_total",
			Help: "Recognition channels opened",
		}),
		Restarts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetline_dictation_restarts_total",
			Help: "Automatic channel restarts",
		}, []string{"kind"}),
		UtterancesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "meetline_dictation_utterances_total",
			Help: "Final utterances committed as notes",
		}),
		ChannelErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "meetline_dictation_channel_errors_total",
			Help: "Recognition channel errors",
		}, []string{"kind"}),
	}
}
