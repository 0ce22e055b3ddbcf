package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the bot's Prometheus collectors.
type Metrics struct {
	CommandsProcessed    *prometheus.CounterVec
	Decisions            *prometheus.CounterVec
	ErrorsTotal          prometheus.Counter
	UpdateProcessingTime prometheus.Histogram
}

// NewMetrics creates the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CommandsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shareit_bot_commands_total",
			Help: "Telegram commands processed",
		}, []string{"command"}),
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shareit_bot_decisions_total",
			Help: "Booking decisions made from Telegram",
		}, []string{"status"}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "shareit_bot_errors_total",
			Help: "Failed bot operations",
		}),
		UpdateProcessingTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "shareit_bot_update_processing_time_seconds",
			Help:    "Time spent processing updates",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
