package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WebhookRequests  *prometheus.CounterVec
	LeadsCreated     prometheus.Counter
	BotCommands      *prometheus.CounterVec
	BotCallbacks     *prometheus.CounterVec
	TelegramRequests *prometheus.CounterVec
	TelegramLatency  *prometheus.HistogramVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WebhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_requests_total",
				Help:      "Total lead webhook requests by outcome.",
			}, []string{"status"}),
			LeadsCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "leads_created_total",
				Help:      "Total leads stored via the webhook path.",
			}),
			BotCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_commands_total",
				Help:      "Total operator commands processed by keyword.",
			}, []string{"command"}),
			BotCallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_callbacks_total",
				Help:      "Total inline action callbacks by outcome.",
			}, []string{"result"}),
			TelegramRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "telegram_requests_total",
				Help:      "Total Telegram Bot API requests by method and status.",
			}, []string{"method", "status"}),
			TelegramLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "telegram_request_duration_seconds",
				Help:      "Latency distribution for Telegram Bot API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WebhookRequests,
			metricsInstance.LeadsCreated,
			metricsInstance.BotCommands,
			metricsInstance.BotCallbacks,
			metricsInstance.TelegramRequests,
			metricsInstance.TelegramLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
