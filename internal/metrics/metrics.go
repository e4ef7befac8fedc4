// Package metrics описывает метрики Prometheus бота.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics - счетчики флоу и вызовов API. Нулевой указатель допустим: методы ничего не делают.
type Metrics struct {
	flowEvents  *prometheus.CounterVec
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
	updates     *prometheus.CounterVec
}

// New регистрирует метрики в reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		flowEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "payout_bot",
				Name:      "flow_events_total",
				Help:      "Conversation flow events by flow and event",
			},
			[]string{"flow", "event"},
		),
		apiRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "payout_bot",
				Name:      "api_requests_total",
				Help:      "Payments API requests by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		apiDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "payout_bot",
				Name:      "api_request_duration_seconds",
				Help:      "Payments API request duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
		updates: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "payout_bot",
				Name:      "updates_total",
				Help:      "Telegram updates received by kind",
			},
			[]string{"kind"},
		),
	}
}

// FlowEvent - started, completed, cancelled, aborted, partial
func (m *Metrics) FlowEvent(flow, event string) {
	if m == nil {
		return
	}
	m.flowEvents.WithLabelValues(flow, event).Inc()
}

// ObserveAPI учитывает один вызов API
func (m *Metrics) ObserveAPI(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.apiRequests.WithLabelValues(operation, outcome).Inc()
	m.apiDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Update учитывает входящий апдейт: message, callback, other
func (m *Metrics) Update(kind string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(kind).Inc()
}
