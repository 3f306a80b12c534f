package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WAIncomingMessages *prometheus.CounterVec
	WAOutgoingMessages *prometheus.CounterVec
	LLMRequests        *prometheus.CounterVec
	LLMLatency         *prometheus.HistogramVec
	RazorpayRequests   *prometheus.CounterVec
	RazorpayLatency    *prometheus.HistogramVec
	NudgesSent         prometheus.Counter
	Errors             *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WAIncomingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wa_incoming_messages_total",
				Help:      "Total incoming WhatsApp messages processed.",
			}, []string{"type"}),
			WAOutgoingMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wa_outgoing_messages_total",
				Help:      "Total outgoing WhatsApp messages sent.",
			}, []string{"type"}),
			LLMRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total completion API requests by outcome.",
			}, []string{"status"}),
			LLMLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Latency distribution for completion API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			RazorpayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "razorpay_requests_total",
				Help:      "Total Razorpay API requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			RazorpayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "razorpay_request_duration_seconds",
				Help:      "Latency distribution for Razorpay API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			NudgesSent: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "nudges_sent_total",
				Help:      "Total reminder messages sent to inactive users.",
			}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WAIncomingMessages,
			metricsInstance.WAOutgoingMessages,
			metricsInstance.LLMRequests,
			metricsInstance.LLMLatency,
			metricsInstance.RazorpayRequests,
			metricsInstance.RazorpayLatency,
			metricsInstance.NudgesSent,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
