// Package metrics exposes Prometheus instrumentation for the reply pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReplyMetrics counts inbound outcomes, reply strategies and deliveries.
type ReplyMetrics struct {
	inboundTotal       *prometheus.CounterVec
	replySourceTotal   *prometheus.CounterVec
	deliveryTotal      *prometheus.CounterVec
	handoffTotal       *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
}

func NewReplyMetrics(reg prometheus.Registerer) *ReplyMetrics {
	m := &ReplyMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lead_agent",
			Subsystem: "inbound",
			Name:      "events_total",
			Help:      "Inbound chat events by outcome",
		}, []string{"status"}),
		replySourceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lead_agent",
			Subsystem: "reply",
			Name:      "source_total",
			Help:      "Replies by the strategy that produced them",
		}, []string{"source"}),
		deliveryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lead_agent",
			Subsystem: "delivery",
			Name:      "sends_total",
			Help:      "Outbound deliveries by status",
		}, []string{"status"}),
		handoffTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lead_agent",
			Subsystem: "lead",
			Name:      "handoffs_total",
			Help:      "Qualified lead handoffs by status",
		}, []string{"status"}),
		generationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lead_agent",
			Subsystem: "reply",
			Name:      "selection_seconds",
			Help:      "Time spent selecting a reply",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 6.5, 10},
		}, []string{"source"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.replySourceTotal, m.deliveryTotal, m.handoffTotal, m.generationDuration)
	return m
}

func (m *ReplyMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *ReplyMetrics) ObserveReply(source string, seconds float64) {
	if m == nil {
		return
	}
	m.replySourceTotal.WithLabelValues(source).Inc()
	m.generationDuration.WithLabelValues(source).Observe(seconds)
}

func (m *ReplyMetrics) ObserveDelivery(status string) {
	if m == nil {
		return
	}
	m.deliveryTotal.WithLabelValues(status).Inc()
}

func (m *ReplyMetrics) ObserveHandoff(status string) {
	if m == nil {
		return
	}
	m.handoffTotal.WithLabelValues(status).Inc()
}
