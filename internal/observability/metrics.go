package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fix_gateway"

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	sessionState     prometheus.Gauge
	reconnects       prometheus.Counter
	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	sequenceGaps     prometheus.Counter
	decodeErrors     prometheus.Counter
	throttleRate     prometheus.Gauge
	throttleAlerts   prometheus.Counter
	bookEntries      *prometheus.CounterVec
	orderEvents      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "state",
			Help:      "Session state: 0 disconnected, 1 connecting, 2 logged on",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reconnects_total",
			Help:      "Connections lost after logon",
		}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_sent_total",
			Help:      "Outbound messages by MsgType",
		}, []string{"msg_type"}),
		messagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_received_total",
			Help:      "Inbound messages by classified kind",
		}, []string{"kind"}),
		sequenceGaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "sequence_gaps_total",
			Help:      "Inbound sequence gaps that triggered a ResendRequest",
		}),
		decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "decode_errors_total",
			Help:      "Inbound messages dropped as undecodable",
		}),
		throttleRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "throttle_rate_per_minute",
			Help:      "Extrapolated outbound rate at the last full throttle window",
		}),
		throttleAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "throttle_alerts_total",
			Help:      "Throttle windows above the venue ceiling",
		}),
		bookEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "book",
			Name:      "entries_total",
			Help:      "Market data entries by outcome",
		}, []string{"outcome"}),
		orderEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "order",
			Name:      "events_total",
			Help:      "Order lifecycle transitions",
		}, []string{"event"}),
	}

	reg.MustRegister(
		m.sessionState,
		m.reconnects,
		m.messagesSent,
		m.messagesReceived,
		m.sequenceGaps,
		m.decodeErrors,
		m.throttleRate,
		m.throttleAlerts,
		m.bookEntries,
		m.orderEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus text format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) SetSessionState(state int) {
	if m == nil {
		return
	}
	m.sessionState.Set(float64(state))
}

func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) IncSent(msgType string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(msgType).Inc()
}

func (m *Metrics) IncReceived(kind string) {
	if m == nil {
		return
	}
	m.messagesReceived.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncSequenceGap() {
	if m == nil {
		return
	}
	m.sequenceGaps.Inc()
}

func (m *Metrics) IncDecodeError() {
	if m == nil {
		return
	}
	m.decodeErrors.Inc()
}

// ObserveThrottle records one evaluated throttle window
func (m *Metrics) ObserveThrottle(ratePerMinute float64, exceeded bool) {
	if m == nil {
		return
	}
	m.throttleRate.Set(ratePerMinute)
	if exceeded {
		m.throttleAlerts.Inc()
	}
}

// BookEntries records applied and skipped entries of one market data message
func (m *Metrics) BookEntries(applied, skipped int) {
	if m == nil {
		return
	}
	m.bookEntries.WithLabelValues("applied").Add(float64(applied))
	m.bookEntries.WithLabelValues("skipped").Add(float64(skipped))
}

func (m *Metrics) IncOrderEvent(event string) {
	if m == nil {
		return
	}
	m.orderEvents.WithLabelValues(event).Inc()
}
