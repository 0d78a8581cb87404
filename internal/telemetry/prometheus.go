package telemetry

import "github.com/prometheus/client_golang/prometheus"

const ezcareNamespace string = "ezcare"

var (
	promSessionTotal   prometheus.Gauge
	promTransportTotal *prometheus.GaugeVec
	promConsumerTotal  prometheus.Gauge

	signalingRequestCounter *prometheus.CounterVec
	reconnectCounter        prometheus.Counter
	admissionCounter        *prometheus.CounterVec
	moderationCounter       *prometheus.CounterVec
)

func init() {
	promSessionTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ezcareNamespace,
		Subsystem: "session",
		Name:      "total",
	})

	promTransportTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ezcareNamespace,
		Subsystem: "transport",
		Name:      "total",
	}, []string{"direction"})

	promConsumerTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ezcareNamespace,
		Subsystem: "consumer",
		Name:      "total",
	})

	signalingRequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ezcareNamespace,
		Subsystem: "signaling",
		Name:      "requests",
	}, []string{"method", "status"})

	reconnectCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ezcareNamespace,
		Subsystem: "signaling",
		Name:      "reconnect_attempts",
	})

	admissionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ezcareNamespace,
		Subsystem: "admission",
		Name:      "outcomes",
	}, []string{"outcome"})

	moderationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ezcareNamespace,
		Subsystem: "moderation",
		Name:      "actions",
	}, []string{"action"})

	prometheus.MustRegister(promSessionTotal)
	prometheus.MustRegister(promTransportTotal)
	prometheus.MustRegister(promConsumerTotal)
	prometheus.MustRegister(signalingRequestCounter)
	prometheus.MustRegister(reconnectCounter)
	prometheus.MustRegister(admissionCounter)
	prometheus.MustRegister(moderationCounter)
}

func SessionStarted() {
	promSessionTotal.Inc()
}

func SessionStopped() {
	promSessionTotal.Dec()
}

func TransportOpened(direction string) {
	promTransportTotal.WithLabelValues(direction).Inc()
}

func TransportClosed(direction string) {
	promTransportTotal.WithLabelValues(direction).Dec()
}

func ConsumerAdded() {
	promConsumerTotal.Inc()
}

func ConsumerRemoved() {
	promConsumerTotal.Dec()
}

func SignalingRequest(method, status string) {
	signalingRequestCounter.WithLabelValues(method, status).Add(1)
}

func ReconnectAttempt() {
	reconnectCounter.Inc()
}

func AdmissionOutcome(outcome string) {
	admissionCounter.WithLabelValues(outcome).Add(1)
}

func ModerationAction(action string) {
	moderationCounter.WithLabelValues(action).Add(1)
}
