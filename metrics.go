package gateway

import "github.com/prometheus/client_golang/prometheus"

// metrics collects the gateway's Prometheus counters. A nil *metrics is
// valid and every method is then a no-op, so an Engine constructed without
// WithMetrics doesn't need a special case.
type metrics struct {
	framesDecoded       prometheus.Counter
	framesDropped       *prometheus.CounterVec
	transactionsUnknown prometheus.Counter
	transportErrors     prometheus.Counter
	commandsSent        prometheus.Counter
}

// newMetrics constructs and registers the gateway's counters against reg.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		framesDecoded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dartgw",
			Name:      "frames_decoded_total",
			Help:      "Inbound frames that yielded at least one decoded record.",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dartgw",
			Name:      "frames_dropped_total",
			Help:      "Inbound frames discarded, labelled by reason.",
		}, []string{"reason"}),
		transactionsUnknown: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dartgw",
			Name:      "transactions_unknown_total",
			Help:      "Transactions with a recognized structure but unsupported TRANS code.",
		}),
		transportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dartgw",
			Name:      "transport_errors_total",
			Help:      "OS-level serial open/write/read failures.",
		}),
		commandsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dartgw",
			Name:      "commands_sent_total",
			Help:      "Supervisor commands successfully written to the bus.",
		}),
	}
	reg.MustRegister(m.framesDecoded, m.framesDropped, m.transactionsUnknown, m.transportErrors, m.commandsSent)
	return m
}

func (m *metrics) decodedFrame() {
	if m != nil {
		m.framesDecoded.Inc()
	}
}

func (m *metrics) droppedFrame(reason string) {
	if m != nil {
		m.framesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *metrics) unknownTransaction() {
	if m != nil {
		m.transactionsUnknown.Inc()
	}
}

func (m *metrics) transportError() {
	if m != nil {
		m.transportErrors.Inc()
	}
}

func (m *metrics) commandSent() {
	if m != nil {
		m.commandsSent.Inc()
	}
}
