package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the contract service's Prometheus collectors.
type Metrics struct {
	SignaturesCaptured  prometheus.Counter
	Verifications       *prometheus.CounterVec
	TransitionsRejected *prometheus.CounterVec
}

// New registers the service collectors on reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SignaturesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "contracts_signatures_captured_total",
			Help: "Signatures captured and certified.",
		}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contracts_signature_verifications_total",
			Help: "Signature verification outcomes.",
		}, []string{"outcome"}),
		TransitionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "contracts_transitions_rejected_total",
			Help: "Lifecycle transitions rejected, by error kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.SignaturesCaptured, m.Verifications, m.TransitionsRejected)
	return m
}

// VerificationOutcome maps a verification result to its metric label.
func VerificationOutcome(valid, tampered bool, reason string) string {
	switch {
	case valid:
		return "valid"
	case tampered:
		return "tampered"
	case reason == "expired":
		return "expired"
	default:
		return "invalid"
	}
}
