package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProtocolMetrics counts outcomes of the OTP, lifecycle and settlement steps.
type ProtocolMetrics struct {
	otpOutcomes  *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	settlements  *prometheus.CounterVec
	pickupStages *prometheus.CounterVec
}

func NewProtocolMetrics(reg prometheus.Registerer) *ProtocolMetrics {
	if reg == nil {
		return &ProtocolMetrics{}
	}
	otpOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "otp",
		Name:      "verifications_total",
		Help:      "OTP verification outcomes by purpose.",
	}, []string{"purpose", "outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "purchase",
		Name:      "transitions_total",
		Help:      "Purchase state machine events by outcome.",
	}, []string{"event", "outcome"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "splits_total",
		Help:      "Settlement persistence attempts by source and outcome.",
	}, []string{"source", "outcome"})
	pickupStages := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pickup",
		Name:      "stages_total",
		Help:      "Pickup workflow stage outcomes.",
	}, []string{"stage", "outcome"})
	reg.MustRegister(otpOutcomes, transitions, settlements, pickupStages)
	return &ProtocolMetrics{
		otpOutcomes:  otpOutcomes,
		transitions:  transitions,
		settlements:  settlements,
		pickupStages: pickupStages,
	}
}

func (p *ProtocolMetrics) OTPVerification(purpose, outcome string) {
	if p == nil || p.otpOutcomes == nil {
		return
	}
	p.otpOutcomes.WithLabelValues(normalizeLabel(purpose), normalizeLabel(outcome)).Inc()
}

func (p *ProtocolMetrics) Transition(event, outcome string) {
	if p == nil || p.transitions == nil {
		return
	}
	p.transitions.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

func (p *ProtocolMetrics) Settlement(source, outcome string) {
	if p == nil || p.settlements == nil {
		return
	}
	p.settlements.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

func (p *ProtocolMetrics) PickupStage(stage, outcome string) {
	if p == nil || p.pickupStages == nil {
		return
	}
	p.pickupStages.WithLabelValues(normalizeLabel(stage), normalizeLabel(outcome)).Inc()
}

// Outcome returns the label for err: "ok" or the typed code.
func Outcome(err error, code func(error) string) string {
	if err == nil {
		return "ok"
	}
	if code != nil {
		if c := code(err); c != "" {
			return c
		}
	}
	return "error"
}
