package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RegistrationMetrics exposes counters/histograms for the wizard and login flows.
type RegistrationMetrics struct {
	actionsTotal      *prometheus.CounterVec
	stepRejections    *prometheus.CounterVec
	submissionsTotal  *prometheus.CounterVec
	submitLatency     *prometheus.HistogramVec
	loginsTotal       *prometheus.CounterVec
	activeSubmissions prometheus.Gauge
}

func NewRegistrationMetrics(reg prometheus.Registerer) *RegistrationMetrics {
	m := &RegistrationMetrics{
		actionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthfirst",
			Subsystem: "wizard",
			Name:      "actions_total",
			Help:      "Wizard actions by portal, action and outcome",
		}, []string{"portal", "action", "outcome"}),
		stepRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthfirst",
			Subsystem: "wizard",
			Name:      "step_rejections_total",
			Help:      "Step validations that left errors, by step",
		}, []string{"portal", "step"}),
		submissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthfirst",
			Subsystem: "wizard",
			Name:      "submissions_total",
			Help:      "Registration submissions by result",
		}, []string{"portal", "result"}),
		submitLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "healthfirst",
			Subsystem: "wizard",
			Name:      "submission_latency_seconds",
			Help:      "Latency of registration service calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"portal"}),
		loginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "healthfirst",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result",
		}, []string{"portal", "result"}),
		activeSubmissions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "healthfirst",
			Subsystem: "wizard",
			Name:      "submissions_in_flight",
			Help:      "Registration calls currently awaiting the registration service",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.actionsTotal, m.stepRejections, m.submissionsTotal, m.submitLatency, m.loginsTotal, m.activeSubmissions)
	return m
}

func (m *RegistrationMetrics) ObserveAction(portal, action, outcome string) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(portal, action, outcome).Inc()
}

func (m *RegistrationMetrics) ObserveStepRejected(portal, step string) {
	if m == nil {
		return
	}
	m.stepRejections.WithLabelValues(portal, step).Inc()
}

// SubmissionStarted returns a func that records the result and latency.
func (m *RegistrationMetrics) SubmissionStarted(portal string) func(result string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.activeSubmissions.Inc()
	return func(result string) {
		m.activeSubmissions.Dec()
		m.submissionsTotal.WithLabelValues(portal, result).Inc()
		m.submitLatency.WithLabelValues(portal).Observe(time.Since(start).Seconds())
	}
}

func (m *RegistrationMetrics) ObserveLogin(portal string, success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.loginsTotal.WithLabelValues(portal, result).Inc()
}
