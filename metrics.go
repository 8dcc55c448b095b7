package provision

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks provisioning outcomes, notification delivery and token issuance.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	UsersProvisioned   *prometheus.CounterVec
	Compensations      *prometheus.CounterVec
	PasswordOperations *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	TokensIssued       prometheus.Counter
	OperationDuration  *prometheus.HistogramVec
}

// NewMetrics registers the provisioning metrics with reg. A nil registerer
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		UsersProvisioned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provision_users_total",
			Help: "Create-user calls by final saga state",
		}, []string{"state"}),
		Compensations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provision_compensations_total",
			Help: "Compensating deletes by result",
		}, []string{"result"}),
		PasswordOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provision_password_operations_total",
			Help: "Password operations by kind and outcome",
		}, []string{"operation", "outcome"}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "provision_notifications_total",
			Help: "Outbound emails by template and result",
		}, []string{"template", "result"}),
		TokensIssued: factory.NewCounter(prometheus.CounterOpts{
			Name: "provision_notifier_tokens_issued_total",
			Help: "Bearer tokens obtained from the token issuer",
		}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "provision_operation_duration_seconds",
			Help:    "Duration of orchestrator operations",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"operation"}),
	}
}

func (m *Metrics) userProvisioned(state SagaState) {
	if m == nil {
		return
	}
	m.UsersProvisioned.WithLabelValues(string(state)).Inc()
	switch state {
	case SagaCompensated:
		m.Compensations.WithLabelValues("deleted").Inc()
	case SagaCompensationFailed:
		m.Compensations.WithLabelValues("failed").Inc()
	}
}

func (m *Metrics) passwordOperation(operation string, outcome OutcomeStatus) {
	if m == nil {
		return
	}
	m.PasswordOperations.WithLabelValues(operation, outcome.String()).Inc()
}

func (m *Metrics) notification(template string, err error) {
	if m == nil {
		return
	}
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.Notifications.WithLabelValues(template, result).Inc()
}

func (m *Metrics) observe(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
