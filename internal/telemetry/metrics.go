package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btcx_payments_created_total",
		Help: "Number of payment requests created",
	})

	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcx_payment_status_transitions_total",
		Help: "Number of payment status transitions applied",
	}, []string{"to_status"})

	ExternalRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcx_external_retries_total",
		Help: "Number of retried external service calls",
	}, []string{"service"})

	ReconcileSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "btcx_reconcile_sweeps_total",
		Help: "Number of reconciliation sweeps executed",
	})
)
