package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransfersCreated counts transfers persisted in AWAITING_FUNDING, by chain and token
	TransfersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_transfers_created_total",
			Help: "Total number of transfers created",
		},
		[]string{"chain", "token"},
	)

	// FundingConfirmations counts funding confirmations by result
	FundingConfirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_funding_confirmations_total",
			Help: "Total number of processed funding confirmations by result",
		},
		[]string{"result"},
	)

	// PayoutAttempts counts adapter send attempts by method and outcome
	PayoutAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_payout_attempts_total",
			Help: "Total number of payout adapter attempts",
		},
		[]string{"method", "outcome"},
	)

	// Payouts counts payout instructions reaching a status
	Payouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_payouts_total",
			Help: "Total number of payout instructions by resulting status",
		},
		[]string{"status"},
	)

	// PayoutCallbacks counts provider status callbacks by outcome
	PayoutCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_payout_callbacks_total",
			Help: "Total number of payout status callbacks by outcome",
		},
		[]string{"outcome"},
	)

	// IdempotencyOutcomes counts guarded executions by scope and outcome
	IdempotencyOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_idempotency_total",
			Help: "Idempotency guard outcomes (executed, replayed, conflict, in_progress)",
		},
		[]string{"scope", "outcome"},
	)

	// ReconciliationIssues counts detected reconciliation issues by code
	ReconciliationIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_reconciliation_issues_total",
			Help: "Total number of reconciliation issues detected",
		},
		[]string{"code"},
	)

	// ReconciliationRunDuration tracks reconciliation run time by final status
	ReconciliationRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_reconciliation_run_duration_seconds",
			Help:    "Reconciliation run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	// TransfersExpired counts transfers moved to EXPIRED by the sweep
	TransfersExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_transfers_expired_total",
			Help: "Total number of transfers expired by the sweep",
		},
	)

	// IdempotencyRecordsPurged counts expired idempotency records removed
	IdempotencyRecordsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "settlement_idempotency_records_purged_total",
			Help: "Total number of expired idempotency records deleted",
		},
	)

	// SLABreaches counts transfers flagged for sitting in a status past its SLA, by breach type
	SLABreaches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_sla_breaches_total",
			Help: "Total number of SLA breaches flagged",
		},
		[]string{"type"},
	)

	// RetentionDeleted counts rows removed by the retention job, by table
	RetentionDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settlement_retention_deleted_total",
			Help: "Total number of rows deleted by the retention job",
		},
		[]string{"table"},
	)
)
