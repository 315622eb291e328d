package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Wager lifecycle metrics
	// ============================================
	WagersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_wagers_created_total",
			Help: "Total number of wagers created",
		},
		[]string{"asset_kind"},
	)

	WagersTaken = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rps_wagers_taken_total",
		Help: "Total number of wagers taken",
	})

	WagersResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_wagers_resolved_total",
			Help: "Total number of wagers resolved and finalized",
		},
		[]string{"rule"},
	)

	TakeConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rps_take_conflicts_total",
		Help: "Number of take attempts that lost the race to another taker",
	})

	// ============================================
	// Disbursement metrics
	// ============================================
	DisbursementAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rps_disbursement_attempts_total",
		Help: "Total number of payout transfer attempts, including retries",
	})

	DisbursementFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rps_disbursement_failures_total",
			Help: "Total number of disbursements that exhausted all retries",
		},
		[]string{"error_type"},
	)

	DisbursementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rps_disbursement_duration_seconds",
		Help:    "Time from first payout attempt to confirmed transfer",
		Buckets: prometheus.DefBuckets,
	})

	// ============================================
	// Commitment metrics
	// ============================================
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rps_commitment_decode_errors_total",
		Help: "Number of stored commitments that failed to decrypt (data corruption)",
	})
)
