package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the payout module.
// Tracks transfer outcomes, batch durations, and migration volume.
type Metrics struct {
	TransfersSucceeded  prometheus.Counter
	TransfersFailed     prometheus.Counter
	ManualConfirmations prometheus.Counter
	PayoutsMigrated     prometheus.Counter
	BatchDuration       prometheus.Histogram
	BatchSize           prometheus.Histogram
}

// New creates a Metrics instance with all payout module metrics registered.
func New() *Metrics {
	return &Metrics{
		TransfersSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payouts_transfers_succeeded_total",
			Help: "Total number of successful external transfers",
		}),
		TransfersFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payouts_transfers_failed_total",
			Help: "Total number of external transfers rejected by the processor",
		}),
		ManualConfirmations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payouts_manual_confirmations_total",
			Help: "Total number of manual payouts confirmed by operators",
		}),
		PayoutsMigrated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "payouts_migrated_total",
			Help: "Total number of payouts migrated from manual to stripe",
		}),
		BatchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "payouts_batch_duration_seconds",
			Help:    "Duration of batch disbursement runs",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "payouts_batch_size",
			Help:    "Number of payouts attempted per batch run",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250},
		}),
	}
}

// ObserveBatch records one batch run.
func (m *Metrics) ObserveBatch(start time.Time, size int) {
	m.BatchDuration.Observe(time.Since(start).Seconds())
	m.BatchSize.Observe(float64(size))
}
