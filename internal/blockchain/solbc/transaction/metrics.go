// internal/blockchain/solbc/transaction/metrics.go
package transaction

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics счетчики расчетного клиента. С nil Registerer метрики не регистрируются.
type Metrics struct {
	submissions       *prometheus.CounterVec
	retries           prometheus.Counter
	confirmations     *prometheus.CounterVec
	durationHistogram prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchpad",
			Name:      "tx_submissions_total",
			Help:      "Transaction submissions by outcome",
		}, []string{"outcome"}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "launchpad",
			Name:      "rpc_retries_total",
			Help:      "Retried RPC calls after transient errors",
		}),
		confirmations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "launchpad",
			Name:      "tx_confirmations_total",
			Help:      "Confirmation waits by outcome",
		}, []string{"outcome"}),
		durationHistogram: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "launchpad",
			Name:      "tx_confirmation_seconds",
			Help:      "Time from first status poll to the final outcome",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 9),
		}),
	}
}

func (tm *Metrics) ObserveSubmission(outcome string) {
	tm.submissions.WithLabelValues(outcome).Inc()
}

func (tm *Metrics) ObserveRetry() {
	tm.retries.Inc()
}

func (tm *Metrics) ObserveConfirmation(outcome string, elapsed time.Duration) {
	tm.confirmations.WithLabelValues(outcome).Inc()
	tm.durationHistogram.Observe(elapsed.Seconds())
}
