package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ProcessingMetrics struct {
	cycleCount           prometheus.Counter
	lastCycleGauge       prometheus.Gauge
	fetchErrorCount      *prometheus.CounterVec
	newTransactionsCount *prometheus.CounterVec
	alertsSentCount      prometheus.Counter
	dispatchErrorCount   prometheus.Counter
	priceGauge           *prometheus.GaugeVec
}

func NewProcessingMetrics(namespace string) *ProcessingMetrics {
	m := ProcessingMetrics{
		cycleCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_poll_cycle_count", namespace),
			Help: "The total number of completed poll cycles",
		}),
		lastCycleGauge: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_last_cycle_timestamp", namespace),
			Help: "Unix time of the last completed poll cycle",
		}),
		fetchErrorCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_fetch_error_count", namespace),
			Help: "The total number of failed per-network fetches",
		}, []string{"network"}),
		newTransactionsCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_new_transaction_count", namespace),
			Help: "The total number of newly qualifying transactions",
		}, []string{"network"}),
		alertsSentCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_alerts_sent_count", namespace),
			Help: "The total number of alert messages sent",
		}),
		dispatchErrorCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_dispatch_error_count", namespace),
			Help: "The total number of failed alert sends",
		}),
		priceGauge: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_token_price_usd", namespace),
			Help: "The last known USD token price per network",
		}, []string{"network"}),
	}
	return &m
}

func (m *ProcessingMetrics) IncCycles() {
	m.cycleCount.Inc()
	m.lastCycleGauge.SetToCurrentTime()
}

func (m *ProcessingMetrics) IncFetchErrors(network string) {
	m.fetchErrorCount.WithLabelValues(network).Inc()
}

func (m *ProcessingMetrics) AddNewTransactions(network string, count int) {
	m.newTransactionsCount.WithLabelValues(network).Add(float64(count))
}

func (m *ProcessingMetrics) IncAlertsSent() {
	m.alertsSentCount.Inc()
}

func (m *ProcessingMetrics) IncDispatchErrors() {
	m.dispatchErrorCount.Inc()
}

func (m *ProcessingMetrics) SetPrice(network string, usd float64) {
	m.priceGauge.WithLabelValues(network).Set(usd)
}
