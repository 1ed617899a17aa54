package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Namespace prefixes every metric exported by the scanner.
const Namespace = "omniarb"

// Quote results
const (
	QuoteOK          = "ok"
	QuoteUnavailable = "unavailable"
)

// ScanMetrics tracks the scan pipeline.
type ScanMetrics struct {
	Cycles           prometheus.Counter
	CycleDuration    prometheus.Histogram
	CycleTimeouts    prometheus.Counter
	Quotes           *prometheus.CounterVec
	Opportunities    *prometheus.CounterVec
	SignalsRanked    prometheus.Counter
	Allocations      prometheus.Counter
	CapitalAllocated prometheus.Gauge
	Executions       *prometheus.CounterVec
	BreakerOpen      prometheus.Gauge
}

// NewScanMetrics registers the scan metrics on reg. A nil reg registers on a
// private registry so callers that do not export metrics can still record them.
func NewScanMetrics(reg prometheus.Registerer) *ScanMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &ScanMetrics{
		Cycles: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cycles_total",
			Help:      "Total number of scan cycles run",
		}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Scan cycle duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		CycleTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cycle_timeouts_total",
			Help:      "Scan cycles that hit their deadline",
		}),
		Quotes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "quotes_total",
			Help:      "Quote requests by venue and result",
		}, []string{"venue", "result"}),
		Opportunities: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "opportunities_found_total",
			Help:      "Opportunities found by strategy kind",
		}, []string{"kind"}),
		SignalsRanked: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "signals_ranked_total",
			Help:      "Signals surviving ranking filters",
		}),
		Allocations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "allocations_total",
			Help:      "Signals that received capital",
		}),
		CapitalAllocated: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "capital_allocated_usd",
			Help:      "Capital allocated in the last cycle",
		}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "executions_total",
			Help:      "Allocations handed to the executor by status",
		}, []string{"status"}),
		BreakerOpen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "breaker_open",
			Help:      "1 when the circuit breaker blocks execution",
		}),
	}
}

// ObserveQuote records a quote attempt for venue.
func (m *ScanMetrics) ObserveQuote(venue string, err error) {
	result := QuoteOK
	if err != nil {
		result = QuoteUnavailable
	}
	m.Quotes.WithLabelValues(venue, result).Inc()
}

// VenueAvailability returns the share of successful quotes for venue, or -1
// when the venue has not been queried.
func (m *ScanMetrics) VenueAvailability(venue string) float64 {
	ok := counterValue(m.Quotes.WithLabelValues(venue, QuoteOK))
	failed := counterValue(m.Quotes.WithLabelValues(venue, QuoteUnavailable))
	if ok+failed == 0 {
		return -1
	}
	return ok / (ok + failed)
}

func counterValue(c prometheus.Counter) float64 {
	metric := &dto.Metric{}
	if err := c.Write(metric); err != nil || metric.Counter == nil {
		return 0
	}
	return metric.Counter.GetValue()
}
