package metrics

import (
	"net/http"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/ricemill_stock/inventory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg                *prometheus.Registry
	BalanceQueries     *prometheus.CounterVec
	NegativeAggregates prometheus.Counter
	ValidationRejects  *prometheus.CounterVec
	MovementsRecorded  *prometheus.CounterVec
	BalanceLatencySec  prometheus.Histogram
	ReportCacheLookups *prometheus.CounterVec
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default is the process registry served on /metrics.
func Default() *Registry {
	defaultOnce.Do(func() { defaultReg = NewRegistry() })
	return defaultReg
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	queries := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "stock_balance_queries_total"}, []string{"method"})
	negatives := prometheus.NewCounter(prometheus.CounterOpts{Name: "stock_negative_aggregates_total"})
	rejects := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "stock_validation_rejections_total"}, []string{"reason"})
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "stock_movements_recorded_total"}, []string{"type"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_balance_latency_seconds",
		Buckets: prometheus.DefBuckets,
	})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "stock_report_cache_lookups_total"}, []string{"result"})

	r.MustRegister(queries, negatives, rejects, movements, latency, cache)
	return &Registry{
		reg:                r,
		BalanceQueries:     queries,
		NegativeAggregates: negatives,
		ValidationRejects:  rejects,
		MovementsRecorded:  movements,
		BalanceLatencySec:  latency,
		ReportCacheLookups: cache,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Registry is the engine's inventory.Recorder.
var _ inventory.Recorder = (*Registry)(nil)

func (r *Registry) ObserveBalance(method inventory.CalculationMethod, elapsed time.Duration) {
	r.BalanceQueries.WithLabelValues(string(method)).Inc()
	r.BalanceLatencySec.Observe(elapsed.Seconds())
}

func (r *Registry) NegativeAggregate(string) { r.NegativeAggregates.Inc() }

func (r *Registry) ValidationRejected(reason string) {
	r.ValidationRejects.WithLabelValues(reason).Inc()
}

func (r *Registry) MovementRecorded(t inventory.MovementType) {
	r.MovementsRecorded.WithLabelValues(string(t)).Inc()
}

func (r *Registry) CacheLookup(hit bool) {
	if hit {
		r.ReportCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	r.ReportCacheLookups.WithLabelValues("miss").Inc()
}
