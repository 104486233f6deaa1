package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache tiers and lookup outcomes used as label values
const (
	TierMemory     = "memory"
	TierPersistent = "persistent"

	ResultHit  = "hit"
	ResultMiss = "miss"
)

// Metrics groups the instruments of the journey planner.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	cacheLookups    *prometheus.CounterVec
	cacheWrites     *prometheus.CounterVec
	engineDuration  *prometheus.HistogramVec
	droppedJourneys prometheus.Counter
	periodSwitches  *prometheus.CounterVec
	initializations prometheus.Counter
}

// New creates the instruments and registers them on a fresh registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_cache_lookups_total",
			Help: "Journey cache lookups by tier and result",
		}, []string{"tier", "result"}),
		cacheWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journey_cache_writes_total",
			Help: "Journey cache writes by tier and outcome",
		}, []string{"tier", "outcome"}),
		engineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "routing_engine_call_seconds",
			Help:    "Latency of routing engine calls",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		droppedJourneys: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_dropped_journeys_total",
			Help: "Journeys dropped because a leg referenced an unknown stop position",
		}),
		periodSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_period_activations_total",
			Help: "Schedule period activations",
		}, []string{"period"}),
		initializations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_initializations_total",
			Help: "Completed planner initializations",
		}),
	}

	m.Registry.MustRegister(
		m.cacheLookups,
		m.cacheWrites,
		m.engineDuration,
		m.droppedJourneys,
		m.periodSwitches,
		m.initializations,
	)
	return m
}

func (m *Metrics) CacheLookup(tier, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(tier, result).Inc()
}

func (m *Metrics) CacheWrite(tier string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.cacheWrites.WithLabelValues(tier, outcome).Inc()
}

// ObserveEngine records the duration of an engine call started at start
func (m *Metrics) ObserveEngine(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.engineDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) DroppedJourneys(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.droppedJourneys.Add(float64(n))
}

func (m *Metrics) PeriodActivated(period string) {
	if m == nil {
		return
	}
	m.periodSwitches.WithLabelValues(period).Inc()
}

func (m *Metrics) Initialized() {
	if m == nil {
		return
	}
	m.initializations.Inc()
}
