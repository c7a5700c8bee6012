package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for remote calls.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	remoteCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daylit_sync",
		Name:      "remote_calls_total",
		Help:      "Remote store calls by entity, operation, and result.",
	}, []string{"entity", "op", "result"})

	cacheFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daylit_sync",
		Name:      "cache_fallbacks_total",
		Help:      "Reads served from the local cache because the remote call failed.",
	}, []string{"entity", "op"})

	staleListsDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "daylit_sync",
		Name:      "cache_stale_lists_discarded_total",
		Help:      "Remote lists not written to the cache because a newer write landed first.",
	}, []string{"entity"})

	habitWeeksPropagated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "daylit_sync",
		Name:      "habit_weeks_propagated_total",
		Help:      "Weeks populated by copying the previous week's habits.",
	})

	triggersScheduled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "daylit_sync",
		Name:      "triggers_scheduled",
		Help:      "Reminder triggers currently registered with the trigger backend.",
	})
)

func init() {
	prometheus.MustRegister(remoteCalls, cacheFallbacks, staleListsDiscarded, habitWeeksPropagated, triggersScheduled)
}

// RecordRemoteCall counts one remote call.
func RecordRemoteCall(entity, op string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	remoteCalls.WithLabelValues(entity, op, result).Inc()
}

// RecordCacheFallback counts a read served from the cache.
func RecordCacheFallback(entity, op string) {
	cacheFallbacks.WithLabelValues(entity, op).Inc()
}

// RecordStaleListDiscarded counts a list dropped by the cache version check.
func RecordStaleListDiscarded(entity string) {
	staleListsDiscarded.WithLabelValues(entity).Inc()
}

// RecordHabitWeekPropagated counts one successful week copy.
func RecordHabitWeekPropagated() {
	habitWeeksPropagated.Inc()
}

// SetTriggersScheduled reports the current trigger count.
func SetTriggersScheduled(n int) {
	triggersScheduled.Set(float64(n))
}
