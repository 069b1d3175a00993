package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "innkeeper"

var (
	once sync.Once

	reservationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Count of reservations created by source.",
		},
		[]string{"source"},
	)

	reservationTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Count of reservation status transitions by target status.",
		},
		[]string{"to"},
	)

	reservationsMoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_moved_total",
			Help:      "Count of reservation moves.",
		},
		[]string{"cross_instance"},
	)

	priceOverrides = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_overrides_total",
			Help:      "Count of per-instance price override writes by action (set, clear).",
		},
		[]string{"action"},
	)

	engineErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Count of failed engine operations by operation and error kind.",
		},
		[]string{"op", "kind"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	txDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_tx_duration_seconds",
			Help:      "Duration of engine transactions.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_cache_lookups_total",
			Help:      "Calendar cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			reservationsCreated,
			reservationTransitions,
			reservationsMoved,
			priceOverrides,
			engineErrors,
			httpRequests,
			txDuration,
			cacheLookups,
		)
	})
}

func IncReservationCreated(source string) {
	reservationsCreated.WithLabelValues(source).Inc()
}

func IncTransition(to string) {
	reservationTransitions.WithLabelValues(to).Inc()
}

func IncMoved(crossInstance bool) {
	label := "false"
	if crossInstance {
		label = "true"
	}
	reservationsMoved.WithLabelValues(label).Inc()
}

func AddPriceOverrides(action string, n int) {
	if n > 0 {
		priceOverrides.WithLabelValues(action).Add(float64(n))
	}
}

func IncEngineError(op, kind string) {
	engineErrors.WithLabelValues(op, kind).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func ObserveTx(op string, started time.Time) {
	txDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func IncCache(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}
