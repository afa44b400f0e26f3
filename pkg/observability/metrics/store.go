package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultNamespace prefixes every store metric.
const DefaultNamespace = "docstore"

// Metrics holds the store collectors. A nil *Metrics is valid and records
// nothing, so instrumented code never has to check.
type Metrics struct {
	cursorExecutions *prometheus.CounterVec
	recordsScanned   *prometheus.CounterVec
	cursorDuration   *prometheus.HistogramVec
	joinDuration     prometheus.Histogram
	mutations        *prometheus.CounterVec
	snapshotBytes    *prometheus.GaugeVec
}

// New creates the store collectors under namespace and registers them with reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		cursorExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cursor_executions_total",
				Help:      "Number of cursor executions",
			},
			[]string{"collection"},
		),
		recordsScanned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_scanned_total",
				Help:      "Number of records visited by the scanner",
			},
			[]string{"collection"},
		),
		cursorDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "cursor_duration_seconds",
				Help:      "Cursor execution duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"collection"},
		),
		joinDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "join_duration_seconds",
				Help:      "Join resolution duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
		),
		mutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mutations_total",
				Help:      "Number of records changed by collection mutations",
			},
			[]string{"collection", "op"},
		),
		snapshotBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_bytes",
				Help:      "Size of the last snapshot written or read, in bytes",
			},
			[]string{"collection"},
		),
	}
}

// ObserveCursor records one cursor execution.
func (m *Metrics) ObserveCursor(collection string, visited int, d time.Duration) {
	if m == nil {
		return
	}
	m.cursorExecutions.WithLabelValues(collection).Inc()
	m.recordsScanned.WithLabelValues(collection).Add(float64(visited))
	m.cursorDuration.WithLabelValues(collection).Observe(d.Seconds())
}

// ObserveJoin records the time spent resolving a cursor's joins.
func (m *Metrics) ObserveJoin(d time.Duration) {
	if m == nil {
		return
	}
	m.joinDuration.Observe(d.Seconds())
}

// AddMutations counts n records changed by op.
func (m *Metrics) AddMutations(collection, op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.mutations.WithLabelValues(collection, op).Add(float64(n))
}

// SetSnapshotBytes records the size of a collection snapshot.
func (m *Metrics) SetSnapshotBytes(collection string, n int) {
	if m == nil {
		return
	}
	m.snapshotBytes.WithLabelValues(collection).Set(float64(n))
}
