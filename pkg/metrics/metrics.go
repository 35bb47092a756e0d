// Package metrics provides Prometheus instrumentation for multisql.
//
// All collectors are registered on the default registry at package init.
// Label cardinality is bounded: units are labeled by outcome and failure
// class, never by unit id.
//
// # Basic Usage
//
//	metrics.RowsEmitted.WithLabelValues("orders").Inc()
//	metrics.ErrorRecords.WithLabelValues("orders", "execution").Inc()
//
//	timer := metrics.NewTimer()
//	// ... run the unit
//	metrics.UnitDuration.WithLabelValues("orders").Observe(timer.Stop().Seconds())
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Unit outcomes used as the "outcome" label of UnitsCompleted.
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomePreFailed = "pre_failed"
	OutcomeCancelled = "cancelled"
)

var (
	// UnitsCompleted counts finished units by outcome.
	// Labels: reference (job reference name), outcome
	UnitsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multisql_units_completed_total",
			Help: "Total number of units that reached the closed state",
		},
		[]string{"reference", "outcome"},
	)

	// RowsEmitted counts row records emitted by unit readers.
	RowsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multisql_rows_emitted_total",
			Help: "Total number of row records emitted",
		},
		[]string{"reference"},
	)

	// ErrorRecords counts error records by failure class.
	ErrorRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multisql_error_records_total",
			Help: "Total number of error records emitted",
		},
		[]string{"reference", "failure_class"},
	)

	// UnitDuration observes the wall time of a unit from first pull to close.
	UnitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "multisql_unit_duration_seconds",
			Help:    "Duration of a unit from open to close",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"reference"},
	)

	// OpenConnections tracks connections currently owned by units.
	OpenConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "multisql_open_connections",
			Help: "Number of unit connections currently open",
		},
		[]string{"driver"},
	)

	// DriverRegistrations counts registry registrations and deregistrations.
	// Labels: driver, action (register/deregister)
	DriverRegistrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "multisql_driver_registrations_total",
			Help: "Driver registry registrations and deregistrations",
		},
		[]string{"driver", "action"},
	)

	// DriverReferences tracks outstanding driver handles.
	DriverReferences = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "multisql_driver_references",
			Help: "Outstanding driver handles",
		},
		[]string{"driver"},
	)

	// Throughput tracks records per second written by the pipeline.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "multisql_throughput_records_per_second",
			Help: "Current throughput in records per second",
		},
		[]string{"source", "destination"},
	)
)

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks records per second over time windows.
// Safe for concurrent use.
type ThroughputTracker struct {
	mu          sync.Mutex
	count       int64
	lastReset   time.Time
	source      string
	destination string
}

// NewThroughputTracker creates a tracker labeled with the pipeline endpoints.
func NewThroughputTracker(source, destination string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset:   time.Now(),
		source:      source,
		destination: destination,
	}
}

// Increment adds n to the record count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset computes the throughput since the last reset, publishes it
// and resets the window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed
	Throughput.WithLabelValues(t.source, t.destination).Set(throughput)

	t.count = 0
	t.lastReset = time.Now()
	return throughput
}

// Server exposes /metrics over HTTP.
type Server struct {
	srv *http.Server
}

// Serve starts a metrics endpoint on addr in the background. Listen
// failures are logged, not returned.
func Serve(addr string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s := &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics endpoint stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return s
}

// Shutdown stops the metrics endpoint.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
