package reader

import (
	"context"
	"io"
	"iter"

	"go.uber.org/zap"

	"github.com/ajitpratap0/multisql/pkg/errors"
	"github.com/ajitpratap0/multisql/pkg/metrics"
	"github.com/ajitpratap0/multisql/pkg/models"
	"github.com/ajitpratap0/multisql/pkg/split"
)

// Opener opens the row source of a unit.
type Opener func(ctx context.Context, unit split.UnitDescriptor) (RowSource, error)

// State is the lifecycle state of a FaultIsolatingReader.
type State int

const (
	StateUnopened State = iota
	StateOpening
	StateStreaming
	StateClosed
	StatePreFailed
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	case StatePreFailed:
		return "pre_failed"
	default:
		return "unknown"
	}
}

// Option configures a FaultIsolatingReader.
type Option func(*FaultIsolatingReader)

// WithLogger sets the logger used for unit lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(r *FaultIsolatingReader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// FaultIsolatingReader turns everything that can happen to one unit into
// tagged records. The stream for a unit is either rows only, or rows followed
// by exactly one error record. Failures never escape as Go errors.
//
// A reader is pulled by a single consumer and is not safe for concurrent use.
type FaultIsolatingReader struct {
	unit   split.UnitDescriptor
	open   Opener
	logger *zap.Logger

	state  State
	source RowSource
	rows   int64
	timer  *metrics.Timer
}

// NewFaultIsolatingReader creates a reader for unit. Pre-failed descriptors
// start in StatePreFailed and never call open.
func NewFaultIsolatingReader(unit split.UnitDescriptor, open Opener, opts ...Option) *FaultIsolatingReader {
	r := &FaultIsolatingReader{
		unit:   unit,
		open:   open,
		logger: zap.NewNop(),
		state:  StateUnopened,
	}
	if unit.IsPreFailed() {
		r.state = StatePreFailed
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Unit returns the descriptor being read.
func (r *FaultIsolatingReader) Unit() split.UnitDescriptor {
	return r.unit
}

// State returns the current state.
func (r *FaultIsolatingReader) State() State {
	return r.state
}

// RowsEmitted returns the number of row records returned so far.
func (r *FaultIsolatingReader) RowsEmitted() int64 {
	return r.rows
}

// Next returns the next record of the unit, or false once the unit is
// closed. The first call opens the unit.
//
// If ctx is cancelled the connection is released and the reader closes
// without emitting a record for the cancellation.
func (r *FaultIsolatingReader) Next(ctx context.Context) (*models.TaggedRecord, bool) {
	switch r.state {
	case StateClosed:
		return nil, false

	case StatePreFailed:
		f := r.unit.PreFailure
		r.logger.Warn("unit pre-failed",
			zap.String("unit", r.unit.ID),
			zap.String("failure_class", f.FailureClass),
			zap.String("error", f.Message))
		metrics.ErrorRecords.WithLabelValues(r.unit.ReferenceName, f.FailureClass).Inc()
		r.finish(metrics.OutcomePreFailed)
		return models.NewError(r.unit.ID, r.unit.ReferenceName, f.Message, f.FailureClass), true

	case StateUnopened:
		if ctx.Err() != nil {
			r.finish(metrics.OutcomeCancelled)
			return nil, false
		}
		r.state = StateOpening
		r.timer = metrics.NewTimer()

		source, err := r.open(ctx, r.unit)
		if err != nil {
			if ctx.Err() != nil {
				r.finish(metrics.OutcomeCancelled)
				return nil, false
			}
			return r.fail(err, errors.ErrorTypeExecution), true
		}
		r.source = source
		r.state = StateStreaming
		r.logger.Debug("unit streaming", zap.String("unit", r.unit.ID))
	}

	// StateStreaming
	if ctx.Err() != nil {
		r.finish(metrics.OutcomeCancelled)
		return nil, false
	}

	row, err := r.source.Next()
	if err == io.EOF {
		r.finish(metrics.OutcomeSuccess)
		return nil, false
	}
	if err != nil {
		if ctx.Err() != nil {
			r.finish(metrics.OutcomeCancelled)
			return nil, false
		}
		return r.fail(err, errors.ErrorTypeRowRead), true
	}

	r.rows++
	metrics.RowsEmitted.WithLabelValues(r.unit.ReferenceName).Inc()
	return models.NewRow(r.unit.ID, row), true
}

// Records returns the unit's records as an iterator. Stopping the iteration
// early closes the reader.
func (r *FaultIsolatingReader) Records(ctx context.Context) iter.Seq[*models.TaggedRecord] {
	return func(yield func(*models.TaggedRecord) bool) {
		for {
			rec, ok := r.Next(ctx)
			if !ok {
				return
			}
			if !yield(rec) {
				r.Close()
				return
			}
		}
	}
}

// Close releases the unit's connection and moves the reader to
// StateClosed. Closing an unfinished unit counts it as cancelled.
func (r *FaultIsolatingReader) Close() {
	if r.state == StateClosed {
		return
	}
	r.finish(metrics.OutcomeCancelled)
}

// fail converts err into the unit's single trailing error record. Errors
// without a unit failure class are reported as fallback.
func (r *FaultIsolatingReader) fail(err error, fallback errors.ErrorType) *models.TaggedRecord {
	class := errors.TypeOf(err)
	if !errors.IsUnitFailure(err) {
		class = fallback
	}

	r.logger.Warn("unit failed",
		zap.String("unit", r.unit.ID),
		zap.String("failure_class", string(class)),
		zap.Int64("rows", r.rows),
		zap.Error(err))

	metrics.ErrorRecords.WithLabelValues(r.unit.ReferenceName, string(class)).Inc()
	r.finish(metrics.OutcomeFailed)
	return models.NewError(r.unit.ID, r.unit.ReferenceName, err.Error(), string(class))
}

func (r *FaultIsolatingReader) finish(outcome string) {
	if r.source != nil {
		if err := r.source.Close(); err != nil {
			r.logger.Warn("failed to close unit", zap.String("unit", r.unit.ID), zap.Error(err))
		}
	}
	r.state = StateClosed

	metrics.UnitsCompleted.WithLabelValues(r.unit.ReferenceName, outcome).Inc()
	if r.timer != nil {
		metrics.UnitDuration.WithLabelValues(r.unit.ReferenceName).Observe(r.timer.Stop().Seconds())
	}
	r.logger.Debug("unit closed",
		zap.String("unit", r.unit.ID),
		zap.String("outcome", outcome),
		zap.Int64("rows", r.rows))
}
