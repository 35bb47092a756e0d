// Package multisql implements the source connector that runs a list of SQL
// statements as independent, fault-isolated units.
//
// Each statement becomes one split. A split that fails (bad statement, lost
// connection, broken cursor) ends with a single error record while every
// other split keeps streaming. If the driver cannot be loaded or rejects the
// connection string, every split is pre-failed and reports that error.
package multisql

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/multisql/pkg/config"
	"github.com/ajitpratap0/multisql/pkg/connector/core"
	"github.com/ajitpratap0/multisql/pkg/driver"
	"github.com/ajitpratap0/multisql/pkg/errors"
	"github.com/ajitpratap0/multisql/pkg/logger"
	"github.com/ajitpratap0/multisql/pkg/models"
	"github.com/ajitpratap0/multisql/pkg/observability"
	"github.com/ajitpratap0/multisql/pkg/reader"
	"github.com/ajitpratap0/multisql/pkg/split"
)

// Name is the registry name of the source.
const Name = "multisql"

// Source reads the units of a job.
type Source struct {
	lifecycle *driver.Lifecycle
	base      *zap.Logger
	logger    *zap.Logger

	mu          sync.RWMutex
	cfg         *config.JobConfig
	units       []split.UnitDescriptor
	factory     driver.ConnectionFactory
	handle      *driver.Handle
	acquireErr  error
	initialized bool

	rowsRead      atomic.Int64
	errorRecords  atomic.Int64
	unitsFinished atomic.Int64
	unitsFailed   atomic.Int64
}

// Option configures a Source.
type Option func(*Source)

// WithLifecycle makes the source acquire drivers from lc instead of
// driver.Default.
func WithLifecycle(lc *driver.Lifecycle) Option {
	return func(s *Source) {
		s.lifecycle = lc
	}
}

// WithLogger sets the source logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Source) {
		if log != nil {
			s.base = log
		}
	}
}

// New creates an uninitialized source.
func New(opts ...Option) *Source {
	s := &Source{
		lifecycle: driver.Default,
		base:      logger.With(zap.String(string(logger.ConnectorKey), Name)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.base
	return s
}

// NewMultiSQLSource is the registry factory for the source.
func NewMultiSQLSource(_ *config.JobConfig) (core.Source, error) {
	return New(), nil
}

// Initialize partitions the statements and acquires the driver. Driver
// failures do not fail initialization: they pre-fail every split instead.
// Only an invalid configuration returns an error.
func (s *Source) Initialize(ctx context.Context, cfg *config.JobConfig) error {
	if cfg == nil {
		return errors.New(errors.ErrorTypeConfig, "job configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return errors.New(errors.ErrorTypeValidation, "source already initialized")
	}

	s.cfg = cfg
	s.logger = s.base.With(zap.String("job", cfg.Name))
	s.units = split.Partition(cfg.Statements, cfg.Reference())

	if len(s.units) > 0 {
		s.acquire(cfg)
	}
	s.initialized = true

	s.logger.Info("multisql source initialized",
		zap.String("driver", cfg.Driver),
		zap.Int("units", len(s.units)),
		zap.Bool("pre_failed", s.acquireErr != nil))
	return nil
}

// acquire must be called with s.mu held.
func (s *Source) acquire(cfg *config.JobConfig) {
	dsn := cfg.Connection.URL
	if entry, err := s.lifecycle.Catalog().Resolve(cfg.Driver); err == nil {
		built, err := entry.DSN(cfg.Connection.URL, cfg.Connection.Username, cfg.Connection.Password, cfg.Connection.Properties)
		if err != nil {
			s.preFail(err)
			return
		}
		dsn = built
	}

	factory, handle, err := s.lifecycle.Acquire(cfg.Driver, dsn)
	if err != nil {
		s.preFail(err)
		return
	}
	s.factory = driver.WithConnectTimeout(factory, cfg.Timeouts.Connection)
	s.handle = handle
}

func (s *Source) preFail(err error) {
	s.acquireErr = err
	s.units = split.PreFail(s.units, err)
}

// Splits returns the unit descriptors of the job in statement order.
func (s *Source) Splits() []split.UnitDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]split.UnitDescriptor, len(s.units))
	copy(out, s.units)
	return out
}

// OpenSplit returns a reader for one unit. It never fails: every problem
// with the unit comes back as its error record.
func (s *Source) OpenSplit(unit split.UnitDescriptor) core.RecordReader {
	s.mu.RLock()
	factory, acquireErr, cfg, log := s.factory, s.acquireErr, s.cfg, s.logger
	s.mu.RUnlock()

	var open reader.Opener
	switch {
	case factory != nil:
		open = reader.NewOpener(factory, reader.Options{
			SourceField:  cfg.SourceField,
			QueryTimeout: cfg.Timeouts.Query,
			Logger:       log,
		})
	case acquireErr != nil:
		open = func(context.Context, split.UnitDescriptor) (reader.RowSource, error) {
			return nil, acquireErr
		}
	default:
		open = func(context.Context, split.UnitDescriptor) (reader.RowSource, error) {
			return nil, errors.New(errors.ErrorTypeExecution, "source not initialized")
		}
	}
	return reader.NewFaultIsolatingReader(unit, open, reader.WithLogger(log))
}

// Read runs every split on a bounded pool of workers and streams their
// records. Records of one split keep their order; splits interleave.
// Errors carries ctx.Err() if the read is cancelled.
func (s *Source) Read(ctx context.Context) (*core.RecordStream, error) {
	s.mu.RLock()
	if !s.initialized {
		s.mu.RUnlock()
		return nil, errors.New(errors.ErrorTypeValidation, "source not initialized")
	}
	units := make([]split.UnitDescriptor, len(s.units))
	copy(units, s.units)
	workers := s.cfg.Performance.GetWorkers()
	bufferSize := s.cfg.Performance.GetBufferSize()
	s.mu.RUnlock()

	recordChan := make(chan *models.TaggedRecord, bufferSize)
	errorChan := make(chan error, 1)

	go func() {
		defer close(recordChan)
		defer close(errorChan)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, unit := range units {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				return s.readUnit(gctx, unit, recordChan)
			})
		}

		if err := g.Wait(); err != nil {
			errorChan <- err
		} else if err := ctx.Err(); err != nil {
			errorChan <- err
		}
	}()

	return &core.RecordStream{
		Records: recordChan,
		Errors:  errorChan,
	}, nil
}

func (s *Source) readUnit(ctx context.Context, unit split.UnitDescriptor, out chan<- *models.TaggedRecord) error {
	ctx = context.WithValue(ctx, logger.UnitKey, unit.ID)
	ctx, span := observability.StartUnitSpan(ctx, unit.ID, unit.ReferenceName)
	defer span.End()

	s.mu.RLock()
	log := logger.FromContext(ctx, s.logger)
	s.mu.RUnlock()

	r := s.OpenSplit(unit)
	defer r.Close()

	var rows int64
	failed := false
	for {
		rec, ok := r.Next(ctx)
		if !ok {
			break
		}
		span.Record(rec)
		if rec.IsRow() {
			rows++
			s.rowsRead.Add(1)
		} else {
			failed = true
			s.errorRecords.Add(1)
		}

		select {
		case out <- rec:
		case <-ctx.Done():
			log.Debug("unit cancelled", zap.Int64("rows", rows))
			return ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		log.Debug("unit cancelled", zap.Int64("rows", rows))
		return err
	}
	s.unitsFinished.Add(1)
	if failed {
		s.unitsFailed.Add(1)
	}
	log.Debug("unit finished", zap.Int64("rows", rows), zap.Bool("failed", failed))
	return nil
}

// Close releases the driver handle. Calling Close more than once is safe.
func (s *Source) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handle.Release()
	s.handle = nil
	s.factory = nil
	s.acquireErr = nil
	s.initialized = false

	s.logger.Info("multisql source closed",
		zap.Int64("rows_read", s.rowsRead.Load()),
		zap.Int64("error_records", s.errorRecords.Load()))
	return nil
}

// Health opens a connection and pings it.
func (s *Source) Health(ctx context.Context) error {
	s.mu.RLock()
	factory, acquireErr := s.factory, s.acquireErr
	s.mu.RUnlock()

	if acquireErr != nil {
		return acquireErr
	}
	if factory == nil {
		return errors.New(errors.ErrorTypeConnection, "source not initialized")
	}

	conn, err := factory.Connect(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to open connection")
	}
	defer conn.Close()

	if err := conn.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "ping failed")
	}
	return nil
}

// Metrics returns counters of the current run.
func (s *Source) Metrics() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := map[string]interface{}{
		"units":          len(s.units),
		"units_finished": s.unitsFinished.Load(),
		"units_failed":   s.unitsFailed.Load(),
		"rows_read":      s.rowsRead.Load(),
		"error_records":  s.errorRecords.Load(),
	}
	if s.handle != nil {
		m["driver"] = s.handle.DriverName()
	}
	if s.acquireErr != nil {
		m["driver_error"] = s.acquireErr.Error()
	}
	return m
}
