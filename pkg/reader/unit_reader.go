// Package reader executes units of work and turns their results into
// tagged records.
//
// A UnitReader runs one statement on one connection and yields raw rows
// lazily. A FaultIsolatingReader wraps it and guarantees that every outcome
// of the unit (rows, a failed open, a failed cursor, a pre-failed descriptor)
// comes out of a single stream of models.TaggedRecord values, with at most one
// error record per unit and always as the last record.
package reader

import (
	"context"
	"database/sql"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/multisql/pkg/driver"
	"github.com/ajitpratap0/multisql/pkg/errors"
	"github.com/ajitpratap0/multisql/pkg/split"
)

// DefaultSourceField is the row field that receives the unit id when no
// other name is configured.
const DefaultSourceField = "tablename"

// RawRow maps column names to values for one row, plus the unit id under
// the configured source field.
type RawRow map[string]interface{}

// RowSource is a forward-only row iterator. Next returns io.EOF after the
// last row. Close must be safe to call more than once.
type RowSource interface {
	Next() (RawRow, error)
	Close() error
}

// Options configure how a unit is executed.
type Options struct {
	// SourceField is the row field set to the unit id. Defaults to
	// DefaultSourceField.
	SourceField string
	// QueryTimeout bounds the whole unit, from query start to the last row.
	// Zero means no bound beyond the caller's context.
	QueryTimeout time.Duration
	Logger       *zap.Logger
}

// UnitReader streams the rows of one unit's statement from a connection it
// exclusively owns.
type UnitReader struct {
	unit        split.UnitDescriptor
	sourceField string
	logger      *zap.Logger

	conn    *driver.Connection
	rows    *sql.Rows
	columns []string
	cancel  context.CancelFunc

	rowsRead int64
	done     bool

	closeOnce sync.Once
	closeErr  error
}

// OpenUnit opens a connection from factory, executes the unit's statement
// and returns a reader positioned before the first row.
//
// Connection and statement failures are returned as execution errors; the
// connection is already released when OpenUnit fails.
func OpenUnit(ctx context.Context, unit split.UnitDescriptor, factory driver.ConnectionFactory, opts Options) (*UnitReader, error) {
	if unit.IsPreFailed() || unit.Statement == "" {
		return nil, errors.Newf(errors.ErrorTypeValidation, "unit %s has no statement to execute", unit.ID)
	}
	if opts.SourceField == "" {
		opts.SourceField = DefaultSourceField
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	cancel := context.CancelFunc(func() {})
	if opts.QueryTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.QueryTimeout)
	}

	conn, err := factory.Connect(ctx)
	if err != nil {
		cancel()
		return nil, asClass(err, errors.ErrorTypeExecution, "failed to open connection").
			WithDetail("unit", unit.ID)
	}

	rows, err := conn.QueryContext(ctx, unit.Statement)
	if err != nil {
		_ = conn.Close()
		cancel()
		return nil, errors.Wrap(err, errors.ErrorTypeExecution, "failed to execute statement").
			WithDetail("unit", unit.ID)
	}

	columns, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		_ = conn.Close()
		cancel()
		return nil, errors.Wrap(err, errors.ErrorTypeExecution, "failed to read result columns").
			WithDetail("unit", unit.ID)
	}

	log.Debug("unit opened",
		zap.String("unit", unit.ID),
		zap.String("driver", factory.DriverName()),
		zap.Int("columns", len(columns)))

	return &UnitReader{
		unit:        unit,
		sourceField: opts.SourceField,
		logger:      log,
		conn:        conn,
		rows:        rows,
		columns:     columns,
		cancel:      cancel,
	}, nil
}

// Columns returns the result column names in cursor order.
func (r *UnitReader) Columns() []string {
	return r.columns
}

// RowsRead returns the number of rows returned so far.
func (r *UnitReader) RowsRead() int64 {
	return r.rowsRead
}

// Next returns the next row, io.EOF after the last one, or a row_read error
// if the cursor fails. After io.EOF or an error every call returns io.EOF.
func (r *UnitReader) Next() (RawRow, error) {
	if r.done {
		return nil, io.EOF
	}

	if !r.rows.Next() {
		r.done = true
		if err := r.rows.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeRowRead, "failed to read next row").
				WithDetail("unit", r.unit.ID).
				WithDetail("rows_read", r.rowsRead)
		}
		return nil, io.EOF
	}

	values := make([]interface{}, len(r.columns))
	ptrs := make([]interface{}, len(r.columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		r.done = true
		return nil, errors.Wrap(err, errors.ErrorTypeRowRead, "failed to scan row").
			WithDetail("unit", r.unit.ID).
			WithDetail("rows_read", r.rowsRead)
	}

	row := make(RawRow, len(r.columns)+1)
	for i, col := range r.columns {
		if b, ok := values[i].([]byte); ok {
			row[col] = string(b)
		} else {
			row[col] = values[i]
		}
	}
	row[r.sourceField] = r.unit.ID

	r.rowsRead++
	return row, nil
}

// Close releases the cursor and the connection. Only the first call does
// any work; later calls return the first result.
func (r *UnitReader) Close() error {
	r.closeOnce.Do(func() {
		r.done = true
		rowsErr := r.rows.Close()
		r.closeErr = r.conn.Close()
		if r.closeErr == nil {
			r.closeErr = rowsErr
		}
		r.cancel()
		r.logger.Debug("unit closed",
			zap.String("unit", r.unit.ID),
			zap.Int64("rows", r.rowsRead))
	})
	return r.closeErr
}

// NewOpener returns an Opener that runs units through OpenUnit.
func NewOpener(factory driver.ConnectionFactory, opts Options) Opener {
	return func(ctx context.Context, unit split.UnitDescriptor) (RowSource, error) {
		r, err := OpenUnit(ctx, unit, factory, opts)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}

// asClass keeps the class of errors that already carry a unit failure
// class and wraps anything else as errType.
func asClass(err error, errType errors.ErrorType, message string) *errors.Error {
	var e *errors.Error
	if errors.IsUnitFailure(err) && errors.As(err, &e) {
		return e
	}
	return errors.Wrap(err, errType, message)
}
