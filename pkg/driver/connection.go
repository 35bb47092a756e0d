package driver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/multisql/pkg/errors"
	"github.com/ajitpratap0/multisql/pkg/metrics"
)

// ConnectionFactory opens the single connection a unit owns.
type ConnectionFactory interface {
	Connect(ctx context.Context) (*Connection, error)
	DriverName() string
}

// Connection is a database connection exclusively owned by one unit.
// Close is idempotent; the underlying resources are released once.
type Connection struct {
	conn    *sql.Conn
	release func() error

	once     sync.Once
	closeErr error
}

// NewConnection wraps conn. release, when not nil, runs once after conn is
// closed and frees whatever the connection was opened from.
func NewConnection(conn *sql.Conn, release func() error) *Connection {
	return &Connection{conn: conn, release: release}
}

// QueryContext executes a query on the owned connection.
func (c *Connection) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.conn.QueryContext(ctx, query, args...)
}

// PingContext verifies the connection is alive.
func (c *Connection) PingContext(ctx context.Context) error {
	return c.conn.PingContext(ctx)
}

// Close closes the connection exactly once and returns the first error.
func (c *Connection) Close() error {
	c.once.Do(func() {
		c.closeErr = c.conn.Close()
		if c.release != nil {
			if err := c.release(); err != nil && c.closeErr == nil {
				c.closeErr = err
			}
		}
	})
	return c.closeErr
}

// connectorFactory opens a private single-connection pool per unit so no
// connection is ever shared across units. It stops opening connections once
// the handle it was acquired with is released.
type connectorFactory struct {
	driverName string
	connector  driver.Connector
	released   *atomic.Bool
}

func (f *connectorFactory) DriverName() string {
	return f.driverName
}

func (f *connectorFactory) Connect(ctx context.Context) (*Connection, error) {
	if f.released.Load() {
		return nil, errors.New(errors.ErrorTypeExecution, "driver handle already released").
			WithDetail("driver", f.driverName)
	}

	db := sql.OpenDB(f.connector)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeExecution, "failed to open connection").
			WithDetail("driver", f.driverName)
	}

	gauge := metrics.OpenConnections.WithLabelValues(f.driverName)
	gauge.Inc()
	return NewConnection(conn, func() error {
		gauge.Dec()
		return db.Close()
	}), nil
}

// dsnConnector adapts drivers that do not implement driver.DriverContext.
type dsnConnector struct {
	dsn string
	drv driver.Driver
}

func (c *dsnConnector) Connect(_ context.Context) (driver.Conn, error) {
	return c.drv.Open(c.dsn)
}

func (c *dsnConnector) Driver() driver.Driver {
	return c.drv
}

type timeoutFactory struct {
	ConnectionFactory
	timeout time.Duration
}

// WithConnectTimeout bounds every Connect call of f by timeout. A
// non-positive timeout returns f unchanged.
func WithConnectTimeout(f ConnectionFactory, timeout time.Duration) ConnectionFactory {
	if timeout <= 0 {
		return f
	}
	return &timeoutFactory{ConnectionFactory: f, timeout: timeout}
}

func (f *timeoutFactory) Connect(ctx context.Context) (*Connection, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	return f.ConnectionFactory.Connect(ctx)
}
