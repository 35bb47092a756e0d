// Package driver manages the native database drivers used by units of work.
//
// # Overview
//
// A job names its driver with a string. The Lifecycle resolves that name in a
// static Catalog, registers the driver in a process-wide registry the first
// time it is acquired, and hands out reference-counted Handles. The driver is
// deregistered when the last handle is released, so many units running in the
// same process share one registration:
//
//	factory, handle, err := driver.Default.Acquire("pgx", dsn)
//	if err != nil {
//	    // driver_load or driver_registration error
//	}
//	defer handle.Release()
//
//	conn, err := factory.Connect(ctx) // one connection owned by this unit
//
// Release is idempotent and safe on every exit path. WithDriver wraps the
// acquire/release pair for callers that prefer a scoped form.
//
// Each Connect opens a private single-connection pool; connections are never
// shared across units.
package driver

import (
	"database/sql/driver"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/multisql/pkg/errors"
	"github.com/ajitpratap0/multisql/pkg/logger"
	"github.com/ajitpratap0/multisql/pkg/metrics"
)

// Default is the process-wide lifecycle backed by the default catalog.
var Default = NewLifecycle(defaultCatalog, nil)

// Stats is a snapshot of registry activity.
type Stats struct {
	Registrations   int64
	Deregistrations int64
	// Outstanding maps registered driver names to their open handle count
	Outstanding map[string]int
}

type registration struct {
	entry *Entry
	drv   driver.Driver
	refs  int
}

// Lifecycle is a reference-counted driver registry. Safe for concurrent use.
type Lifecycle struct {
	catalog *Catalog
	logger  *zap.Logger

	mu              sync.Mutex
	registered      map[string]*registration
	registrations   int64
	deregistrations int64
}

// NewLifecycle creates a registry resolving names in catalog. A nil logger
// uses the global logger.
func NewLifecycle(catalog *Catalog, log *zap.Logger) *Lifecycle {
	return &Lifecycle{
		catalog:    catalog,
		logger:     log,
		registered: make(map[string]*registration),
	}
}

func (l *Lifecycle) log() *zap.Logger {
	if l.logger != nil {
		return l.logger
	}
	return logger.Get().With(zap.String("component", "driver_lifecycle"))
}

// Catalog returns the catalog names are resolved in.
func (l *Lifecycle) Catalog() *Catalog {
	return l.catalog
}

// Acquire resolves name, registers the driver if it is not registered yet,
// validates dsn and returns a connection factory bound to dsn plus a handle
// the caller must release.
//
// Failures:
//   - driver_load: name is not in the catalog
//   - driver_registration: the driver rejects dsn
//
// A failed Acquire leaves no outstanding reference.
func (l *Lifecycle) Acquire(name, dsn string) (ConnectionFactory, *Handle, error) {
	entry, err := l.catalog.Resolve(name)
	if err != nil {
		l.log().Error("could not load driver", zap.String("driver", name), zap.Error(err))
		return nil, nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	reg, registered := l.registered[entry.Name]
	var drv driver.Driver
	if registered {
		drv = reg.drv
	} else {
		drv = entry.New()
	}

	connector, err := openConnector(entry, drv, dsn)
	if err != nil {
		l.log().Error("could not register driver", zap.String("driver", entry.Name), zap.Error(err))
		return nil, nil, err
	}

	if !registered {
		reg = &registration{entry: entry, drv: drv}
		l.registered[entry.Name] = reg
		l.registrations++
		metrics.DriverRegistrations.WithLabelValues(entry.Name, "register").Inc()
		l.log().Info("driver registered", zap.String("driver", entry.Name))
	}
	reg.refs++
	metrics.DriverReferences.WithLabelValues(entry.Name).Set(float64(reg.refs))

	released := new(atomic.Bool)
	factory := &connectorFactory{driverName: entry.Name, connector: connector, released: released}
	return factory, &Handle{lifecycle: l, name: entry.Name, released: released}, nil
}

// WithDriver acquires name, runs fn with the connection factory and
// releases the handle whether or not fn fails.
func (l *Lifecycle) WithDriver(name, dsn string, fn func(ConnectionFactory) error) error {
	factory, handle, err := l.Acquire(name, dsn)
	if err != nil {
		return err
	}
	defer handle.Release()
	return fn(factory)
}

// Stats returns a snapshot of registry counters.
func (l *Lifecycle) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	outstanding := make(map[string]int, len(l.registered))
	for name, reg := range l.registered {
		outstanding[name] = reg.refs
	}
	return Stats{
		Registrations:   l.registrations,
		Deregistrations: l.deregistrations,
		Outstanding:     outstanding,
	}
}

// IsRegistered reports whether name (or an alias) is currently registered.
func (l *Lifecycle) IsRegistered(name string) bool {
	entry, err := l.catalog.Resolve(name)
	if err != nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.registered[entry.Name]
	return ok
}

func (l *Lifecycle) release(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	reg, ok := l.registered[name]
	if !ok {
		return
	}

	reg.refs--
	metrics.DriverReferences.WithLabelValues(name).Set(float64(reg.refs))
	if reg.refs > 0 {
		return
	}

	delete(l.registered, name)
	l.deregistrations++
	metrics.DriverRegistrations.WithLabelValues(name, "deregister").Inc()
	l.log().Info("driver deregistered", zap.String("driver", name))
}

// Handle is one outstanding reference to a registered driver.
type Handle struct {
	lifecycle *Lifecycle
	name      string
	released  *atomic.Bool
	once      sync.Once
}

// DriverName returns the canonical name of the referenced driver.
func (h *Handle) DriverName() string {
	return h.name
}

// Release drops the reference. The factory acquired with the handle refuses
// new connections afterwards. Calling it more than once, or on a nil handle,
// has no effect.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.released.Store(true)
		h.lifecycle.release(h.name)
	})
}

func openConnector(entry *Entry, drv driver.Driver, dsn string) (driver.Connector, error) {
	if entry.Validate != nil {
		if err := entry.Validate(dsn); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeDriverRegistration, "driver rejected connection string").
				WithDetail("driver", entry.Name)
		}
	}

	if dc, ok := drv.(driver.DriverContext); ok {
		connector, err := dc.OpenConnector(dsn)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeDriverRegistration, "driver rejected connection string").
				WithDetail("driver", entry.Name)
		}
		return connector, nil
	}

	return &dsnConnector{dsn: dsn, drv: drv}, nil
}
