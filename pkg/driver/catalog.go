package driver

import (
	"database/sql"
	"database/sql/driver"
	"sort"
	"strings"
	"sync"

	"github.com/ajitpratap0/multisql/pkg/errors"
)

// Entry describes a native driver the catalog can load by name.
type Entry struct {
	// Name is the canonical driver name (e.g. "pgx", "mysql")
	Name string
	// Aliases are alternative names resolving to the same entry
	Aliases []string
	// Description is shown by the CLI
	Description string
	// New returns the native driver instance
	New func() driver.Driver
	// Validate optionally checks a connection string without connecting
	Validate func(dsn string) error
	// BuildDSN optionally merges credentials and properties into the
	// connection URL. When nil the URL is used as is.
	BuildDSN func(url, username, password string, properties map[string]string) (string, error)
}

// Catalog is the static table of loadable drivers keyed by name.
// It replaces loading driver classes by reflection: every driver the
// process can use registers an Entry at init time.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	aliases map[string]string
}

var defaultCatalog = NewCatalog()

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		entries: make(map[string]*Entry),
		aliases: make(map[string]string),
	}
}

// DefaultCatalog returns the process-wide catalog populated by the
// packages under pkg/driver/drivers.
func DefaultCatalog() *Catalog {
	return defaultCatalog
}

// Register adds an entry to the process-wide catalog. Like sql.Register it
// panics on invalid or duplicate entries since it runs from init().
func Register(e Entry) {
	if err := defaultCatalog.Register(e); err != nil {
		panic(err)
	}
}

// Register adds an entry. Names and aliases are case-insensitive.
func (c *Catalog) Register(e Entry) error {
	if e.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "driver name is required")
	}
	if e.New == nil {
		return errors.Newf(errors.ErrorTypeConfig, "driver %s has no constructor", e.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	name := normalize(e.Name)
	if _, exists := c.lookupLocked(name); exists {
		return errors.Newf(errors.ErrorTypeConfig, "driver %s already registered", e.Name)
	}
	for _, alias := range e.Aliases {
		if _, exists := c.lookupLocked(normalize(alias)); exists {
			return errors.Newf(errors.ErrorTypeConfig, "driver alias %s already registered", alias)
		}
	}

	entry := e
	entry.Name = name
	c.entries[name] = &entry
	for _, alias := range e.Aliases {
		c.aliases[normalize(alias)] = name
	}
	return nil
}

// Resolve finds the entry for name or one of its aliases. An unknown name
// is a driver_load error listing the available drivers.
func (c *Catalog) Resolve(name string) (*Entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if e, ok := c.lookupLocked(normalize(name)); ok {
		return e, nil
	}
	return nil, errors.Newf(errors.ErrorTypeDriverLoad, "unknown driver %q", name).
		WithDetail("available", c.listLocked())
}

// List returns the canonical names of all entries, sorted.
func (c *Catalog) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listLocked()
}

// Entries returns all entries sorted by name.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, len(c.entries))
	for _, name := range c.listLocked() {
		out = append(out, *c.entries[name])
	}
	return out
}

func (c *Catalog) lookupLocked(name string) (*Entry, bool) {
	if e, ok := c.entries[name]; ok {
		return e, true
	}
	if canonical, ok := c.aliases[name]; ok {
		return c.entries[canonical], true
	}
	return nil, false
}

func (c *Catalog) listLocked() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FromSQL returns the driver.Driver that a package registered with
// database/sql under name. It panics if no such driver is registered.
func FromSQL(name string) driver.Driver {
	db, err := sql.Open(name, "")
	if err != nil {
		panic(err)
	}
	defer func() { _ = db.Close() }()
	return db.Driver()
}
