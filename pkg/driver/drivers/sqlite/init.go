// Package sqlite registers the pure Go SQLite driver from modernc.org/sqlite.
// The connection URL is a file path or a file: URI.
package sqlite

import (
	"database/sql/driver"

	_ "modernc.org/sqlite" // registers "sqlite" with database/sql

	sqldriver "github.com/ajitpratap0/multisql/pkg/driver"
)

// Name is the catalog name of the driver.
const Name = "sqlite"

func init() {
	sqldriver.Register(Entry())
}

// Entry returns the catalog entry for SQLite.
func Entry() sqldriver.Entry {
	return sqldriver.Entry{
		Name:        Name,
		Aliases:     []string{"sqlite3"},
		Description: "SQLite via modernc.org/sqlite (pure Go)",
		New:         func() driver.Driver { return sqldriver.FromSQL("sqlite") },
	}
}
