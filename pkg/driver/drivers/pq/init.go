// Package pq registers the PostgreSQL driver backed by lib/pq.
package pq

import (
	"database/sql/driver"
	"strings"

	"github.com/lib/pq"

	sqldriver "github.com/ajitpratap0/multisql/pkg/driver"
)

// Name is the catalog name of the driver.
const Name = "pq"

func init() {
	sqldriver.Register(Entry())
}

// Entry returns the catalog entry for lib/pq.
func Entry() sqldriver.Entry {
	return sqldriver.Entry{
		Name:        Name,
		Aliases:     []string{"libpq"},
		Description: "PostgreSQL via lib/pq",
		New:         func() driver.Driver { return &pq.Driver{} },
		Validate: func(dsn string) error {
			_, err := pq.NewConnector(dsn)
			return err
		},
		BuildDSN: func(url, username, password string, properties map[string]string) (string, error) {
			if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
				return sqldriver.URLWithCredentials(url, username, password, properties)
			}
			return sqldriver.KeywordWithCredentials(url, username, password, properties), nil
		},
	}
}
