// Package pgx registers the PostgreSQL driver backed by jackc/pgx.
package pgx

import (
	"database/sql/driver"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	sqldriver "github.com/ajitpratap0/multisql/pkg/driver"
)

// Name is the catalog name of the driver.
const Name = "pgx"

func init() {
	sqldriver.Register(Entry())
}

// Entry returns the catalog entry for pgx.
func Entry() sqldriver.Entry {
	return sqldriver.Entry{
		Name:        Name,
		Aliases:     []string{"postgres", "postgresql"},
		Description: "PostgreSQL via jackc/pgx",
		New:         func() driver.Driver { return stdlib.GetDefaultDriver() },
		Validate: func(dsn string) error {
			_, err := pgx.ParseConfig(dsn)
			return err
		},
		BuildDSN: buildDSN,
	}
}

func buildDSN(url, username, password string, properties map[string]string) (string, error) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return sqldriver.URLWithCredentials(url, username, password, properties)
	}
	return sqldriver.KeywordWithCredentials(url, username, password, properties), nil
}
