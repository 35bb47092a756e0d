// Package mysql registers the MySQL/MariaDB driver backed by
// go-sql-driver/mysql.
package mysql

import (
	"database/sql/driver"

	"github.com/go-sql-driver/mysql"

	sqldriver "github.com/ajitpratap0/multisql/pkg/driver"
)

// Name is the catalog name of the driver.
const Name = "mysql"

func init() {
	sqldriver.Register(Entry())
}

// Entry returns the catalog entry for MySQL.
func Entry() sqldriver.Entry {
	return sqldriver.Entry{
		Name:        Name,
		Aliases:     []string{"mariadb"},
		Description: "MySQL and MariaDB via go-sql-driver/mysql",
		New:         func() driver.Driver { return &mysql.MySQLDriver{} },
		Validate: func(dsn string) error {
			_, err := mysql.ParseDSN(dsn)
			return err
		},
		BuildDSN: buildDSN,
	}
}

// buildDSN parses a go-sql-driver DSN (user:pass@tcp(host:port)/db) and
// overrides credentials and params from the job connection.
func buildDSN(url, username, password string, properties map[string]string) (string, error) {
	cfg, err := mysql.ParseDSN(url)
	if err != nil {
		return "", err
	}
	if username != "" {
		cfg.User = username
	}
	if password != "" {
		cfg.Passwd = password
	}
	if len(properties) > 0 {
		if cfg.Params == nil {
			cfg.Params = make(map[string]string, len(properties))
		}
		for k, v := range properties {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN(), nil
}
