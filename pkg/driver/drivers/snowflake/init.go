// Package snowflake registers the Snowflake driver.
package snowflake

import (
	"database/sql/driver"

	"github.com/snowflakedb/gosnowflake"

	sqldriver "github.com/ajitpratap0/multisql/pkg/driver"
)

// Name is the catalog name of the driver.
const Name = "snowflake"

func init() {
	sqldriver.Register(Entry())
}

// Entry returns the catalog entry for Snowflake.
func Entry() sqldriver.Entry {
	return sqldriver.Entry{
		Name:        Name,
		Description: "Snowflake via snowflakedb/gosnowflake",
		New:         func() driver.Driver { return &gosnowflake.SnowflakeDriver{} },
		Validate: func(dsn string) error {
			_, err := gosnowflake.ParseDSN(dsn)
			return err
		},
		BuildDSN: buildDSN,
	}
}

// buildDSN accepts user:password@account/database/schema?warehouse=wh and
// overrides credentials and params from the job connection.
func buildDSN(url, username, password string, properties map[string]string) (string, error) {
	cfg, err := gosnowflake.ParseDSN(url)
	if err != nil {
		return "", err
	}
	if username != "" {
		cfg.User = username
	}
	if password != "" {
		cfg.Password = password
	}
	for k, v := range properties {
		if cfg.Params == nil {
			cfg.Params = make(map[string]*string)
		}
		value := v
		cfg.Params[k] = &value
	}
	return gosnowflake.DSN(cfg)
}
