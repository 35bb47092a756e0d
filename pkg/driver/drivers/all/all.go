// Package all registers every built-in driver with the default catalog.
package all

import (
	_ "github.com/ajitpratap0/multisql/pkg/driver/drivers/mysql"
	_ "github.com/ajitpratap0/multisql/pkg/driver/drivers/pgx"
	_ "github.com/ajitpratap0/multisql/pkg/driver/drivers/pq"
	_ "github.com/ajitpratap0/multisql/pkg/driver/drivers/snowflake"
	_ "github.com/ajitpratap0/multisql/pkg/driver/drivers/sqlite"
)
