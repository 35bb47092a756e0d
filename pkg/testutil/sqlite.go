package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	// registers the "sqlite" database/sql driver
	_ "modernc.org/sqlite"
)

// FixtureStatements create two small tables: t1 with three rows and t2
// with two.
var FixtureStatements = []string{
	"CREATE TABLE t1 (id INTEGER PRIMARY KEY, name TEXT)",
	"INSERT INTO t1 (id, name) VALUES (1, 'a'), (2, 'b'), (3, 'c')",
	"CREATE TABLE t2 (id INTEGER PRIMARY KEY, amount REAL)",
	"INSERT INTO t2 (id, amount) VALUES (10, 1.5), (20, 2.5)",
}

// SeedSQLite creates a SQLite database file in a temporary directory, runs
// stmts against it and returns its path, usable as the sqlite DSN. With no
// statements FixtureStatements are used.
func SeedSQLite(t *testing.T, stmts ...string) string {
	t.Helper()
	if len(stmts) == 0 {
		stmts = FixtureStatements
	}

	path := filepath.Join(t.TempDir(), "multisql.db")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}
