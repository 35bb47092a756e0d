package reader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/multisql/pkg/driver"
	"github.com/ajitpratap0/multisql/pkg/driver/drivers/sqlite"
	"github.com/ajitpratap0/multisql/pkg/models"
	"github.com/ajitpratap0/multisql/pkg/split"
	"github.com/ajitpratap0/multisql/pkg/testutil"
)

// runJob acquires the driver once for the job, reads every unit to
// completion and releases the driver.
func runJob(t *testing.T, lc *driver.Lifecycle, driverName, dsn string, statements []string) []*models.TaggedRecord {
	t.Helper()
	ctx := context.Background()
	units := split.Partition(statements, "scenario")

	factory, handle, err := lc.Acquire(driverName, dsn)
	if err != nil {
		units = split.PreFail(units, err)
	}
	defer handle.Release()

	var open Opener
	if factory != nil {
		open = NewOpener(factory, Options{SourceField: "source", Logger: zaptest.NewLogger(t)})
	}

	var out []*models.TaggedRecord
	for _, u := range units {
		r := NewFaultIsolatingReader(u, open, WithLogger(zaptest.NewLogger(t)))
		out = append(out, collect(ctx, r)...)
	}
	return out
}

func newSQLiteLifecycle(t *testing.T) *driver.Lifecycle {
	t.Helper()
	catalog := driver.NewCatalog()
	require.NoError(t, catalog.Register(sqlite.Entry()))
	return driver.NewLifecycle(catalog, zaptest.NewLogger(t))
}

func TestScenario_AllUnitsSucceed(t *testing.T) {
	dsn := testutil.SeedSQLite(t)
	lc := newSQLiteLifecycle(t)

	records := runJob(t, lc, "sqlite", dsn, []string{"SELECT * FROM t1", "SELECT * FROM t2"})
	groups := testutil.BySource(records)

	require.Len(t, groups["Statement #1"], 3)
	require.Len(t, groups["Statement #2"], 2)
	for _, rec := range records {
		assert.True(t, rec.IsRow())
		assert.Equal(t, rec.SourceID, rec.Fields["source"])
	}
	assert.Equal(t, "a", groups["Statement #1"][0].Fields["name"])
	assert.Equal(t, int64(20), groups["Statement #2"][1].Fields["id"])

	stats := lc.Stats()
	assert.Equal(t, int64(1), stats.Registrations)
	assert.Equal(t, int64(1), stats.Deregistrations)
}

func TestScenario_MissingTable(t *testing.T) {
	dsn := testutil.SeedSQLite(t)
	lc := newSQLiteLifecycle(t)

	records := runJob(t, lc, "sqlite", dsn, []string{"SELECT * FROM t1", "SELECT * FROM missing_table"})
	groups := testutil.BySource(records)

	require.Len(t, groups["Statement #1"], 3)
	for _, rec := range groups["Statement #1"] {
		assert.True(t, rec.IsRow())
	}

	require.Len(t, groups["Statement #2"], 1)
	failed := groups["Statement #2"][0]
	assert.True(t, failed.IsError())
	assert.Equal(t, "execution", failed.FailureClass)
	assert.Equal(t, "scenario", failed.ReferenceName)
	assert.Contains(t, failed.Message, "missing_table")
}

func TestScenario_UnknownDriver(t *testing.T) {
	lc := newSQLiteLifecycle(t)

	records := runJob(t, lc, "com.example.NoSuchDriver", "ignored", []string{"SELECT 1", "SELECT 2", "SELECT 3"})
	require.Len(t, records, 3)

	for i, rec := range records {
		assert.True(t, rec.IsError())
		assert.Equal(t, split.UnitID(i+1), rec.SourceID)
		assert.Equal(t, "driver_load", rec.FailureClass)
	}
	assert.Zero(t, lc.Stats().Registrations)
}

func TestScenario_EmptyStatementList(t *testing.T) {
	dsn := testutil.SeedSQLite(t)
	lc := newSQLiteLifecycle(t)

	records := runJob(t, lc, "sqlite", dsn, nil)
	assert.Empty(t, records)
	assert.Empty(t, lc.Stats().Outstanding)
}

func TestScenario_EmptyResult(t *testing.T) {
	dsn := testutil.SeedSQLite(t)
	lc := newSQLiteLifecycle(t)

	records := runJob(t, lc, "sqlite", dsn, []string{"SELECT * FROM t1 WHERE id > 100"})
	assert.Empty(t, records)
}
