// Package multisql runs a list of SQL statements against one database as
// independent units of work and turns every outcome into data.
//
// Each statement is executed on its own connection. Its rows are streamed as
// tagged records carrying the id of the statement ("Statement #1", ...).
// When a statement fails, before or while returning rows, the unit ends with
// exactly one error record naming the failure class; the other statements
// are unaffected. A job therefore never aborts because of a bad statement,
// only because of an invalid configuration.
//
// # Architecture
//
//	pkg/split         - partitions statements into unit descriptors
//	pkg/driver        - driver catalog and the ref-counted driver lifecycle
//	pkg/reader        - UnitReader (one statement, one connection) and
//	                    FaultIsolatingReader (failures as records)
//	pkg/config        - job configuration, YAML loading and the portable blob codec
//	pkg/connector     - the multisql source, the jsonl destination and their registry
//	internal/pipeline - drains the source into the destination
//	cmd/multisql      - command-line interface
//
// # Quick Start
//
// A job file:
//
//	name: orders-export
//	driver: pgx
//	connection:
//	  url: postgres://db.internal:5432/shop
//	  username: reader
//	  password: ${PGPASSWORD}
//	statements:
//	  - SELECT * FROM orders
//	  - SELECT * FROM order_items
//	output:
//	  path: out/orders.jsonl
//	  compression: zstd
//
// Run it:
//
//	multisql run --config job.yaml
//
// # Failure classes
//
//	driver_load          - the driver name is not in the catalog
//	driver_registration  - the driver rejects the connection string
//	execution            - the connection cannot be opened or the statement fails
//	row_read             - the cursor fails after rows started streaming
package multisql
