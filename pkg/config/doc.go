// Package config defines the job configuration and its transport encoding.
//
// A job is described by a JobConfig, usually loaded from YAML:
//
//	name: nightly-orders
//	driver: pgx
//	connection:
//	  url: postgres://db.internal:5432/shop
//	  username: ${DB_USER}
//	  password: ${DB_PASSWORD}
//	  properties:
//	    sslmode: require
//	statements:
//	  - SELECT * FROM orders
//	  - SELECT * FROM refunds
//	source_field: tablename
//	performance:
//	  workers: 4
//	output:
//	  path: orders.jsonl.zst
//	  compression: zstd
//
// ${VAR} and ${VAR:-default} references are replaced with environment values
// before parsing.
//
// Encode and Decode turn a JobConfig into an opaque blob so that every worker
// receives exactly the same configuration. Decode failures are config errors
// and are the only failures that abort a job before its units exist.
package config
