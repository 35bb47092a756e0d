package config_test

import (
	"fmt"

	"github.com/ajitpratap0/multisql/pkg/config"
)

// ExampleNewJobConfig shows the defaults of a new job.
func ExampleNewJobConfig() {
	cfg := config.NewJobConfig("nightly-orders")

	fmt.Println("Reference:", cfg.ReferenceName)
	fmt.Println("Source field:", cfg.SourceField)
	fmt.Println("Connection timeout:", cfg.Timeouts.Connection)
	fmt.Println("Output:", cfg.Output.Path, cfg.Output.Format)

	// Output:
	// Reference: nightly-orders
	// Source field: tablename
	// Connection timeout: 30s
	// Output: - jsonl
}

// ExampleEncode ships a job configuration to a worker as an opaque blob.
func ExampleEncode() {
	cfg := config.NewJobConfig("nightly-orders")
	cfg.Driver = "pgx"
	cfg.Connection.URL = "postgres://db.internal/shop"
	cfg.Statements = []string{"SELECT * FROM orders", "SELECT * FROM refunds"}

	blob, err := config.Encode(cfg)
	if err != nil {
		fmt.Println("encode:", err)
		return
	}

	decoded, err := config.Decode(blob)
	if err != nil {
		fmt.Println("decode:", err)
		return
	}
	fmt.Println(decoded.Driver, len(decoded.Statements))

	// Output:
	// pgx 2
}

// ExampleDecode shows that a malformed blob is a fatal config error.
func ExampleDecode() {
	_, err := config.Decode([]byte("not a config"))
	fmt.Println(err)

	// Output:
	// config: unsupported config blob version 110
}
