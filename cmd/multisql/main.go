// Command multisql runs SQL statements as independent, fault-isolated units
// and writes their rows and failures as JSON lines.
package main

import (
	"fmt"
	"os"

	// Register every driver and connector with their catalogs
	_ "github.com/ajitpratap0/multisql/pkg/connector/destinations/jsonl"
	_ "github.com/ajitpratap0/multisql/pkg/connector/sources/multisql"
	_ "github.com/ajitpratap0/multisql/pkg/driver/drivers/all"
	"github.com/ajitpratap0/multisql/pkg/logger"
)

var version = "0.1.0"

func main() {
	err := newRootCommand().Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
