// Package connector groups the connectors of multisql.
//
//   - core: the Source, SplitSource and Destination interfaces and the
//     RecordStream that connects them
//   - registry: name to factory mapping; connectors register from init()
//   - sources/multisql: runs each statement of a job as a fault-isolated split
//   - destinations/jsonl: writes tagged records as JSON lines
//
// # Example Usage
//
//	import (
//		_ "github.com/ajitpratap0/multisql/pkg/connector/destinations/jsonl"
//		_ "github.com/ajitpratap0/multisql/pkg/connector/sources/multisql"
//		_ "github.com/ajitpratap0/multisql/pkg/driver/drivers/all"
//	)
//
//	cfg, err := config.LoadJob("job.yaml")
//	if err != nil {
//		return err
//	}
//
//	source, _ := registry.CreateSource("multisql", cfg)
//	destination, _ := registry.CreateDestination("jsonl", cfg)
//
//	if err := source.Initialize(ctx, cfg); err != nil {
//		return err
//	}
//	defer source.Close(ctx)
//
//	if err := destination.Initialize(ctx, cfg); err != nil {
//		return err
//	}
//	defer destination.Close(ctx)
//
//	stream, err := source.Read(ctx)
//	if err != nil {
//		return err
//	}
//	return destination.Write(ctx, stream)
//
// Failed statements arrive on the stream as error records, so Write only
// fails on output problems or cancellation.
package connector
