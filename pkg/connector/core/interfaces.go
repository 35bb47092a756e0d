// Package core defines the interfaces connectors implement.
package core

import (
	"context"

	"github.com/ajitpratap0/multisql/pkg/config"
	"github.com/ajitpratap0/multisql/pkg/models"
	"github.com/ajitpratap0/multisql/pkg/split"
)

// ConnectorType represents the type of connector
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// RecordStream represents a stream of tagged records. Records is closed when
// the source has nothing more to send. Errors carries failures of the stream
// itself; unit failures travel as error records on Records.
type RecordStream struct {
	Records <-chan *models.TaggedRecord
	Errors  <-chan error
}

// Source is the interface that all source connectors must implement
type Source interface {
	Initialize(ctx context.Context, config *config.JobConfig) error
	Read(ctx context.Context) (*RecordStream, error)
	Close(ctx context.Context) error

	// Health and metrics
	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}

// RecordReader pulls the records of a single split.
type RecordReader interface {
	// Next returns the next record, or false once the split is exhausted
	Next(ctx context.Context) (*models.TaggedRecord, bool)
	Close()
}

// SplitSource is a Source whose work is divided into independent splits
// that a worker can read one at a time.
type SplitSource interface {
	Source

	Splits() []split.UnitDescriptor
	OpenSplit(unit split.UnitDescriptor) RecordReader
}

// Destination is the interface that all destination connectors must implement
type Destination interface {
	Initialize(ctx context.Context, config *config.JobConfig) error
	Write(ctx context.Context, stream *RecordStream) error
	Close(ctx context.Context) error

	// Health and metrics
	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}
