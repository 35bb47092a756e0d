// Package pipeline moves the records of a job from its source to its
// destination.
//
// # Overview
//
// A SimplePipeline reads the source's record stream, counts rows and error
// records per unit, and hands the stream to the destination. Error records
// are data: they are written like rows. Whether they fail the run is decided
// by FailOnError once everything has been written.
//
// # Basic Usage
//
//	p := pipeline.NewSimplePipeline(source, destination, &pipeline.PipelineConfig{
//	    BufferSize:  1000,
//	    FailOnError: true,
//	}, logger)
//
//	if err := p.Run(ctx); err != nil {
//	    // stream failure, destination failure or failed units
//	}
package pipeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/multisql/pkg/config"
	"github.com/ajitpratap0/multisql/pkg/connector/core"
	"github.com/ajitpratap0/multisql/pkg/errors"
	"github.com/ajitpratap0/multisql/pkg/metrics"
	"github.com/ajitpratap0/multisql/pkg/models"
)

// SimplePipeline drains one source into one destination.
type SimplePipeline struct {
	source      core.Source
	destination core.Destination

	bufferSize     int
	failOnError    bool
	reportInterval time.Duration
	throughput     *metrics.ThroughputTracker

	logger *zap.Logger

	mu           sync.Mutex
	rows         int64
	errorRecords int64
	failedUnits  map[string]string // unit id -> failure class
	startTime    time.Time
	duration     time.Duration
}

// PipelineConfig contains pipeline configuration parameters.
type PipelineConfig struct {
	// BufferSize is the capacity of the channel between source and
	// destination
	BufferSize int
	// FailOnError makes Run return an error after draining when any error
	// record was seen
	FailOnError bool
	// ReportInterval is how often throughput is published; 0 uses 5s
	ReportInterval time.Duration
	// SourceName and DestinationName label the throughput metric
	SourceName      string
	DestinationName string
}

// DefaultPipelineConfig returns the default configuration.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		BufferSize:     config.DefaultBufferSize,
		ReportInterval: 5 * time.Second,
	}
}

// ConfigFromJob derives the pipeline configuration of a job.
func ConfigFromJob(job *config.JobConfig, sourceName, destinationName string) *PipelineConfig {
	return &PipelineConfig{
		BufferSize:      job.Performance.GetBufferSize(),
		FailOnError:     job.FailOnError,
		ReportInterval:  5 * time.Second,
		SourceName:      sourceName,
		DestinationName: destinationName,
	}
}

// NewSimplePipeline creates a pipeline. Source and destination must already
// be initialized.
func NewSimplePipeline(source core.Source, destination core.Destination, cfg *PipelineConfig, logger *zap.Logger) *SimplePipeline {
	if cfg == nil {
		cfg = DefaultPipelineConfig()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = config.DefaultBufferSize
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SimplePipeline{
		source:         source,
		destination:    destination,
		bufferSize:     cfg.BufferSize,
		failOnError:    cfg.FailOnError,
		reportInterval: cfg.ReportInterval,
		throughput:     metrics.NewThroughputTracker(cfg.SourceName, cfg.DestinationName),
		logger:         logger,
		failedUnits:    make(map[string]string),
	}
}

// Run streams every record from the source to the destination and blocks
// until the source is exhausted, either side fails or ctx is done.
//
// Returned errors, in order of precedence: the destination's write error,
// a source stream error, and with FailOnError an execution error listing
// the failed units.
func (p *SimplePipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	p.startTime = time.Now()
	p.mu.Unlock()
	p.logger.Info("starting pipeline", zap.Int("buffer_size", p.bufferSize))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := p.source.Read(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to start source read")
	}

	recordChan := make(chan *models.TaggedRecord, p.bufferSize)
	errorChan := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.tap(ctx, stream, recordChan, errorChan)
	}()
	go func() {
		defer wg.Done()
		p.reportThroughput(ctx)
	}()

	writeErr := p.destination.Write(ctx, &core.RecordStream{Records: recordChan, Errors: errorChan})
	cancel()
	wg.Wait()
	p.throughput.GetAndReset()

	p.mu.Lock()
	p.duration = time.Since(p.startTime)
	rows, errorRecords, failed := p.rows, p.errorRecords, len(p.failedUnits)
	p.mu.Unlock()

	p.logger.Info("pipeline completed",
		zap.Int64("rows", rows),
		zap.Int64("error_records", errorRecords),
		zap.Int("failed_units", failed),
		zap.Duration("duration", p.duration))

	if writeErr != nil {
		return writeErr
	}
	if p.failOnError && failed > 0 {
		return errors.Newf(errors.ErrorTypeExecution, "%d unit(s) failed", failed).
			WithDetail("failed_units", p.FailedUnits())
	}
	return nil
}

// tap forwards the source stream to the destination channels and counts
// what passes through.
func (p *SimplePipeline) tap(ctx context.Context, in *core.RecordStream, out chan<- *models.TaggedRecord, errs chan<- error) {
	defer close(out)
	defer close(errs)

	for rec := range in.Records {
		p.count(rec)
		select {
		case out <- rec:
		case <-ctx.Done():
			return
		}
	}
	for err := range in.Errors {
		if err != nil {
			p.logger.Error("source stream failed", zap.Error(err))
			errs <- err
			return
		}
	}
}

func (p *SimplePipeline) count(rec *models.TaggedRecord) {
	p.throughput.Increment(1)

	p.mu.Lock()
	defer p.mu.Unlock()
	if rec.IsRow() {
		p.rows++
		return
	}
	p.errorRecords++
	p.failedUnits[rec.SourceID] = rec.FailureClass
}

func (p *SimplePipeline) reportThroughput(ctx context.Context) {
	ticker := time.NewTicker(p.reportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rps := p.throughput.GetAndReset()
			p.logger.Debug("pipeline throughput", zap.Float64("records_per_second", rps))
		case <-ctx.Done():
			return
		}
	}
}

// FailedUnits returns the ids of units that produced an error record, in
// sorted order.
func (p *SimplePipeline) FailedUnits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.failedUnits))
	for id := range p.failedUnits {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Metrics returns pipeline metrics
func (p *SimplePipeline) Metrics() map[string]interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()

	duration := p.duration
	if duration == 0 && !p.startTime.IsZero() {
		duration = time.Since(p.startTime)
	}
	var throughput float64
	if duration > 0 {
		throughput = float64(p.rows+p.errorRecords) / duration.Seconds()
	}

	failures := make(map[string]int)
	for _, class := range p.failedUnits {
		failures[class]++
	}

	return map[string]interface{}{
		"rows":              p.rows,
		"error_records":     p.errorRecords,
		"failed_units":      len(p.failedUnits),
		"failures_by_class": failures,
		"duration":          duration.String(),
		"throughput_rps":    throughput,
		"buffer_size":       p.bufferSize,
	}
}
