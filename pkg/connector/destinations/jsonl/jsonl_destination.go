// Package jsonl implements a destination that writes tagged records as JSON
// lines to a file or to stdout.
package jsonl

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/multisql/pkg/compression"
	"github.com/ajitpratap0/multisql/pkg/config"
	"github.com/ajitpratap0/multisql/pkg/connector/core"
	"github.com/ajitpratap0/multisql/pkg/errors"
	jsonpool "github.com/ajitpratap0/multisql/pkg/json"
	"github.com/ajitpratap0/multisql/pkg/logger"
	"github.com/ajitpratap0/multisql/pkg/models"
)

// Name is the registry name of the destination.
const Name = "jsonl"

const defaultBufferSize = 64 * 1024

// Destination writes one JSON document per record.
type Destination struct {
	logger *zap.Logger
	out    io.Writer // overrides the configured path when set

	mu         sync.Mutex
	path       string
	file       *os.File
	compressed io.WriteCloser
	writer     *bufio.Writer
	lines      *jsonpool.LineWriter

	rowsWritten   int64
	errorsWritten int64
}

// Option configures a Destination.
type Option func(*Destination)

// WithWriter makes the destination write to w instead of the configured
// path. w is not closed.
func WithWriter(w io.Writer) Option {
	return func(d *Destination) {
		d.out = w
	}
}

// WithLogger sets the destination logger.
func WithLogger(log *zap.Logger) Option {
	return func(d *Destination) {
		if log != nil {
			d.logger = log
		}
	}
}

// New creates an uninitialized destination.
func New(opts ...Option) *Destination {
	d := &Destination{
		logger: logger.With(zap.String(string(logger.ConnectorKey), Name)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewJSONLDestination is the registry factory for the destination.
func NewJSONLDestination(_ *config.JobConfig) (core.Destination, error) {
	return New(), nil
}

// Initialize opens the output. Compressed file output gets the algorithm's
// extension appended when the path does not already end with it.
func (d *Destination) Initialize(_ context.Context, cfg *config.JobConfig) error {
	if cfg == nil {
		return errors.New(errors.ErrorTypeConfig, "job configuration is required")
	}
	algorithm, err := compression.ParseAlgorithm(cfg.Output.Compression)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid output compression")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lines != nil {
		return errors.New(errors.ErrorTypeValidation, "destination already initialized")
	}

	var w io.Writer
	switch {
	case d.out != nil:
		w = d.out
		d.path = ""
	case cfg.Output.Path == "" || cfg.Output.Path == config.Stdout:
		w = os.Stdout
		d.path = config.Stdout
	default:
		d.path = cfg.Output.Path
		if ext := algorithm.Extension(); ext != "" && !strings.HasSuffix(d.path, ext) {
			d.path += ext
		}
		if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create directory for %s", d.path)
		}
		file, err := os.Create(d.path)
		if err != nil {
			return errors.Wrapf(err, errors.ErrorTypeFile, "failed to create file %s", d.path)
		}
		d.file = file
		w = file
	}

	compressor, err := compression.NewCompressor(algorithm, compression.Default)
	if err != nil {
		d.closeFile()
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to create compressor")
	}
	d.compressed, err = compressor.NewWriter(w)
	if err != nil {
		d.closeFile()
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to create compression writer")
	}

	d.writer = bufio.NewWriterSize(d.compressed, defaultBufferSize)
	d.lines = jsonpool.NewLineWriter(d.writer)

	d.logger.Info("jsonl destination initialized",
		zap.String("path", d.path),
		zap.String("compression", string(algorithm)))
	return nil
}

// Write consumes stream until its record channel is closed, the stream
// reports an error or ctx is done.
func (d *Destination) Write(ctx context.Context, stream *core.RecordStream) error {
	d.mu.Lock()
	initialized := d.lines != nil
	d.mu.Unlock()
	if !initialized {
		return errors.New(errors.ErrorTypeValidation, "destination not initialized")
	}

	records, errs := stream.Records, stream.Errors
	for records != nil {
		select {
		case rec, ok := <-records:
			if !ok {
				records = nil
				continue
			}
			if err := d.writeRecord(rec); err != nil {
				return err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				_ = d.flush()
				return err
			}
		case <-ctx.Done():
			_ = d.flush()
			return ctx.Err()
		}
	}

	// a stream error may arrive after the last record
	if errs != nil {
		for err := range errs {
			if err != nil {
				_ = d.flush()
				return err
			}
		}
	}
	return d.flush()
}

func (d *Destination) writeRecord(rec *models.TaggedRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.lines.Write(rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record").
			WithDetail("unit", rec.SourceID)
	}
	if rec.IsError() {
		d.errorsWritten++
	} else {
		d.rowsWritten++
	}
	return nil
}

func (d *Destination) flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writer == nil {
		return nil
	}
	if err := d.writer.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush output")
	}
	return nil
}

// Close flushes and closes the output. Stdout and writers passed with
// WithWriter stay open.
func (d *Destination) Close(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.lines == nil {
		return nil
	}

	var firstErr error
	if err := d.writer.Flush(); err != nil {
		firstErr = errors.Wrap(err, errors.ErrorTypeFile, "failed to flush output")
	}
	if err := d.compressed.Close(); err != nil && firstErr == nil {
		firstErr = errors.Wrap(err, errors.ErrorTypeFile, "failed to finish compressed stream")
	}
	if err := d.closeFile(); err != nil && firstErr == nil {
		firstErr = err
	}
	_ = d.lines.Close()
	d.lines = nil
	d.writer = nil

	d.logger.Info("jsonl destination closed",
		zap.String("path", d.path),
		zap.Int64("rows", d.rowsWritten),
		zap.Int64("errors", d.errorsWritten))
	return firstErr
}

func (d *Destination) closeFile() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeFile, "failed to close %s", d.path)
	}
	return nil
}

// Path returns the resolved output path, "-" for stdout and empty when
// writing to a caller-provided writer.
func (d *Destination) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.path
}

// Health reports whether the destination is ready to write.
func (d *Destination) Health(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lines == nil {
		return errors.New(errors.ErrorTypeValidation, "destination not initialized")
	}
	return nil
}

// Metrics returns the number of records written by kind.
func (d *Destination) Metrics() map[string]interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]interface{}{
		"rows_written":   d.rowsWritten,
		"errors_written": d.errorsWritten,
		"path":           d.path,
	}
}
