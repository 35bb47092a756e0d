package config

import (
	"runtime"
	"strings"
	"time"

	"github.com/ajitpratap0/multisql/pkg/compression"
	"github.com/ajitpratap0/multisql/pkg/errors"
)

// Defaults applied by NewJobConfig.
const (
	DefaultSourceField       = "tablename"
	DefaultOutputFormat      = "jsonl"
	DefaultMetricsAddr       = ":9090"
	DefaultConnectionTimeout = 30 * time.Second
	DefaultBufferSize        = 1000

	// Stdout as output path writes records to standard output.
	Stdout = "-"
)

// JobConfig describes one extraction job: the statements to run, the driver
// to run them with and how output is produced.
type JobConfig struct {
	// Name identifies the job in logs
	Name string `yaml:"name" json:"name"`
	// ReferenceName is attached to every error record for attribution.
	// Defaults to Name.
	ReferenceName string `yaml:"reference_name" json:"reference_name"`
	// Driver is the catalog name of the database driver (e.g. "pgx")
	Driver string `yaml:"driver" json:"driver"`

	Connection ConnectionConfig `yaml:"connection" json:"connection"`

	// Statements are executed as independent units, one per statement
	Statements []string `yaml:"statements" json:"statements"`
	// SourceField is the row field that receives the unit id
	SourceField string `yaml:"source_field" json:"source_field"`

	Timeouts      TimeoutConfig       `yaml:"timeouts" json:"timeouts"`
	Performance   PerformanceConfig   `yaml:"performance" json:"performance"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Output        OutputConfig        `yaml:"output" json:"output"`

	// FailOnError makes the run fail after draining if any error record
	// was produced
	FailOnError bool `yaml:"fail_on_error" json:"fail_on_error"`
}

// ConnectionConfig holds the parameters the driver's connection string is
// built from.
type ConnectionConfig struct {
	URL        string            `yaml:"url" json:"url"`
	Username   string            `yaml:"username" json:"username"`
	Password   string            `yaml:"password" json:"password"`
	Properties map[string]string `yaml:"properties" json:"properties"`
}

// TimeoutConfig bounds the blocking points of a unit.
type TimeoutConfig struct {
	// Connection bounds opening a unit's connection
	Connection time.Duration `yaml:"connection" json:"connection"`
	// Query bounds a unit from statement start to its last row; 0 disables
	Query time.Duration `yaml:"query" json:"query"`
}

// PerformanceConfig controls the local scheduler.
type PerformanceConfig struct {
	// Workers is the number of units read concurrently
	Workers int `yaml:"workers" json:"workers"`
	// BufferSize is the capacity of the record channel
	BufferSize int `yaml:"buffer_size" json:"buffer_size"`
}

// ObservabilityConfig contains logging, metrics and tracing settings.
type ObservabilityConfig struct {
	LogLevel      string `yaml:"log_level" json:"log_level"`
	EnableMetrics bool   `yaml:"enable_metrics" json:"enable_metrics"`
	EnableTracing bool   `yaml:"enable_tracing" json:"enable_tracing"`
	MetricsAddr   string `yaml:"metrics_addr" json:"metrics_addr"`
}

// OutputConfig selects where records are written.
type OutputConfig struct {
	// Path of the output file, or "-" for stdout
	Path        string `yaml:"path" json:"path"`
	Format      string `yaml:"format" json:"format"`
	Compression string `yaml:"compression" json:"compression"`
}

// NewJobConfig creates a job configuration with defaults.
func NewJobConfig(name string) *JobConfig {
	return &JobConfig{
		Name:          name,
		ReferenceName: name,
		SourceField:   DefaultSourceField,
		Timeouts: TimeoutConfig{
			Connection: DefaultConnectionTimeout,
		},
		Performance: PerformanceConfig{
			Workers:    runtime.NumCPU(),
			BufferSize: DefaultBufferSize,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			MetricsAddr: DefaultMetricsAddr,
		},
		Output: OutputConfig{
			Path:        Stdout,
			Format:      DefaultOutputFormat,
			Compression: string(compression.None),
		},
	}
}

// Validate checks the configuration. Every failure is a config error, the
// only error class that aborts a job before it starts.
//
// An unknown driver name is not a validation failure: it is reported per
// unit when the job runs.
func (c *JobConfig) Validate() error {
	if c.Name == "" {
		return errors.New(errors.ErrorTypeConfig, "name is required")
	}
	if strings.TrimSpace(c.Driver) == "" {
		return errors.New(errors.ErrorTypeConfig, "driver is required")
	}
	for i, stmt := range c.Statements {
		if strings.TrimSpace(stmt) == "" {
			return errors.Newf(errors.ErrorTypeConfig, "statements[%d] is empty", i)
		}
	}
	if c.SourceField == "" {
		return errors.New(errors.ErrorTypeConfig, "source_field is required")
	}
	if c.Timeouts.Connection < 0 || c.Timeouts.Query < 0 {
		return errors.New(errors.ErrorTypeConfig, "timeouts cannot be negative")
	}
	if c.Performance.Workers < 0 {
		return errors.New(errors.ErrorTypeConfig, "workers cannot be negative")
	}
	if c.Performance.BufferSize < 0 {
		return errors.New(errors.ErrorTypeConfig, "buffer_size cannot be negative")
	}
	if c.Output.Format != "" && c.Output.Format != DefaultOutputFormat {
		return errors.Newf(errors.ErrorTypeConfig, "unsupported output format %q", c.Output.Format)
	}
	if _, err := compression.ParseAlgorithm(c.Output.Compression); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid output compression")
	}
	return nil
}

// Reference returns the name used to attribute error records.
func (c *JobConfig) Reference() string {
	if c.ReferenceName != "" {
		return c.ReferenceName
	}
	return c.Name
}

// Redacted returns a copy safe to log or print.
func (c *JobConfig) Redacted() *JobConfig {
	out := *c
	if out.Connection.Password != "" {
		out.Connection.Password = "***"
	}
	return &out
}

// GetWorkers returns the number of workers, at least 1.
func (p *PerformanceConfig) GetWorkers() int {
	if p.Workers <= 0 {
		return runtime.NumCPU()
	}
	return p.Workers
}

// GetBufferSize returns the record channel capacity.
func (p *PerformanceConfig) GetBufferSize() int {
	if p.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return p.BufferSize
}
