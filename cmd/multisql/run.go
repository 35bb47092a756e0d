package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ajitpratap0/multisql/internal/pipeline"
	"github.com/ajitpratap0/multisql/pkg/config"
	"github.com/ajitpratap0/multisql/pkg/connector/registry"
	"github.com/ajitpratap0/multisql/pkg/connector/sources/multisql"
	"github.com/ajitpratap0/multisql/pkg/errors"
	"github.com/ajitpratap0/multisql/pkg/logger"
	"github.com/ajitpratap0/multisql/pkg/metrics"
	"github.com/ajitpratap0/multisql/pkg/observability"
)

var errConfigRequired = errors.New(errors.ErrorTypeConfig, "--config is required")

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a job",
		Long: `Run every statement of the job and write the tagged records as JSON lines.

Failed statements produce error records. With --fail-on-error the command
exits non-zero after all records are written if any statement failed.`,
		Example: `  # Write records to stdout
  multisql run --config job.yaml

  # Write zstd-compressed records to a file with 8 concurrent units
  multisql run --config job.yaml --output out/records.jsonl --compression zstd --workers 8`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadJob(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runJob(ctx, cfg)
		},
	}

	cmd.Flags().Int(flagWorkers, 0, "Number of units read concurrently (default: number of CPUs)")
	cmd.Flags().StringP(flagOutput, "o", "", `Output path, "-" for stdout`)
	cmd.Flags().String(flagCompression, "", "Output compression (none, gzip, snappy, lz4, zstd, s2)")
	cmd.Flags().Bool(flagFailOnError, false, "Exit non-zero if any statement failed")
	cmd.Flags().String(flagMetrics, "", "Serve Prometheus metrics on this address")
	cmd.Flags().Bool(flagTracing, false, "Export unit spans to stderr")
	for _, name := range []string{flagWorkers, flagOutput, flagCompression, flagFailOnError, flagMetrics, flagTracing} {
		_ = v.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}

func runJob(ctx context.Context, cfg *config.JobConfig) error {
	runID := uuid.New().String()
	log := logger.With(
		zap.String(string(logger.JobIDKey), runID),
		zap.String("job", cfg.Name),
		zap.String("driver", cfg.Driver),
	)

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		Enabled:        cfg.Observability.EnableTracing,
		ServiceName:    "multisql",
		ServiceVersion: version,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize tracing")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	if cfg.Observability.EnableMetrics {
		server := metrics.Serve(cfg.Observability.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	source, err := registry.CreateSource(multisql.Name, cfg)
	if err != nil {
		return err
	}
	destination, err := registry.CreateDestination(cfg.Output.Format, cfg)
	if err != nil {
		return err
	}

	if err := source.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize source: %w", err)
	}
	defer func() {
		if err := source.Close(context.Background()); err != nil {
			log.Warn("failed to close source", zap.Error(err))
		}
	}()

	if err := destination.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize destination: %w", err)
	}

	log.Info("running job", zap.Int("statements", len(cfg.Statements)))

	p := pipeline.NewSimplePipeline(source, destination,
		pipeline.ConfigFromJob(cfg, multisql.Name, cfg.Output.Format), log)
	runErr := p.Run(ctx)

	if err := destination.Close(context.Background()); err != nil && runErr == nil {
		runErr = err
	}

	m := p.Metrics()
	log.Info("job finished",
		zap.Any("rows", m["rows"]),
		zap.Any("error_records", m["error_records"]),
		zap.Strings("failed_units", p.FailedUnits()),
		zap.Any("duration", m["duration"]))
	return runErr
}
