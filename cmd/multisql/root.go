package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/multisql/pkg/config"
	"github.com/ajitpratap0/multisql/pkg/logger"
)

// Flag names double as viper keys; MULTISQL_<NAME> env vars override them.
const (
	flagConfig      = "config"
	flagLogLevel    = "log-level"
	flagWorkers     = "workers"
	flagOutput      = "output"
	flagCompression = "compression"
	flagFailOnError = "fail-on-error"
	flagMetrics     = "metrics-addr"
	flagTracing     = "tracing"
)

func newRootCommand() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MULTISQL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "multisql",
		Short: "Fault-isolating multi-statement SQL extraction",
		Long: `multisql runs every statement of a job as an independent unit over its own
connection. Rows are written as JSON lines tagged with the statement they came
from. A failing statement produces one error record instead of aborting the job.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return logger.Init(logger.Config{Level: v.GetString(flagLogLevel)})
		},
	}

	root.PersistentFlags().StringP(flagConfig, "c", "", "Path to the job configuration YAML file")
	root.PersistentFlags().String(flagLogLevel, "info", "Log level (debug, info, warn, error)")
	_ = v.BindPFlag(flagConfig, root.PersistentFlags().Lookup(flagConfig))
	_ = v.BindPFlag(flagLogLevel, root.PersistentFlags().Lookup(flagLogLevel))

	root.AddCommand(
		newRunCommand(v),
		newSplitsCommand(v),
		newDriversCommand(),
		newEncodeCommand(v),
		newDecodeCommand(),
		newVersionCommand(),
	)
	return root
}

// loadJob reads the job file named by --config and applies flag and
// environment overrides on top of it.
func loadJob(v *viper.Viper) (*config.JobConfig, error) {
	path := v.GetString(flagConfig)
	if path == "" {
		return nil, errConfigRequired
	}
	cfg, err := config.LoadJob(path)
	if err != nil {
		return nil, err
	}

	if v.IsSet(flagWorkers) {
		cfg.Performance.Workers = v.GetInt(flagWorkers)
	}
	if v.IsSet(flagOutput) {
		cfg.Output.Path = v.GetString(flagOutput)
	}
	if v.IsSet(flagCompression) {
		cfg.Output.Compression = v.GetString(flagCompression)
	}
	if v.IsSet(flagFailOnError) {
		cfg.FailOnError = v.GetBool(flagFailOnError)
	}
	if v.IsSet(flagMetrics) {
		cfg.Observability.EnableMetrics = true
		cfg.Observability.MetricsAddr = v.GetString(flagMetrics)
	}
	if v.IsSet(flagTracing) {
		cfg.Observability.EnableTracing = v.GetBool(flagTracing)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
