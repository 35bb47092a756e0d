package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/multisql/pkg/config"
	"github.com/ajitpratap0/multisql/pkg/driver"
	jsonpool "github.com/ajitpratap0/multisql/pkg/json"
	"github.com/ajitpratap0/multisql/pkg/split"
)

func newSplitsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "splits",
		Short: "Print the units a job is partitioned into",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadJob(v)
			if err != nil {
				return err
			}
			lines := jsonpool.NewLineWriter(cmd.OutOrStdout())
			defer lines.Close()
			for _, unit := range split.Partition(cfg.Statements, cfg.Reference()) {
				if err := lines.Write(unit); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newDriversCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List the database drivers jobs can use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tALIASES\tDESCRIPTION")
			for _, e := range driver.DefaultCatalog().Entries() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", e.Name, strings.Join(e.Aliases, ","), e.Description)
			}
			return w.Flush()
		},
	}
}

func newEncodeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "encode",
		Short: "Encode a job configuration into a portable base64 blob",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadJob(v)
			if err != nil {
				return err
			}
			blob, err := config.Encode(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(blob))
			return err
		},
	}
}

func newDecodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [blob]",
		Short: "Decode a blob produced by encode and print it as YAML",
		Long:  "Decode a blob produced by encode and print it as YAML. The blob is read from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				text = string(data)
			}

			blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(text))
			if err != nil {
				return fmt.Errorf("blob is not valid base64: %w", err)
			}
			cfg, err := config.Decode(blob)
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg.Redacted()); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "multisql v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
