// Package main provides the entry point for the telemetrydemo CLI, a
// reference harness driving the telemetry runtime's monitor facade.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/telemetry/cmd/telemetrydemo/commands"
	"github.com/Sumatoshi-tech/telemetry/pkg/version"
)

var (
	verbose bool
	quiet   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "telemetrydemo",
		Short: "Telemetry runtime demo - exercise the monitor facade end to end",
		Long: `telemetrydemo wires configuration, metrics, spans, health probes, and
export into a single running Monitor.

Commands:
  run       Ingest a burst of sample telemetry and print one snapshot
  status    Run one health-check pass and render a probe table
  serve     Start a monitor and serve /healthz, /readyz, /metrics over HTTP`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewStatusCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "telemetrydemo %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
