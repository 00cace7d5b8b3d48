package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/telemetry/internal/telcfg"
	"github.com/Sumatoshi-tech/telemetry/pkg/monitor"
)

// NewStatusCommand builds the "status" subcommand: runs one collection
// pass and renders per-probe health as a table.
func NewStatusCommand() *cobra.Command {
	var configPath string

	var graphviz bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a one-shot health table for every registered probe",
		RunE: func(_ *cobra.Command, _ []string) error {
			return statusDemo(configPath, graphviz)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	cmd.Flags().BoolVar(&graphviz, "graph", false, "print the probe dependency graph as Graphviz DOT instead of a table")

	return cmd
}

func statusDemo(configPath string, graphviz bool) error {
	cfg, err := telcfg.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mon, err := monitor.New(cfg.ToMonitorConfig(), nil)
	if err != nil {
		return fmt.Errorf("construct monitor: %w", err)
	}

	mon.Start()
	defer func() { _ = mon.Stop(context.Background()) }()

	if graphviz {
		dot, err := mon.Health().ExportGraphviz("TelemetryRuntime")
		if err != nil {
			return fmt.Errorf("export dependency graph: %w", err)
		}

		fmt.Println(dot)

		return nil
	}

	snap := mon.CollectNow(context.Background())

	renderHealthTable(snap)

	return nil
}

func renderHealthTable(snap monitor.Snapshot) {
	names := make([]string, 0, len(snap.Health))
	for name := range snap.Health {
		names = append(names, name)
	}

	sort.Strings(names)

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false

	tbl.AppendHeader(table.Row{"probe", "status", "duration", "message"})

	for _, name := range names {
		result := snap.Health[name]
		tbl.AppendRow(table.Row{name, result.Status.String(), result.Duration, result.Message})
	}

	fmt.Println(tbl.Render())
}
