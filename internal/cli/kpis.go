package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cratelabs/discolake/internal/kpi"
	"github.com/cratelabs/discolake/internal/registry"
)

func newComputeKPIsCommand(opts *RootOptions) *cobra.Command {
	var (
		includeActive bool
		only          []string
		strict        bool
	)

	cmd := &cobra.Command{
		Use:   "compute-kpis [run_id|all]",
		Short: "Measure validated runs and append KPI snapshot events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			defs, err := kpi.LoadDefinitions(app.cfg.KPIDefinitionsPath())
			if err != nil {
				return err
			}
			eng, err := app.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			recorder, err := kpi.NewRecorder(eng, app.store, defs, app.cfg.SchemaVersion, app.log)
			if err != nil {
				return err
			}

			kpiOpts := kpi.Options{IncludeActive: includeActive, Only: only, Strict: strict}
			if len(args) == 1 && args[0] != "all" {
				kpiOpts.RunID = args[0]
			}
			events, err := recorder.Record(cmd.Context(), kpiOpts)
			if err != nil {
				return err
			}
			for _, event := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d\t%s\n", event.RunID, event.KPIName, event.Value, event.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeActive, "include-active", false, "also measure the active run")
	cmd.Flags().StringSliceVar(&only, "kpi", nil, "restrict to named base KPIs (skips derived KPIs)")
	cmd.Flags().BoolVar(&strict, "strict", false, "abort on the first failed computation")
	return cmd
}

func newExportHistoryCommand(opts *RootOptions) *cobra.Command {
	var (
		format        string
		timestamped   bool
		includeActive bool
		onlyRunID     string
	)

	cmd := &cobra.Command{
		Use:   "export-history",
		Short: "Export the latest KPI projection to CSV reports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			exporter := registry.NewExporter(app.store, app.cfg.ReportsDir)
			paths, err := exporter.Export(cmd.Context(), registry.ExportOptions{
				Format:        format,
				Timestamped:   timestamped,
				IncludeActive: includeActive,
				OnlyRunID:     onlyRunID,
			})
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				app.log.Warn("nothing to export")
				return nil
			}
			for _, path := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "", "output format (long|wide), default both")
	cmd.Flags().BoolVar(&timestamped, "timestamped", false, "append a UTC stamp to the file names")
	cmd.Flags().BoolVar(&includeActive, "include-active", false, "also export the active run")
	cmd.Flags().StringVar(&onlyRunID, "run", "", "restrict the export to one run")
	return cmd
}
