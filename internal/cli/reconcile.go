package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cratelabs/discolake/internal/reconcile"
)

func newReconcileCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Observe all runs and append lifecycle events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			r, err := reconcile.NewReconciler(app.cfg.LakeRoot, app.cfg.SchemaVersion, app.store, app.log)
			if err != nil {
				return err
			}
			events, err := r.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			for _, event := range events {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", event.RunID, event.Kind, event.Detail)
			}
			return nil
		},
	}
}

func newRegisterSchemaCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register-schema <run_id>",
		Short: "Register a run's schema, tables and views with the query engine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			eng, err := app.openEngine(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			r, err := reconcile.NewRegistrar(app.cfg.LakeRoot, app.cfg.EngineLakePath, app.cfg.SchemaVersion, eng, app.store, app.log)
			if err != nil {
				return err
			}
			if err := r.RegisterSchema(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", args[0])
			return nil
		},
	}
}
