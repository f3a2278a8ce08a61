package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cratelabs/discolake/internal/domain"
	"github.com/cratelabs/discolake/internal/promote"
)

func newPromoteCommand(opts *RootOptions) *cobra.Command {
	var (
		runMode      string
		allowPromote bool
	)

	cmd := &cobra.Command{
		Use:   "promote <run_id>",
		Short: "Atomically switch the active pointer to a run",
		Long:  "Promotion is guarded: it requires --run-mode prod and --allow-promote,\nand the run must pass the structural gate. The previous pointer is kept\nas a timestamped backup and restored if verification fails.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()

			c, err := promote.NewController(app.cfg.LakeRoot, app.cfg.SchemaVersion, app.store, app.log)
			if err != nil {
				return err
			}
			if err := c.Promote(cmd.Context(), args[0], runMode, allowPromote); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "promoted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&runMode, "run-mode", domain.RunModeDev, "run mode (dev|prod)")
	cmd.Flags().BoolVar(&allowPromote, "allow-promote", false, "confirm the promotion")
	return cmd
}
