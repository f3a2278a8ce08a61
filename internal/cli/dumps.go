package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cratelabs/discolake/internal/config"
	"github.com/cratelabs/discolake/internal/dumps"
)

// dumpClient builds the object-store client from configuration. Dump
// commands need no registry or engine, so they skip the full app setup.
func dumpClient(opts *RootOptions) (*dumps.Client, config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, config.Config{}, err
	}
	client, err := dumps.NewClient(dumps.Config{
		Endpoint: cfg.DumpEndpoint,
		Bucket:   cfg.DumpBucket,
		UseSSL:   cfg.DumpUseSSL,
	}, opts.Logger())
	if err != nil {
		return nil, config.Config{}, err
	}
	return client, cfg, nil
}

func newFindDumpDateCommand(opts *RootOptions) *cobra.Command {
	var (
		month     string
		probeType string
	)

	cmd := &cobra.Command{
		Use:   "find-dump-date",
		Short: "Find the last published dump day of a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := dumpClient(opts)
			if err != nil {
				return err
			}
			ymd, err := client.FindDumpDate(cmd.Context(), month, probeType)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ymd)
			return nil
		},
	}

	cmd.Flags().StringVar(&month, "month", "", "month to probe (YYYY-MM)")
	cmd.Flags().StringVar(&probeType, "probe-type", "artists", "dump type used for probing")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func newFetchDumpsCommand(opts *RootOptions) *cobra.Command {
	var (
		date  string
		types []string
		dest  string
	)

	cmd := &cobra.Command{
		Use:   "fetch-dumps",
		Short: "Download source dumps for one date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cfg, err := dumpClient(opts)
			if err != nil {
				return err
			}
			if dest == "" {
				dest = cfg.DumpsDir
			}
			paths, err := client.Fetch(cmd.Context(), date, types, dest)
			if err != nil {
				return err
			}
			for _, path := range paths {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "dump date (YYYYMMDD)")
	cmd.Flags().StringSliceVar(&types, "types", nil, "dump types to fetch, default all")
	cmd.Flags().StringVar(&dest, "dest", "", "destination directory, default the configured dumps dir")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
