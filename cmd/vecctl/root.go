package main

import (
	"github.com/spf13/cobra"

	"github.com/arena2036/vec-aas-uploader/pkg/logger"
)

type rootOptions struct {
	verbose bool
	log     logger.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{log: logger.NewNopLogger()}

	cmd := &cobra.Command{
		Use:   "vecctl",
		Short: "Inspect VEC files offline",
		Long: `vecctl checks VEC files against the upload acceptance rules and
converts them to the JSON document sent to the AAS generator.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			log, err := logger.NewLogger(
				logger.WithLevel(level),
				logger.WithEncoding("console"),
				logger.WithOutputPaths([]string{"stderr"}),
			)
			if err != nil {
				return err
			}
			opts.log = log
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newConvertCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	return cmd
}
