package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"schedbot/internal/app"
	"schedbot/internal/config"
)

func newTickCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one schedule check now and exit",
		Long: `tick fetches the page once, compares it with the stored fingerprint and
notifies subscribers if it changed. Incoming bot messages are not read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			cfgm, _, err := opts.loadConfig(cmd, (*config.Config).ValidateForRun)
			if err != nil {
				return err
			}
			a, err := app.New(cfgm, app.Deps{Version: version})
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			res, tickErr := a.TickOnce(cmd.Context())
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			return tickErr
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the tick result as JSON")
	return cmd
}
