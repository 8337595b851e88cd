package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"schedbot/internal/app"
	"schedbot/internal/config"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var stopTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bot and the periodic schedule check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgm, _, err := opts.loadConfig(cmd, (*config.Config).ValidateForRun)
			if err != nil {
				return err
			}
			a, err := app.New(cfgm, app.Deps{Version: version})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			if err := a.Start(ctx); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return err
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigs)

			reason := app.StopUnknown
			select {
			case sig := <-sigs:
				reason = app.StopReasonFor(sig)
			case <-a.Done():
				reason = app.StopFatalError
			}

			sctx, scancel := context.WithTimeout(context.Background(), stopTimeout)
			defer scancel()
			if err := a.Stop(sctx, reason); err != nil {
				return err
			}
			return a.Err()
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 15*time.Second, "upper bound for graceful shutdown")
	return cmd
}
