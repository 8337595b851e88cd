package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"schedbot/internal/app"
	"schedbot/internal/registry"
	logx "schedbot/pkg/logx"
)

func newSubscribersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "subscribers",
		Aliases: []string{"subs"},
		Short:   "Inspect or edit the subscriber list",
	}

	// withRegistry opens only the store; source and token may be unset.
	withRegistry := func(cmd *cobra.Command, fn func(ctx context.Context, reg *registry.Registry) error) (err error) {
		_, cfg, err := opts.loadConfig(cmd, nil)
		if err != nil {
			return err
		}
		log := logx.NewConsole(cfg.Logging.Level)
		store, err := app.OpenStore(cfg, log)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, store.Close()) }()
		return fn(cmd.Context(), registry.New(store, log))
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "Print every subscriber id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRegistry(cmd, func(ctx context.Context, reg *registry.Registry) error {
				ids, err := reg.List(ctx)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}

	add := &cobra.Command{
		Use:   "add <chat-id>...",
		Short: "Subscribe chats by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(ctx context.Context, reg *registry.Registry) error {
				for _, id := range args {
					if _, err := registry.ParseID(id); err != nil {
						return err
					}
					if err := reg.Subscribe(ctx, id); err != nil {
						return fmt.Errorf("subscribe %s: %w", id, err)
					}
				}
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:     "remove <chat-id>...",
		Aliases: []string{"rm"},
		Short:   "Unsubscribe chats by id",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(ctx context.Context, reg *registry.Registry) error {
				for _, id := range args {
					if err := reg.Unsubscribe(ctx, id); err != nil {
						return fmt.Errorf("unsubscribe %s: %w", id, err)
					}
				}
				return nil
			})
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}
