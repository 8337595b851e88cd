package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"schedbot/internal/config"
)

// version is set at build time: -ldflags "-X main.version=v1.2.3".
var version = "dev"

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "schedbot",
		Short: "Telegram bot that announces schedule page changes",
		Long: `schedbot polls a web page, extracts schedule document links with an
XPath selector and notifies subscribed Telegram chats when the list changes.

Settings come from an optional config file (json, yaml or toml), a .env file
and the environment (TOKEN, URL, XPATH, INTERVAL, DATA_DIR, ...).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (.json, .yaml, .yml or .toml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the environment overlay")

	run := newRunCmd(opts)
	root.AddCommand(run, newTickCmd(opts), newSubscribersCmd(opts), newVersionCmd())
	// Bare "schedbot" runs the bot.
	root.RunE = run.RunE
	return root
}

// loadConfig reads .env, the config file and the environment, then runs
// check (Config.Validate, Config.ValidateForRun or nil).
func (o *rootOptions) loadConfig(cmd *cobra.Command, check func(*config.Config) error) (*config.ConfigManager, *config.Config, error) {
	// A missing default .env is fine; an explicitly named one must exist.
	if err := config.LoadDotEnv(o.envFile, cmd.Flags().Changed("env-file")); err != nil {
		return nil, nil, fmt.Errorf("env file: %w", err)
	}
	cfgm := config.NewConfigManager(o.configPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, nil, err
	}
	if check != nil {
		if err := check(cfg); err != nil {
			return nil, nil, fmt.Errorf("invalid config:\n%w", err)
		}
	}
	return cfgm, cfg, nil
}
