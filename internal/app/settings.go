package app

import (
	"time"

	"schedbot/internal/config"
	"schedbot/internal/fetch"
	"schedbot/internal/ops"
	"schedbot/internal/storage"
	"schedbot/internal/task/scheduler"
	telegram "schedbot/internal/transport/telegram/adapter"
	"schedbot/internal/watch"
	logx "schedbot/pkg/logx"
)

// The map* helpers translate the file-facing config into component
// configs. Durations were validated already, so errors here only surface
// when a caller skipped Validate.

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
	if id, err := cfg.Telegram.GroupLogID(); err == nil {
		lc.Telegram.ChatID = id
	}
	return lc
}

func mapAdapterConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, nil
}

func mapPageConfig(cfg *config.Config) (fetch.PageConfig, error) {
	timeout, err := config.ParseDurationOrDefault("source.timeout", cfg.Source.Timeout, 30*time.Second)
	if err != nil {
		return fetch.PageConfig{}, err
	}
	return fetch.PageConfig{
		URL:                  cfg.Source.URL,
		XPath:                cfg.Source.XPath,
		LabelContains:        cfg.Source.LabelContains,
		Timeout:              timeout,
		MaxBytes:             cfg.Source.MaxBytes,
		UserAgent:            cfg.Source.UserAgent,
		ResolveAgainstOrigin: cfg.Source.ResolveAgainstOrigin,
	}, nil
}

func mapDownloadConfig(cfg *config.Config) (fetch.DownloadConfig, error) {
	timeout, err := config.ParseDurationOrDefault("notify.download_timeout", cfg.Notify.DownloadTimeout, time.Minute)
	if err != nil {
		return fetch.DownloadConfig{}, err
	}
	return fetch.DownloadConfig{
		Timeout:   timeout,
		MaxBytes:  cfg.Notify.MaxDocumentBytes,
		UserAgent: cfg.Source.UserAgent,
	}, nil
}

func mapWatchConfig(cfg *config.Config) (watch.Config, error) {
	timeout, err := config.ParseDurationOrDefault("watch.tick_timeout", cfg.Watch.TickTimeout, 10*time.Minute)
	if err != nil {
		return watch.Config{}, err
	}
	return watch.Config{
		SortLinks:   cfg.Watch.SortLinks,
		AllowEmpty:  cfg.Watch.AllowEmpty,
		TickTimeout: timeout,
	}, nil
}

func mapNotifyConfig(cfg *config.Config) (watch.NotifyConfig, error) {
	send, err := config.ParseDurationOrDefault("notify.send_timeout", cfg.Notify.SendTimeout, 30*time.Second)
	if err != nil {
		return watch.NotifyConfig{}, err
	}
	return watch.NotifyConfig{
		Mode:            cfg.Notify.Mode,
		Header:          cfg.Notify.Header,
		DocumentExts:    cfg.Notify.DocumentExts,
		GroupSize:       cfg.Notify.GroupSize,
		Workers:         cfg.Notify.Workers,
		DownloadWorkers: cfg.Notify.DownloadWorkers,
		RatePerSec:      cfg.Notify.RatePerSec,
		SendTimeout:     send,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: cfg.Watch.Timezone, NoSpread: cfg.Watch.NoSpread}
}

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	read, err := config.ParseDurationOrDefault("ops.read_timeout", cfg.Ops.ReadTimeout, 10*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	write, err := config.ParseDurationField("ops.write_timeout", cfg.Ops.WriteTimeout)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("ops.idle_timeout", cfg.Ops.IdleTimeout, 60*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       cfg.Ops.Enabled,
		Addr:          cfg.Ops.Addr,
		Token:         cfg.Ops.Token,
		AllowInsecure: cfg.Ops.AllowInsecure,
		Pprof:         cfg.Ops.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}
