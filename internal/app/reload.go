package app

import (
	"context"
	"time"

	"schedbot/internal/config"
	"schedbot/internal/fetch"
	logx "schedbot/pkg/logx"
)

// reloadLoop applies every published config until ctx is done.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig pushes the sections that changed between prev and next into
// the running components. Sections that need a restart are only reported.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	ch := config.SummarizeConfigChange(prev, next)
	if ch.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	a.log.Debug("config change summary", ch.Attrs...)

	restart := ch.Restart
	if prev != nil && prev.Telegram.Workers != next.Telegram.Workers {
		restart = append(restart, "telegram.workers")
	}
	if len(restart) > 0 {
		a.log.Warn("config changes require a restart to take effect", logx.Strings("sections", restart))
	}

	// group_log lives under telegram but targets the log sink.
	if ch.Has("logging") || ch.Has("telegram") {
		a.logs.Apply(mapLogConfig(next))
	}

	if ch.Has("source") {
		a.applySource(next)
	}
	if ch.Has("watch") {
		a.applyWatch(next, prev)
	}
	if ch.Has("notify") || ch.Has("source") {
		a.applyNotify(next)
	}
	if ch.Has("ops") {
		ocfg, err := mapOpsConfig(next)
		if err != nil {
			a.log.Warn("invalid ops config; keeping previous", logx.Err(err))
		} else {
			rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.ops.Reconfigure(rctx, ocfg)
			cancel()
			a.sups.Set("ops", a.ops.Supervisor())
		}
	}

	a.log.Info("config reloaded", ch.Attrs...)
}

func (a *App) applySource(cfg *config.Config) {
	pcfg, err := mapPageConfig(cfg)
	if err != nil {
		a.log.Warn("invalid source config; keeping previous", logx.Err(err))
		return
	}
	page, err := fetch.NewPageFetcher(pcfg, a.client)
	if err != nil {
		a.log.Warn("invalid source config; keeping previous", logx.Err(err))
		return
	}
	a.watcher.SetFetcher(page)
}

func (a *App) applyWatch(cfg, prev *config.Config) {
	wcfg, err := mapWatchConfig(cfg)
	if err != nil {
		a.log.Warn("invalid watch config; keeping previous", logx.Err(err))
		return
	}
	a.watcher.SetConfig(wcfg)

	a.sched.Apply(mapSchedulerConfig(cfg))
	if prev == nil || prev.Watch.Interval != cfg.Watch.Interval {
		if err := a.sched.Add(tickJob, cfg.Watch.Interval, 0, a.runTick); err != nil {
			a.log.Warn("invalid watch.interval; keeping previous", logx.Err(err))
			return
		}
		a.log.Info("check interval changed", logx.String("interval", cfg.Watch.Interval))
	}
}

// applyNotify also rebuilds the downloader, whose user agent comes from
// the source section.
func (a *App) applyNotify(cfg *config.Config) {
	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		a.log.Warn("invalid notify config; keeping previous", logx.Err(err))
		return
	}
	dcfg, err := mapDownloadConfig(cfg)
	if err != nil {
		a.log.Warn("invalid notify config; keeping previous", logx.Err(err))
		return
	}
	a.fanout.SetConfig(ncfg)
	a.fanout.SetDownloader(fetch.NewDownloader(dcfg, a.client))
}
