package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"schedbot/internal/config"
	"schedbot/internal/eventbus"
	"schedbot/internal/fetch"
	"schedbot/internal/ops"
	"schedbot/internal/registry"
	rtsup "schedbot/internal/runtime/supervisor"
	"schedbot/internal/storage"
	"schedbot/internal/task/scheduler"
	kit "schedbot/internal/transport"
	telegram "schedbot/internal/transport/telegram/adapter"
	"schedbot/internal/transport/telegram/router"
	"schedbot/internal/watch"
	logx "schedbot/pkg/logx"
)

// tickJob is the scheduler entry that drives the watcher.
const tickJob = "schedule.tick"

// Deps overrides collaborators that New would otherwise build itself.
type Deps struct {
	// Adapter replaces the Telegram adapter (tests, dry runs).
	Adapter kit.Adapter
	// HTTPClient replaces the client shared by fetcher and downloader.
	HTTPClient *http.Client
	Version    string
}

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor
	sups *router.SupervisorRegistry

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	reg   *registry.Registry

	adapter kit.Adapter
	client  *http.Client
	fanout  *watch.FanOut
	watcher *watch.Watcher
	sched   *scheduler.Service
	ops     *ops.Service
	cmdm    *router.CommandManager

	version string
	started time.Time
	updates chan kit.Update
}

// New wires every component from the manager's current config. The
// config must already be loaded.
func New(cfgm *config.ConfigManager, deps Deps) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}

	logs, log := logx.New(mapLogConfig(cfg), nil)
	log = log.With(logx.String("comp", "app"))

	ad := deps.Adapter
	if ad == nil {
		acfg, err := mapAdapterConfig(cfg)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(acfg, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		ad = tg
	}
	logs.SetSender(ad)

	a := &App{
		cfgm:    cfgm,
		sups:    router.NewSupervisorRegistry(),
		log:     log,
		logs:    logs,
		bus:     eventbus.New(),
		adapter: ad,
		client:  deps.HTTPClient,
		version: deps.Version,
		updates: make(chan kit.Update, 256),
	}
	if a.client == nil {
		a.client = fetch.NewClient(0)
	}
	if err := a.build(cfg); err != nil {
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	store, err := OpenStore(cfg, a.log)
	if err != nil {
		return err
	}
	a.store = store

	a.reg = registry.New(store, a.log.With(logx.String("comp", "registry")))

	pcfg, err := mapPageConfig(cfg)
	if err != nil {
		return a.abort(err)
	}
	page, err := fetch.NewPageFetcher(pcfg, a.client)
	if err != nil {
		return a.abort(err)
	}
	dcfg, err := mapDownloadConfig(cfg)
	if err != nil {
		return a.abort(err)
	}
	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return a.abort(err)
	}
	a.fanout = watch.NewFanOut(a.adapter, a.reg, fetch.NewDownloader(dcfg, a.client), ncfg, a.log)

	wcfg, err := mapWatchConfig(cfg)
	if err != nil {
		return a.abort(err)
	}
	a.watcher = watch.New(page, store, a.fanout, wcfg, watch.WithBus(a.bus), watch.WithLogger(a.log))

	a.sched = scheduler.New(mapSchedulerConfig(cfg), a.log)
	if err := a.sched.Add(tickJob, cfg.Watch.Interval, 0, a.runTick); err != nil {
		return a.abort(fmt.Errorf("watch.interval: %w", err))
	}

	opt := router.Options{Workers: cfg.Telegram.Workers, Supervisors: a.sups}
	if u, ok := a.adapter.(interface{ Username() string }); ok {
		opt.BotUsername = u.Username()
	}
	a.cmdm = router.NewCommandManager(a.log.With(logx.String("comp", "commands")), a.adapter, opt)
	a.cmdm.SetRegistry(a.commands())

	ocfg, err := mapOpsConfig(cfg)
	if err != nil {
		return a.abort(err)
	}
	a.ops = ops.New(ocfg, a.Status, a.log.With(logx.String("comp", "ops")))
	return nil
}

// OpenStore opens the configured store on its own, for maintenance
// commands that do not need the bot.
func OpenStore(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Info("storage opened", logx.String("driver", storage.NormalizeDriver(sc.Driver)), logx.String("path", sc.Path))
	return store, nil
}

// abort releases what build opened so far.
func (a *App) abort(err error) error {
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
	return err
}

// runTick adapts Watcher.Tick to the scheduler. Overlap is not an error:
// the running tick covers this trigger.
func (a *App) runTick(ctx context.Context) error {
	_, err := a.watcher.Tick(ctx)
	if errors.Is(err, watch.ErrTickInProgress) {
		return nil
	}
	return err
}

// TickOnce runs a single change-detection cycle in the foreground.
func (a *App) TickOnce(ctx context.Context) (watch.TickResult, error) {
	return a.watcher.Tick(ctx)
}

// Registry exposes the subscriber registry for maintenance commands.
func (a *App) Registry() *registry.Registry { return a.reg }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.started = time.Now()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.ValidateForRun()
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	// Expose adapter supervisor for operational visibility.
	if sp, ok := a.adapter.(interface{ Supervisor() *rtsup.Supervisor }); ok {
		a.sups.Set("telegram.adapter", sp.Supervisor())
	}

	a.sched.Start(a.sup.Context())
	if a.cfgm.Get().Watch.RunOnStartEnabled() {
		if err := a.sched.RunNow(tickJob); err != nil {
			a.log.Warn("initial tick not started", logx.Err(err))
		}
	}

	if err := a.ops.Start(a.sup.Context()); err != nil {
		// ops is optional; the bot keeps running without it.
		a.log.Warn("ops server not started", logx.Err(err))
	} else if sup := a.ops.Supervisor(); sup != nil {
		a.sups.Set("ops", sup)
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("commands.menu", func(c context.Context) {
		if err := a.cmdm.UpdateMenu(c); err != nil {
			a.log.Warn("command menu update failed", logx.Err(err))
		}
	})

	// Debug-level event log; tick outcomes are already logged by the watcher.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.notifyReady()
	a.log.Info("app started",
		logx.String("version", a.version),
		logx.String("source", a.cfgm.Get().Source.URL),
		logx.String("interval", a.cfgm.Get().Watch.Interval),
	)
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.notifyStopping()

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Order: trigger first so no tick starts mid-shutdown, then intake, then storage.
	a.step(ctx, "scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })

	// Wait for supervised goroutines (config watch/reload, command dispatcher, etc.)
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// Close releases resources of an app that was never started (tick mode).
func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	return errors.Join(err, a.logs.Close())
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", limit))

	stepCtx := ctx
	if limit > 0 {
		// respect the caller's deadline; never extend it
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		// fn must honor stepCtx; if it doesn't, report when it eventually returns.
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Err(stepCtx.Err()),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			fields := []logx.Field{logx.String("name", name), logx.Duration("took", time.Since(start))}
			if err != nil {
				a.log.Warn("stop step finished after deadline", append(fields, logx.Err(err))...)
				return
			}
			a.log.Info("stop step finished after deadline", fields...)
		}()
	}
}
