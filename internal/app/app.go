// Package app assembles the process: logging, config, snapshot cache,
// fetchers, repository, transport, command router, reminder loop and the
// background refresh job. Start and Stop own the service lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"contestbot/internal/bot"
	"contestbot/internal/cache"
	"contestbot/internal/config"
	"contestbot/internal/reminder"
	"contestbot/internal/repo"
	"contestbot/internal/source"
	kit "contestbot/internal/transport"
	"contestbot/internal/transport/telegram"
	"contestbot/pkg/logx"
)

const (
	defaultPollTimeout = 10 * time.Second

	// refreshJobTimeout bounds one background refresh pass; each fetcher
	// carries its own per-request timeout below it.
	refreshJobTimeout = 2 * time.Minute
)

type App struct {
	store *config.Store

	logs *logx.Service
	log  logx.Logger

	snaps    cache.Store
	contests *repo.Repository
	adapter  *telegram.Adapter
	router   *bot.Router
	remind   *reminder.Service

	cron     *cron.Cron
	cronMu   sync.Mutex
	cronID   cron.EntryID
	cronSpec string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// chatSink adapts the transport adapter to the reminder sink.
type chatSink struct {
	adapter kit.Adapter
}

func (s chatSink) Send(ctx context.Context, chatID int64, text string) error {
	_, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	return err
}

// New builds the full object graph from the committed config. The store must
// have loaded successfully before this is called.
func New(store *config.Store) (*App, error) {
	cfg := store.Get()
	if cfg == nil {
		return nil, errors.New("config not loaded")
	}

	logSvc, rootLog := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	store.SetLogger(rootLog)

	cacheCfg, err := cacheConfig(cfg)
	if err != nil {
		return nil, err
	}
	snaps, err := cache.Open(cacheCfg, rootLog.WithComp("cache"))
	if err != nil {
		return nil, err
	}

	fetchers := []source.Fetcher{
		source.NewCodeforces(source.Options{Log: rootLog}),
		source.NewNowcoder(source.Options{Log: rootLog}),
		source.NewAtCoder(source.Options{Log: rootLog}),
	}
	contests := repo.New(fetchers, snaps, rootLog)

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, defaultPollTimeout)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, rootLog)
	if err != nil {
		return nil, err
	}

	remind := reminder.New(reminder.Options{
		Schedule: store,
		Contests: contests,
		Sink:     chatSink{adapter: adapter},
		Render:   bot.FormatDaily,
		Log:      rootLog,
	})

	router := bot.NewRouter(adapter, cfg.Telegram.OwnerIDs, rootLog)
	router.Register(bot.Commands(bot.Deps{
		Contests: contests,
		Store:    store,
		Reminder: remind,
	})...)
	router.Register(bot.HelpCommand(router))
	adapter.SetMenu(router.Menu())

	return &App{
		store:    store,
		logs:     logSvc,
		log:      rootLog.WithComp("app"),
		snaps:    snaps,
		contests: contests,
		adapter:  adapter,
		router:   router,
		remind:   remind,
		cron: cron.New(
			cron.WithParser(cron.NewParser(cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
			cron.WithLocation(time.Local),
		),
	}, nil
}

// Start brings everything up: transport first so polling is live, then the
// command dispatcher, the reminder loop (when enabled), the periodic refresh
// job and the config watcher. The context bounds all background loops.
func (a *App) Start(ctx context.Context) error {
	cfg := a.store.Get()

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.adapter.Start(runCtx); err != nil {
		cancel()
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.router.DispatchLoop(runCtx, a.adapter.Updates())
	}()

	if cfg.Reminder.Enabled {
		a.remind.Start()
	}

	if err := a.scheduleRefresh(runCtx, cfg.Refresh.Spec); err != nil {
		// The bot still answers queries via lazy fetches; only the periodic
		// warm-up is lost.
		a.log.Error("refresh job not scheduled", logx.Err(err))
	}
	a.cron.Start()

	sub := a.store.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.store.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.store.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch exited", logx.Err(err))
		}
	}()

	a.log.Info("started")
	return nil
}

// Stop shuts down in reverse order. The cron stop waits out a running
// refresh, the reminder stop guarantees no dispatch begins afterwards, and
// only then are the background loops canceled and the poller halted.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	a.step(ctx, "cron", 30*time.Second, func(context.Context) error {
		<-a.cron.Stop().Done()
		return nil
	})
	a.step(ctx, "reminder", 10*time.Second, func(context.Context) error {
		a.remind.Stop()
		return nil
	})

	if a.cancel != nil {
		a.cancel()
	}

	a.step(ctx, "adapter", 3*time.Second, func(c context.Context) error {
		return a.adapter.Stop(c)
	})
	a.step(ctx, "workers", 3*time.Second, func(context.Context) error {
		a.wg.Wait()
		return nil
	})
	a.step(ctx, "cache", time.Second, func(context.Context) error {
		return a.snaps.Close()
	})

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs one shutdown action with an upper bound so a stuck component
// cannot stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	start := time.Now()
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
			a.log.Warn("stop step failed", logx.String("step", name), logx.Err(err))
			return
		}
		a.log.Debug("stop step done", logx.String("step", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step timed out (continuing)",
			logx.String("step", name),
			logx.Duration("elapsed", time.Since(start)))
	}
}

// scheduleRefresh binds the cache-warm job to spec, replacing any previous
// binding. An empty spec disables the job; an invalid one disables it and
// returns the parse error.
func (a *App) scheduleRefresh(ctx context.Context, spec string) error {
	a.cronMu.Lock()
	defer a.cronMu.Unlock()

	spec = strings.TrimSpace(spec)
	if spec == a.cronSpec && a.cronID != 0 {
		return nil
	}
	if a.cronID != 0 {
		a.cron.Remove(a.cronID)
		a.cronID = 0
	}
	a.cronSpec = spec
	if spec == "" {
		a.log.Info("background refresh disabled")
		return nil
	}

	id, err := a.cron.AddFunc(spec, func() {
		jobCtx, cancel := context.WithTimeout(ctx, refreshJobTimeout)
		defer cancel()
		a.refreshOnce(jobCtx)
	})
	if err != nil {
		return fmt.Errorf("refresh.spec: %w", err)
	}
	a.cronID = id
	a.log.Info("background refresh scheduled", logx.String("spec", spec))
	return nil
}

// refreshOnce forces a full re-fetch so the snapshot stays warm past the
// per-source memo. Per-source failures are logged by the repository; this
// only summarizes the pass.
func (a *App) refreshOnce(ctx context.Context) {
	start := time.Now()
	results := a.contests.RefreshAll(ctx, true)

	failed := 0
	for _, err := range results {
		if err != nil {
			failed++
		}
	}
	a.log.Info("background refresh finished",
		logx.Int("sources", len(results)),
		logx.Int("failed", failed),
		logx.Duration("took", time.Since(start)))
}

// reloadLoop applies externally edited configs as the watcher commits them.
// Bursts are coalesced so only the newest config is applied.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.store.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			a.applyReload(ctx, last, next)
			last = next
		}
	}
}

func (a *App) applyReload(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reloaded (no effective changes)")
		return
	}

	for _, s := range sections {
		switch s {
		case "logging":
			// A level-only change swaps the level in place; anything else
			// rebuilds the sinks.
			o, n := oldCfg.Logging, newCfg.Logging
			if o.Format == n.Format && o.Console == n.Console && o.File == n.File {
				a.logs.SetLevel(n.Level)
				break
			}
			a.logs.Apply(logx.Config{
				Level:   n.Level,
				Format:  n.Format,
				Console: n.Console,
				File: logx.FileConfig{
					Enabled: n.File.Enabled,
					Path:    n.File.Path,
				},
			})
		case "telegram":
			// Owners apply live; token and poll timeout need a restart.
			a.router.SetOwners(newCfg.Telegram.OwnerIDs)
			if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
				oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
				a.log.Warn("telegram token/poll_timeout changed; restart required")
			}
		case "refresh":
			if err := a.scheduleRefresh(ctx, newCfg.Refresh.Spec); err != nil {
				a.log.Error("refresh job not scheduled", logx.Err(err))
			}
		case "reminder":
			// Re-arm so a new fire time or enable flag takes effect now
			// instead of after the currently armed wait.
			a.remind.Restart()
		case "cache":
			a.log.Warn("cache/data_dir changed; restart required")
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// cacheConfig maps the file config onto the snapshot store options. An empty
// path lands the store inside the data directory.
func cacheConfig(cfg *config.Config) (cache.Config, error) {
	busy, err := config.ParseDurationField("cache.busy_timeout", cfg.Cache.BusyTimeout)
	if err != nil {
		return cache.Config{}, err
	}

	out := cache.Config{
		Driver:      cfg.Cache.Driver,
		Path:        strings.TrimSpace(cfg.Cache.Path),
		BusyTimeout: busy,
	}
	if out.Path == "" {
		dir := strings.TrimSpace(cfg.DataDir)
		if dir == "" {
			dir = "data"
		}
		switch strings.ToLower(strings.TrimSpace(out.Driver)) {
		case "sqlite", "sqlite3":
			out.Path = filepath.Join(dir, "contest_cache.db")
		default:
			out.Path = filepath.Join(dir, "contest_cache.json")
		}
	}
	return out, nil
}
