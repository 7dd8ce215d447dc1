package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"contestbot/internal/app"
	"contestbot/internal/config"
	"contestbot/pkg/logx"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	bootLog := logx.NewConsole("info")

	store := config.NewStore(cfgPath)
	if _, err := store.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if werr := config.WriteTemplate(cfgPath); werr != nil {
				bootLog.Error("write config template failed", logx.String("path", cfgPath), logx.Err(werr))
				os.Exit(1)
			}
			bootLog.Info("config template written; set telegram.token and start again",
				logx.String("path", cfgPath))
			return
		}
		bootLog.Error("load config failed", logx.String("path", cfgPath), logx.Err(err))
		os.Exit(1)
	}

	a, err := app.New(store)
	if err != nil {
		bootLog.Error("init failed", logx.Err(err))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := a.Start(ctx); err != nil {
		bootLog.Error("start failed", logx.Err(err))
		_ = a.Stop(context.Background())
		os.Exit(1)
	}

	notify(daemon.SdNotifyReady)
	startWatchdog(ctx)

	<-ctx.Done()
	notify(daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)
}

// notify is best-effort; outside systemd SdNotify reports (false, nil).
func notify(state string) {
	_, _ = daemon.SdNotify(false, state)
}

// startWatchdog emits keepalives at half the interval systemd advertises,
// until the run context ends. No-op when WatchdogSec is not set.
func startWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	go func() {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				notify(daemon.SdNotifyWatchdog)
			}
		}
	}()
}
