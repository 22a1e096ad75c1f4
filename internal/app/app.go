// Package app assembles the process: config manager, logging, storage,
// alerting, the browser transport and the scheduler loop, plus the
// one-off operations behind the auth and send subcommands.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"azkarbot/internal/adapters/whatsweb"
	"azkarbot/internal/alert"
	"azkarbot/internal/config"
	"azkarbot/internal/delivery"
	"azkarbot/internal/runtime/supervisor"
	"azkarbot/internal/scheduler"
	"azkarbot/internal/storage"
	"azkarbot/internal/tracker"
	"azkarbot/internal/transport"
	"azkarbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager

	logs *logx.Service
	log  logx.Logger

	store   storage.Store
	alerts  *alert.Service
	factory *whatsweb.Factory
	probe   transport.AuthProbe
	sender  *delivery.Sender
	track   *tracker.Tracker
	sched   *scheduler.Service

	sup   *supervisor.Supervisor
	cfgCh chan *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logs, root := logx.New(logxConfig(cfg))
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	scfg, err := storageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(scfg, root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	acfg, err := alertConfig(cfg)
	if err != nil {
		return nil, err
	}
	alerts, err := alert.New(acfg, store, root.With(logx.String("comp", "alert")))
	if err != nil {
		return nil, err
	}

	wcfg, err := whatswebConfig(cfg)
	if err != nil {
		return nil, err
	}
	factory := whatsweb.NewFactory(wcfg, root.With(logx.String("comp", "whatsweb")))

	dcfg, err := deliveryConfig(cfg)
	if err != nil {
		return nil, err
	}
	sender := delivery.NewSender(dcfg, factory, root.With(logx.String("comp", "delivery")))
	probe := whatsweb.NewProbe(factory, dcfg.BaseURL, root.With(logx.String("comp", "auth")))

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	track := tracker.New(store, loc, root.With(logx.String("comp", "tracker")))

	sccfg, err := schedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(sccfg, track, sender, alerts, root.With(logx.String("comp", "scheduler")))

	return &App{
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		store:   store,
		alerts:  alerts,
		factory: factory,
		probe:   probe,
		sender:  sender,
		track:   track,
		sched:   sched,
	}, nil
}

// Start launches the watch/reload plumbing and the scheduler loop.
// It returns once everything is running; the caller waits on ctx.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if err := a.alerts.Start(a.sup.Context()); err != nil {
		// Alerting is not worth dying for.
		a.log.Error("alert service failed to start", logx.Err(err))
	}

	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return cfg.Validate()
	})
	a.cfgCh = a.cfgm.Subscribe(1)
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.fanout", a.fanoutConfig)

	a.sup.Go("scheduler", a.sched.Run)

	a.notifySystemd()
	a.log.Info("started")
	return nil
}

func (a *App) fanoutConfig(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgCh:
			if !ok {
				return
			}
			a.applyConfig(cfg)
		}
	}
}

// applyConfig pushes a validated reload into the running components.
// Storage driver and alert credentials changes need a restart; they are
// logged and otherwise ignored.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logxConfig(cfg))

	if wcfg, err := whatswebConfig(cfg); err == nil {
		a.factory.Apply(wcfg)
	}
	if dcfg, err := deliveryConfig(cfg); err == nil {
		a.sender.Apply(dcfg)
	}
	if sccfg, err := schedulerConfig(cfg); err == nil {
		a.sched.Apply(sccfg)
	}
	a.log.Info("config applied")
}

func (a *App) notifySystemd() {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(ctx context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.cfgCh != nil {
		a.cfgm.Unsubscribe(a.cfgCh)
		a.cfgCh = nil
	}
	a.alerts.Stop()
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}
