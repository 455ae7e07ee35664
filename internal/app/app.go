package app

import (
	"context"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"

	"botmon/internal/commands"
	"botmon/internal/config"
	"botmon/internal/eventbus"
	"botmon/internal/eventbus/natsbridge"
	"botmon/internal/monitor"
	"botmon/internal/notifier"
	"botmon/internal/observability/httpserver"
	"botmon/internal/observability/metrics"
	"botmon/internal/registry"
	rtsup "botmon/internal/runtime/supervisor"
	"botmon/internal/storage"
	"botmon/internal/task/engine"
	"botmon/internal/task/scheduler"
	"botmon/internal/transport"
	"botmon/internal/transport/discord"
	"botmon/internal/transport/telegram"
	logx "botmon/pkg/logx"
	"botmon/pkg/systemd"
)

// App wires every botmon component and owns their lifecycle.
type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log     logx.Logger
	logs    *logx.Service
	metrics *metrics.Metrics
	bus     eventbus.Bus
	sd      *systemd.Notifier

	store registry.Store
	reg   *registry.Service

	adapter *discord.Adapter
	notif   *notifier.Service
	mon     *monitor.Orchestrator
	cmds    *commands.Handler

	engine *engine.Service
	sched  *scheduler.Service
	http   *httpserver.Service

	nc     *nats.Conn
	bridge *natsbridge.Bridge

	updates chan transport.Update
}

// New loads the config at cfgPath and builds every component. Nothing is
// started and no network connection is opened except for backends that
// verify themselves on open (redis, postgres, nats).
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validate(context.Background(), cfg); err != nil {
		return nil, err
	}

	// The ops sink exists only when the telegram section is filled in.
	var sink logx.Sink
	if strings.TrimSpace(cfg.Telegram.Token) != "" && cfg.Telegram.ChatID != 0 {
		tg, err := telegram.New(telegram.Config{
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		})
		if err != nil {
			return nil, err
		}
		sink = tg
	}
	logs, root := logx.New(logConfig(cfg), sink)
	log := root.With(logx.String("comp", "app"))

	a := &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logs,
		metrics: metrics.New(),
		bus:     eventbus.New(),
		sd:      systemd.New(root),
		updates: make(chan transport.Update, 256),
	}
	if err := a.build(cfg, root); err != nil {
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, root logx.Logger) error {
	sc, err := storageConfig(cfg)
	if err != nil {
		return err
	}
	store, err := storage.Open(sc, root)
	if err != nil {
		return err
	}
	a.store = store
	a.reg = registry.NewService(store, root, a.metrics)
	a.log.Info("storage opened", logx.String("driver", sc.Driver))

	ad, err := discord.New(discord.Config{Token: cfg.Discord.Token, StatusText: cfg.Discord.StatusText}, root)
	if err != nil {
		return errors.Join(err, store.Close())
	}
	ad.SetCommands(commands.Specs())
	a.adapter = ad

	ncfg, _ := notifierConfig(cfg)
	a.notif = notifier.New(ncfg, ad, ad, root, a.bus, a.metrics)
	a.mon = monitor.New(monitor.Config{Fanout: cfg.Monitor.Fanout}, a.reg, a.notif, root, a.bus, a.metrics)

	ccfg, _ := commandsConfig(cfg)
	a.cmds = commands.New(ccfg, a.reg, ad, root, a.metrics)

	ecfg, _ := engineConfig(cfg)
	a.engine = engine.New(ecfg, root, a.bus)
	a.sched = scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, a.engine, root)

	a.http = httpserver.New(httpConfig(cfg), a.metrics.Handler(), a.reg.Ping, root)

	if url := strings.TrimSpace(cfg.Events.NatsURL); url != "" {
		nc, err := natsbridge.Connect(url, root.With(logx.String("comp", "natsbridge")))
		if err != nil {
			return errors.Join(err, store.Close())
		}
		a.nc = nc
		a.bridge = natsbridge.New(nc, cfg.Events.Subject, a.bus, root)
	}
	return nil
}

// Done is closed when the app context ends, either by Stop or a fatal error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the app supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log)
	a.cfgm.SetValidator(validate)

	// The engine outlives the run context so Stop can drain it.
	a.engine.Start(context.WithoutCancel(run))
	a.registerMaintenance(a.cfgm.Get())
	a.sched.Start(run)

	if err := a.http.Start(run); err != nil {
		return err
	}
	if a.bridge != nil {
		a.sup.GoRestart("nats.bridge", a.bridge.Run)
	}

	a.sup.Go("updates", a.updateLoop)
	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}

	a.sup.Go("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		// Store health goes to the status line via the health schedule;
		// the watchdog only proves the process is running.
		if err := a.sd.Watchdog(c, nil); err != nil {
			a.log.Warn("systemd watchdog disabled", logx.Err(err))
		}
		return nil
	})

	a.sd.Ready()
	a.log.Info("app started")
	return nil
}
