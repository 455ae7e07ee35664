package app

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"botmon/internal/config"
	"botmon/internal/presence"
	"botmon/internal/task/engine"
	"botmon/internal/task/scheduler"
	"botmon/internal/transport"
	logx "botmon/pkg/logx"
)

const (
	scheduleHealth  = "registry.health"
	scheduleCompact = "registry.compact"
)

// updateLoop turns gateway updates into engine tasks. Submit blocks while the
// queue is full, which in turn blocks the adapter's reader.
func (a *App) updateLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-a.updates:
			if !ok {
				return nil
			}
			if err := a.route(ctx, up); err != nil && ctx.Err() == nil {
				a.log.Warn("update not scheduled", logx.String("kind", string(up.Kind)), logx.Err(err))
			}
		}
	}
}

func (a *App) route(ctx context.Context, up transport.Update) error {
	switch up.Kind {
	case transport.UpdatePresence:
		if up.Presence == nil {
			return nil
		}
		sig := signalFrom(*up.Presence)
		tr := sig.Classify()
		if tr.Class == presence.Irrelevant {
			// No I/O on this path, so it is cheaper than a task hop.
			a.mon.Handle(ctx, sig)
			return nil
		}
		return a.engine.Submit(ctx, engine.Task{
			ID:   sig.ID,
			Name: "presence." + tr.ClassName,
			Run: func(c context.Context) error {
				a.mon.Handle(c, sig)
				return nil
			},
		})

	case transport.UpdateCommand:
		cmd := up.Command
		if cmd == nil {
			return nil
		}
		return a.engine.Submit(ctx, engine.Task{
			ID:   uuid.NewString(),
			Name: "command." + cmd.Name,
			Run: func(c context.Context) error {
				return a.cmds.Handle(c, cmd)
			},
		})
	}
	return nil
}

func signalFrom(p transport.Presence) presence.Signal {
	at := p.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	return presence.Signal{
		ID:         uuid.NewString(),
		SubjectID:  p.UserID,
		Status:     presence.ParseStatus(p.Status),
		Automated:  p.Automated,
		GuildID:    p.GuildID,
		ReceivedAt: at,
	}
}

// registerMaintenance (re)installs the store housekeeping schedules.
func (a *App) registerMaintenance(cfg *config.Config) {
	if cfg == nil {
		return
	}
	health := scheduleSpec(cfg.Scheduler.HealthCheck, defaultHealthCheck)
	if err := a.sched.AddSchedule(scheduleHealth, health, 10*time.Second, a.checkStore); err != nil {
		a.log.Warn("schedule rejected", logx.String("name", scheduleHealth), logx.String("spec", health), logx.Err(err))
	}
	compact := scheduleSpec(cfg.Scheduler.Compact, defaultCompact)
	if err := a.sched.AddSchedule(scheduleCompact, compact, 30*time.Second, a.compactStore); err != nil {
		a.log.Warn("schedule rejected", logx.String("name", scheduleCompact), logx.String("spec", compact), logx.Err(err))
	}
}

func (a *App) checkStore(ctx context.Context) error {
	err := a.reg.Ping(ctx)
	a.metrics.SetStoreHealthy(err == nil)
	if err != nil {
		a.log.Warn("store unhealthy", logx.Err(err))
		a.sd.Status("store unhealthy")
		return err
	}
	a.sd.Status("monitoring")
	return nil
}

func (a *App) compactStore(ctx context.Context) error {
	compacted, err := a.reg.Compact(ctx)
	if err != nil {
		return err
	}
	if compacted {
		a.log.Debug("store compacted")
	}
	return nil
}

// reloadLoop applies hot-reloaded config to the components that support it.
func (a *App) reloadLoop(ctx context.Context) error {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-sub:
			if !ok {
				return nil
			}
			next = c
		}
		// Coalesce a burst into its newest config.
	drain:
		for {
			select {
			case c := <-sub:
				if c != nil {
					next = c
				}
			default:
				break drain
			}
		}
		a.apply(ctx, last, next)
		last = next
	}
}

func (a *App) apply(ctx context.Context, prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.sd.Reloading()
	defer a.sd.Ready()

	a.logs.Apply(logConfig(next))

	if ncfg, err := notifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	a.sched.Apply(scheduler.Config{Timezone: next.Scheduler.Timezone})
	a.registerMaintenance(next)

	a.http.Apply(ctx, httpConfig(next))

	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}
